package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/solarcrm/internal/crm/auth"
	"github.com/gartstein/solarcrm/internal/crm/config"
	"github.com/gartstein/solarcrm/internal/crm/controller"
	"github.com/gartstein/solarcrm/internal/crm/db"
	"github.com/gartstein/solarcrm/internal/crm/events"
	"github.com/gartstein/solarcrm/internal/crm/handlers"
	"github.com/gartstein/solarcrm/internal/crm/storage"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type args struct {
	Config string `arg:"--config,env:CRM_CONFIG" help:"path to the YAML configuration"`
}

func (args) Description() string {
	return "Solar installation CRM: customers, installers, suppliers, leads and contracts."
}

func main() {
	a := args{Config: filepath.Join("internal", "crm", "config", "config.yaml")}
	arg.MustParse(&a)

	logger := initLogger()
	defer func(logger *zap.Logger) {
		err := logger.Sync()
		if err != nil {
			logger.Error("failed to sync logger", zap.Error(err))
		}
	}(logger)

	cfg, err := config.Load(a.Config)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err), zap.String("path", a.Config))
	}

	repo, err := connectDatabase(cfg.Database(), logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}()

	deps := controller.Dependencies{Repo: repo, Producer: events.NopProducer{}, Logger: logger}

	if len(cfg.KafkaBrokers) > 0 {
		if err := events.EnsureTopic(cfg.KafkaBrokers, cfg.Topic, 1); err != nil {
			logger.Warn("failed to ensure Kafka topic", zap.String("topic", cfg.Topic), zap.Error(err))
		}
		producer := events.NewProducer(cfg.KafkaBrokers, logger, cfg.Topic)
		defer producer.Close()
		deps.Producer = producer
	} else {
		logger.Info("Kafka not configured, domain events are discarded")
	}

	if storeCfg := cfg.Storage(); storeCfg != nil {
		store, err := initStorage(storeCfg, logger)
		if err != nil {
			logger.Fatal("failed to initialize document storage", zap.Error(err))
		}
		deps.Store = store
	} else {
		logger.Info("Object storage not configured, contract documents are disabled")
	}

	services := controller.New(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.IntakeTopic != "" {
		consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.IntakeGroup, cfg.IntakeTopic, logger, services.Leads.IntakeLead)
		defer func() {
			cancel()
			consumer.Close()
		}()
		consumer.Start(ctx)
		logger.Info("Lead intake started", zap.String("topic", cfg.IntakeTopic), zap.String("group", cfg.IntakeGroup))
	}

	authInterceptor := auth.NewAuthInterceptor(cfg.JWTSecret)
	server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger, grpc.ChainUnaryInterceptor(
		grpc_prometheus.UnaryServerInterceptor,
		authInterceptor.Unary(),
	))
	server.RegisterGRPCHandler(handlers.NewLeadHandler(services.Leads, logger))

	httpHandler := handlers.NewHTTPHandler(handlers.ControllersOf(services), logger)
	if err := server.RegisterHTTPGateway(httpHandler, cfg.JWTSecret); err != nil {
		logger.Fatal("Failed to register HTTP gateway", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	waitForShutdown(server, errChan, logger)
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

// connectDatabase opens the repository and runs its migrations, retrying
// while the database is starting up.
func connectDatabase(cfg *db.Config, logger *zap.Logger) (*db.Repository, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = time.Minute

	var repo *db.Repository
	err := backoff.RetryNotify(func() error {
		var err error
		repo, err = db.NewRepository(cfg)
		return err
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("Database not ready, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	return repo, err
}

func initStorage(cfg *storage.Config, logger *zap.Logger) (*storage.DocumentStore, error) {
	store, err := storage.New(*cfg, logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// waitForShutdown blocks until an interrupt or SIGTERM is received or the
// servers fail, then shuts the servers down.
func waitForShutdown(server *handlers.Server, errChan <-chan error, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	server.Stop()
	logger.Info("Servers stopped properly")
}
