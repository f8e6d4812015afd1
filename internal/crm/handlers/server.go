// Package handlers provides the gRPC and HTTP servers of the CRM: the
// crm.v1.LeadService, the JSON admin API on a grpc-gateway mux, spreadsheet
// exports, health and metrics endpoints.
package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gartstein/solarcrm/internal/crm/auth"
	"github.com/gartstein/solarcrm/internal/crm/metrics"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server holds references to both a gRPC server and an HTTP server.
type Server struct {
	grpcServer   *grpc.Server
	health       *health.Server
	httpServer   *http.Server
	logger       *zap.Logger
	grpcEndpoint string
	httpEndpoint string
}

// NewServer constructs a Server with separate endpoints for gRPC and HTTP.
func NewServer(
	grpcPort int,
	httpPort int,
	logger *zap.Logger,
	grpcOpts ...grpc.ServerOption,
) *Server {
	s := &Server{
		grpcServer:   grpc.NewServer(grpcOpts...),
		health:       health.NewServer(),
		httpServer:   &http.Server{ReadHeaderTimeout: 10 * time.Second},
		logger:       logger.Named("server"),
		grpcEndpoint: fmt.Sprintf(":%d", grpcPort),
		httpEndpoint: fmt.Sprintf(":%d", httpPort),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// RegisterGRPCHandler registers the LeadService and initializes its metrics.
func (s *Server) RegisterGRPCHandler(h *LeadHandler) {
	s.grpcServer.RegisterService(&LeadServiceDesc, h)
	grpc_prometheus.Register(s.grpcServer)
	s.health.SetServingStatus(LeadServiceName, healthpb.HealthCheckResponse_SERVING)
}

// RegisterHTTPGateway mounts the admin API on a grpc-gateway mux behind the
// auth middleware, next to the /metrics and /healthz endpoints.
func (s *Server) RegisterHTTPGateway(h *HTTPHandler, jwtSecret string) error {
	mux := runtime.NewServeMux()
	if err := h.Register(mux); err != nil {
		return err
	}

	root := http.NewServeMux()
	root.Handle("/metrics", metrics.Handler())
	root.HandleFunc("/healthz", h.healthz)
	root.Handle("/", auth.HTTPMiddleware(mux, jwtSecret))

	s.httpServer.Handler = root
	s.httpServer.Addr = s.httpEndpoint
	return nil
}

// Start runs the gRPC and HTTP servers concurrently, returning on the first error.
func (s *Server) Start() error {
	var wg sync.WaitGroup
	wg.Add(2)
	errChan := make(chan error, 2)

	go func() {
		defer wg.Done()
		s.logger.Info("Starting gRPC server", zap.String("endpoint", s.grpcEndpoint))
		lis, err := net.Listen("tcp", s.grpcEndpoint)
		if err != nil {
			errChan <- fmt.Errorf("gRPC listen error: %w", err)
			return
		}
		if err := s.grpcServer.Serve(lis); err != nil {
			errChan <- fmt.Errorf("gRPC serve error: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		s.logger.Info("Starting HTTP server", zap.String("endpoint", s.httpEndpoint))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP serve error: %w", err)
		}
	}()

	go func() {
		wg.Wait()
		close(errChan)
	}()

	for err := range errChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down both gRPC and HTTP servers.
func (s *Server) Stop() {
	s.logger.Info("Shutting down servers...")
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	s.grpcServer.GracefulStop()

	s.logger.Info("Servers stopped")
}
