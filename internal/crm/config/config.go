// Package config loads the service configuration from a YAML file, an
// optional .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/gartstein/solarcrm/internal/crm/db"
	"github.com/gartstein/solarcrm/internal/crm/storage"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config struct for YAML configuration. Every key can be overridden by an
// environment variable of the same name.
type Config struct {
	GRPCPort int `mapstructure:"GRPC_PORT"`
	HTTPPort int `mapstructure:"HTTP_PORT"`

	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	DBPath     string `mapstructure:"DB_PATH"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	Topic        string   `mapstructure:"TOPIC"`
	// IntakeTopic enables the lead intake consumer when set.
	IntakeTopic string `mapstructure:"INTAKE_TOPIC"`
	IntakeGroup string `mapstructure:"INTAKE_GROUP"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	// MinioEndpoint enables contract document storage when set.
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`
}

// Default returns the configuration used for keys nobody sets.
func Default() *Config {
	return &Config{
		GRPCPort:    50051,
		HTTPPort:    8080,
		DBDriver:    db.DriverPostgres,
		DBHost:      "localhost",
		DBPort:      5432,
		DBUser:      "postgres",
		DBName:      "crm",
		DBSSLMode:   "disable",
		Topic:       "crm-events",
		IntakeGroup: "crm-lead-intake",
		MinioBucket: "crm-documents",
	}
}

func (c *Config) setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"GRPC_PORT":        c.GRPCPort,
		"HTTP_PORT":        c.HTTPPort,
		"DB_DRIVER":        c.DBDriver,
		"DB_HOST":          c.DBHost,
		"DB_PORT":          c.DBPort,
		"DB_USER":          c.DBUser,
		"DB_PASSWORD":      c.DBPassword,
		"DB_NAME":          c.DBName,
		"DB_SSLMODE":       c.DBSSLMode,
		"DB_PATH":          c.DBPath,
		"KAFKA_BROKERS":    c.KafkaBrokers,
		"TOPIC":            c.Topic,
		"INTAKE_TOPIC":     c.IntakeTopic,
		"INTAKE_GROUP":     c.IntakeGroup,
		"JWT_SECRET":       c.JWTSecret,
		"MINIO_ENDPOINT":   c.MinioEndpoint,
		"MINIO_ACCESS_KEY": c.MinioAccessKey,
		"MINIO_SECRET_KEY": c.MinioSecretKey,
		"MINIO_BUCKET":     c.MinioBucket,
		"MINIO_USE_SSL":    c.MinioUseSSL,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads path (if non-empty), then .env in the working directory (if
// present), then the process environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	Default().setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = lo.Compact(lo.Map(cfg.KafkaBrokers, func(b string, _ int) string {
		return strings.TrimSpace(b)
	}))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if c.GRPCPort <= 0 || c.HTTPPort <= 0 {
		problems = append(problems, "GRPC_PORT and HTTP_PORT must be positive")
	}
	switch c.DBDriver {
	case db.DriverPostgres:
		if c.DBHost == "" || c.DBName == "" {
			problems = append(problems, "DB_HOST and DB_NAME are required for postgres")
		}
	case db.DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.IntakeTopic != "" && len(c.KafkaBrokers) == 0 {
		problems = append(problems, "INTAKE_TOPIC requires KAFKA_BROKERS")
	}
	if c.MinioEndpoint != "" && c.MinioBucket == "" {
		problems = append(problems, "MINIO_BUCKET is required with MINIO_ENDPOINT")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Database returns the repository settings.
func (c *Config) Database() *db.Config {
	return &db.Config{
		Driver:   c.DBDriver,
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		DBName:   c.DBName,
		SSLMode:  c.DBSSLMode,
		Path:     c.DBPath,
	}
}

// Storage returns the document store settings, or nil when no endpoint
// is configured.
func (c *Config) Storage() *storage.Config {
	if c.MinioEndpoint == "" {
		return nil
	}
	return &storage.Config{
		Endpoint:  c.MinioEndpoint,
		AccessKey: c.MinioAccessKey,
		SecretKey: c.MinioSecretKey,
		Bucket:    c.MinioBucket,
		UseSSL:    c.MinioUseSSL,
	}
}
