package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gartstein/solarcrm/internal/crm/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
GRPC_PORT: 6000
HTTP_PORT: 7000
DB_DRIVER: sqlite
DB_PATH: /tmp/crm.db
KAFKA_BROKERS: [kafka-1:9092]
JWT_SECRET: from-file
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.GRPCPort)
	assert.Equal(t, 7000, cfg.HTTPPort)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, "crm-events", cfg.Topic, "defaults fill missing keys")

	dbCfg := cfg.Database()
	assert.Equal(t, db.DriverSQLite, dbCfg.Driver)
	assert.Equal(t, "/tmp/crm.db", dbCfg.Path)
	assert.Nil(t, cfg.Storage(), "no endpoint, no document store")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeConfig(t, "GRPC_PORT: [unclosed"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeConfig(t, "GRPC_PORT: [not, a, port]\nJWT_SECRET: s"))
	assert.ErrorContains(t, err, "failed to unmarshal config")

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HTTP_PORT", "eighty")
	_, err = Load("")
	assert.ErrorContains(t, err, "HTTP_PORT")
}

func TestLoadFromEnvOnly(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_BUCKET", "docs")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, db.DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 6543, cfg.DBPort)
	assert.Equal(t, 50051, cfg.GRPCPort)
	assert.Empty(t, cfg.KafkaBrokers)
	store := cfg.Storage()
	require.NotNil(t, store)
	assert.Equal(t, "minio:9000", store.Endpoint)
	assert.Equal(t, "docs", store.Bucket)
	assert.False(t, store.UseSSL)

	t.Setenv("MINIO_USE_SSL", "maybe")
	_, err = Load("")
	assert.ErrorContains(t, err, "MINIO_USE_SSL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "JWT_SECRET is required"},
		{name: "unknown driver", mutate: func(c *Config) { c.DBDriver = "mysql" }, wantErr: `unsupported DB_DRIVER "mysql"`},
		{name: "postgres without host", mutate: func(c *Config) { c.DBHost = "" }, wantErr: "DB_HOST and DB_NAME"},
		{name: "sqlite needs no host", mutate: func(c *Config) { c.DBDriver = db.DriverSQLite; c.DBHost = "" }},
		{name: "intake without brokers", mutate: func(c *Config) { c.IntakeTopic = "leads" }, wantErr: "INTAKE_TOPIC requires KAFKA_BROKERS"},
		{name: "bad port", mutate: func(c *Config) { c.GRPCPort = 0 }, wantErr: "must be positive"},
		{name: "minio without bucket", mutate: func(c *Config) { c.MinioEndpoint = "m:9000"; c.MinioBucket = "" }, wantErr: "MINIO_BUCKET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.JWTSecret = "secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
