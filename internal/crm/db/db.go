// Package db implements the CRM repository on top of GORM. Every table
// keeps soft-deleted rows visible; callers opt into the active-only view
// explicitly through the list filters.
package db

import (
	"context"
	"errors"
	"fmt"

	e "github.com/gartstein/solarcrm/internal/crm/errors"
	rows "github.com/gartstein/solarcrm/internal/crm/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Repository struct {
	db *gorm.DB
}

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the SQLite database file, used when Driver is sqlite.
	Path string
}

// NewRepository connects to the configured database and migrates the schema.
func NewRepository(cfg *Config) (*Repository, error) {
	switch cfg.Driver {
	case "", DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		return open(postgres.Open(dsn), 0)
	case DriverSQLite:
		return NewSQLiteRepository(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLiteRepository opens a SQLite database with foreign keys enforced.
// SQLite serializes writers, so the pool is limited to one connection;
// an empty path opens a private in-memory database.
func NewSQLiteRepository(path string) (*Repository, error) {
	if path == "" {
		path = ":memory:"
	}
	return open(sqlite.Open("file:"+path+"?_foreign_keys=on"), 1)
}

func open(dialector gorm.Dialector, maxConns int) (*Repository, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if maxConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to configure connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(maxConns)
	}

	if err := db.AutoMigrate(rows.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

// Ping checks that the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// first loads a row by primary key into dst.
func (r *Repository) first(ctx context.Context, dst interface{}, id interface{}) error {
	result := r.db.WithContext(ctx).First(dst, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return e.ErrNotFound
		}
		return result.Error
	}
	return nil
}

// update writes every mutable column of row; omit names the create-only columns.
func (r *Repository) update(ctx context.Context, row interface{}, omit ...string) error {
	result := r.db.WithContext(ctx).Model(row).
		Select("*").
		Omit(append([]string{"id", "created_at", clause.Associations}, omit...)...).
		Updates(row)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) setActive(ctx context.Context, model interface{}, id interface{}, active bool) error {
	result := r.db.WithContext(ctx).Model(model).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) delete(ctx context.Context, model interface{}, id interface{}) error {
	result := r.db.WithContext(ctx).Delete(model, "id = ?", id)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// translate maps driver level constraint failures onto domain errors.
func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", e.ErrDuplicateNumber, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", e.ErrProtected, err)
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%w: %v", e.ErrInvalidInput, err)
	}
	return err
}
