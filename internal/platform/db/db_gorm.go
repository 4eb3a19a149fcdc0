// Package db opens the gorm connection used for session persistence.
package db

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultConnectTimeout = 60 * time.Second
	retryInterval         = 3 * time.Second
)

// Config holds database connection settings.
type Config struct {
	Driver     string
	User       string
	Password   string
	Name       string
	Host       string
	Port       string
	SSLMode    string
	SQLitePath string
	Migrate    bool
}

// LoadConfigFromEnv reads database settings from environment variables.
// DB_DRIVER defaults to postgres when DB_HOST is set and to sqlite otherwise.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Driver:     os.Getenv("DB_DRIVER"),
		User:       os.Getenv("DB_USER"),
		Password:   os.Getenv("DB_PASSWORD"),
		Name:       os.Getenv("DB_NAME"),
		Host:       os.Getenv("DB_HOST"),
		Port:       os.Getenv("DB_PORT"),
		SSLMode:    os.Getenv("DB_SSLMODE"),
		SQLitePath: os.Getenv("SQLITE_PATH"),
		Migrate:    os.Getenv("RUN_MIGRATIONS") == "true",
	}
	if cfg.Driver == "" {
		if cfg.Host != "" {
			cfg.Driver = DriverPostgres
		} else {
			cfg.Driver = DriverSQLite
		}
	}
	if cfg.Port == "" {
		cfg.Port = "5432"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "emblem.db"
	}
	return cfg
}

// BuildDSN returns the postgres DSN for cfg.
func BuildDSN(cfg Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)
}

// Opener opens a gorm connection for a DSN.
type Opener func(dsn string) (*gorm.DB, error)

// PostgresOpener opens a postgres connection through the pgx driver.
func PostgresOpener(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// SQLiteOpener opens (or creates) a sqlite database file.
func SQLiteOpener(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

// ConnectWithRetry calls opener until it succeeds or timeout elapses.
func ConnectWithRetry(dsn string, timeout time.Duration, opener Opener) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := opener(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().Add(retryInterval).After(deadline) {
			return nil, fmt.Errorf("db connect failed after %s: %w", timeout, err)
		}
		slog.Warn("DB connect failed, retrying", "error", err)
		time.Sleep(retryInterval)
	}
}

// OpenDB connects with cfg and runs AutoMigrate on models when cfg.Migrate is set.
// sqlite databases are always migrated since they are created on first use.
func OpenDB(cfg Config, models ...any) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		db, err = ConnectWithRetry(BuildDSN(cfg), defaultConnectTimeout, PostgresOpener)
	case DriverSQLite:
		db, err = SQLiteOpener(cfg.SQLitePath)
		cfg.Migrate = true
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Migrate && len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	slog.Info("database ready", "driver", cfg.Driver)
	return db, nil
}
