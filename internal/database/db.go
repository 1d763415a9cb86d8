package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wbpmisueso/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrBackendUnavailable marks database or cache I/O failures. Callers may retry.
var ErrBackendUnavailable = errors.New("backend unavailable")

// Unavailable wraps a storage error so that errors.Is matches both
// ErrBackendUnavailable and the driver error.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBackendUnavailable, err)
}

type Options struct {
	Driver      string // "postgres" or "sqlite"
	DSN         string
	MaxAttempts int
	RetryDelay  time.Duration
	Quiet       bool
}

func Open(ctx context.Context, opts Options) (*gorm.DB, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	// TranslateError maps unique violations onto gorm.ErrDuplicatedKey
	gcfg := &gorm.Config{TranslateError: true}
	if opts.Quiet {
		gcfg.Logger = logger.Default.LogMode(logger.Silent)
	} else {
		gcfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 1; i <= opts.MaxAttempts; i++ {
		slog.Info("connecting to database", "driver", opts.Driver, "attempt", i, "max_attempts", opts.MaxAttempts)

		db, err = gorm.Open(dialector(opts), gcfg)
		if err == nil {
			break
		}

		slog.Warn("failed to connect to database", "error", err)
		if i == opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, Unavailable("connect", ctx.Err())
		case <-time.After(opts.RetryDelay):
		}
	}
	if err != nil {
		return nil, Unavailable(fmt.Sprintf("connect after %d attempts", opts.MaxAttempts), err)
	}

	if opts.Driver == "sqlite" {
		if err := configureSQLite(db); err != nil {
			return nil, Unavailable("configure sqlite", err)
		}
	}

	return db, nil
}

func dialector(opts Options) gorm.Dialector {
	if opts.Driver == "postgres" {
		return postgres.Open(opts.DSN)
	}
	return sqlite.Open(opts.DSN)
}

// SQLite allows one writer, so the pool is pinned to a single connection and
// concurrent transactions queue on it instead of failing with SQLITE_BUSY.
func configureSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func Migrate(db *gorm.DB) error {
	tables := append(models.Domain(), &models.SchemaMigration{})
	if err := db.AutoMigrate(tables...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Vendor reports the SQL dialect of the connection as the reconciler sees it.
func Vendor(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "postgresql"
	case "sqlite":
		return "sqlite"
	default:
		return db.Dialector.Name()
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}
