// Package migrate applies the embedded schema migrations.
package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Runner wraps a golang-migrate instance bound to the embedded migrations.
type Runner struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// New builds a Runner for the given PostgreSQL DSN.
func New(migrations fs.FS, dsn string, logger *slog.Logger) (*Runner, error) {
	source, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("platform/migrate: source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, DatabaseURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("platform/migrate: init: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{m: m, logger: logger}, nil
}

// DatabaseURL rewrites a postgres:// DSN to the pgx5:// scheme the driver registers.
func DatabaseURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	if err := r.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("platform/migrate: up: %w", err)
	}
	r.logVersion("migrations applied")
	return nil
}

// Down rolls back a single migration step.
func (r *Runner) Down() error {
	if err := r.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("platform/migrate: down: %w", err)
	}
	r.logVersion("migration rolled back")
	return nil
}

// Close releases the source and database handles.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (r *Runner) logVersion(msg string) {
	version, dirty, err := r.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		r.logger.Warn("read migration version", slog.Any("error", err))
		return
	}
	r.logger.Info(msg, slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
}
