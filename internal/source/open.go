// Package source opens the health-data backend selected by configuration.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/claude/healthbridge/internal/config"
	"github.com/claude/healthbridge/internal/devicestore"
	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/storage"
)

// Open connects the configured driver and returns the source with a close
// function. Postgres migrations are applied first when migrate is true.
func Open(ctx context.Context, cfg *config.Config, migrate bool, log *slog.Logger) (healthdata.Source, func(), error) {
	switch cfg.Source.Driver {
	case config.DriverPostgres:
		dsn := cfg.Database.DSN()
		if migrate {
			if err := storage.RunMigrations(dsn, cfg.Database.Migrations); err != nil {
				return nil, nil, fmt.Errorf("running migrations: %w", err)
			}
			log.Info("migrations applied")
		}
		db, err := storage.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting database: %w", err)
		}
		log.Info("database connected")
		return db, db.Close, nil

	case config.DriverSQLite:
		store, err := devicestore.Open(cfg.Source.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening device store: %w", err)
		}
		log.Info("device store opened", "path", cfg.Source.SQLitePath)
		return store, func() { _ = store.Close() }, nil

	case config.DriverMemory:
		log.Warn("using in-memory source; data is lost on exit")
		return healthdata.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown source driver %q", cfg.Source.Driver)
}
