package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claude/healthbridge/internal/healthdata"
)

// RequiredSchemaVersion is the migration version this build reads.
const RequiredSchemaVersion = 2

// DB wraps a pgxpool.Pool and implements healthdata.Source, Writer and
// PermissionGranter.
type DB struct {
	Pool *pgxpool.Pool
}

var (
	_ healthdata.Source            = (*DB)(nil)
	_ healthdata.Writer            = (*DB)(nil)
	_ healthdata.PermissionGranter = (*DB)(nil)
)

// New creates a new DB with a connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// RunMigrations applies all pending migrations from the given directory.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Availability reports unavailable when the database cannot be reached and
// update_required when its schema is behind this build or left dirty.
func (db *DB) Availability(ctx context.Context) healthdata.Availability {
	if err := db.Pool.Ping(ctx); err != nil {
		return healthdata.Unavailable
	}
	var (
		version int64
		dirty   bool
	)
	err := db.Pool.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err != nil {
		return healthdata.UpdateRequired
	}
	return schemaAvailability(version, dirty)
}

func schemaAvailability(version int64, dirty bool) healthdata.Availability {
	if dirty || version < RequiredSchemaVersion {
		return healthdata.UpdateRequired
	}
	return healthdata.Available
}
