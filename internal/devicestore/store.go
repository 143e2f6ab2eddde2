// Package devicestore is a single-file SQLite health-data store for
// single-device deployments.
package devicestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/models"
)

// SchemaVersion is the user_version this build writes and reads. It equals
// len(schemaSteps).
const SchemaVersion = 2

// schemaSteps are applied in order; step i moves user_version from i to i+1.
var schemaSteps = []string{
	`CREATE TABLE IF NOT EXISTS health_samples (
		kind       TEXT    NOT NULL,
		start_ms   INTEGER NOT NULL,
		end_ms     INTEGER NOT NULL,
		value      REAL    NOT NULL,
		source     TEXT    NOT NULL DEFAULT '',
		UNIQUE (kind, start_ms, end_ms, source)
	);
	CREATE INDEX IF NOT EXISTS idx_health_samples_kind_start ON health_samples (kind, start_ms);
	CREATE TABLE IF NOT EXISTS sleep_sessions (
		id         TEXT    PRIMARY KEY,
		start_ms   INTEGER NOT NULL,
		end_ms     INTEGER NOT NULL,
		source     TEXT    NOT NULL DEFAULT '',
		UNIQUE (start_ms, end_ms, source)
	);`,
	`CREATE TABLE IF NOT EXISTS read_grants (
		permission TEXT PRIMARY KEY,
		granted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,
}

// Store implements healthdata.Source, Writer and PermissionGranter on SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ healthdata.Source            = (*Store)(nil)
	_ healthdata.Writer            = (*Store)(nil)
	_ healthdata.PermissionGranter = (*Store)(nil)
)

// Open opens (or creates) the store at path and brings its schema up to date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening device store: %w", err)
	}
	// One connection serializes writers and keeps PRAGMAs on a single session.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.upgrade(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) upgrade() error {
	version, err := s.userVersion(context.Background())
	if err != nil {
		return err
	}
	for v := version; v < SchemaVersion; v++ {
		if _, err := s.db.Exec(schemaSteps[v]); err != nil {
			return fmt.Errorf("applying schema step %d: %w", v+1, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	}
	return nil
}

func (s *Store) userVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// Availability reports update_required when the file was written by a
// different schema version than this build's.
func (s *Store) Availability(ctx context.Context) healthdata.Availability {
	if err := s.db.PingContext(ctx); err != nil {
		return healthdata.Unavailable
	}
	v, err := s.userVersion(ctx)
	if err != nil {
		return healthdata.Unavailable
	}
	if v != SchemaVersion {
		return healthdata.UpdateRequired
	}
	return healthdata.Available
}

func (s *Store) GrantedPermissions(ctx context.Context) ([]healthdata.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT permission FROM read_grants`)
	if err != nil {
		return nil, fmt.Errorf("querying read grants: %w", err)
	}
	defer rows.Close()

	have := make(map[healthdata.Permission]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning read grant: %w", err)
		}
		have[healthdata.Permission(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var result []healthdata.Permission
	for _, p := range healthdata.RequiredPermissions {
		if have[p] {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *Store) GrantPermissions(ctx context.Context, perms []healthdata.Permission) error {
	for _, p := range perms {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO read_grants (permission) VALUES (?)`, string(p)); err != nil {
			return fmt.Errorf("granting %s: %w", p, err)
		}
	}
	return nil
}

// InsertSamples stores raw samples, skipping exact duplicates.
func (s *Store) InsertSamples(ctx context.Context, samples []models.Sample) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO health_samples (kind, start_ms, end_ms, value, source) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing sample insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, sm := range samples {
		end := sm.End
		if end.IsZero() {
			end = sm.Start
		}
		res, err := stmt.ExecContext(ctx, sm.Kind.String(), sm.Start.UnixMilli(), end.UnixMilli(), sm.Value, sm.Source)
		if err != nil {
			return 0, fmt.Errorf("inserting sample: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing samples: %w", err)
	}
	return inserted, nil
}

// InsertSleepSessions stores raw sleep sessions, assigning a UUID when absent.
func (s *Store) InsertSleepSessions(ctx context.Context, sessions []models.Session) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	var inserted int64
	for _, ss := range sessions {
		id := ss.ID
		if id == "" {
			id = uuid.NewString()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO sleep_sessions (id, start_ms, end_ms, source) VALUES (?, ?, ?, ?)`,
			id, ss.Start.UnixMilli(), ss.End.UnixMilli(), ss.Source)
		if err != nil {
			return 0, fmt.Errorf("inserting sleep session: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing sleep sessions: %w", err)
	}
	return inserted, nil
}

// AggregateDaily loads the window's samples and buckets them by calendar day
// in start's location.
func (s *Store) AggregateDaily(ctx context.Context, kind models.Kind, start, end time.Time) ([]models.Period, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_ms, end_ms, value FROM health_samples
		 WHERE kind = ? AND start_ms >= ? AND start_ms < ?`,
		kind.String(), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying %s samples: %w", kind, err)
	}
	defer rows.Close()

	var samples []models.Sample
	for rows.Next() {
		var startMs, endMs int64
		sm := models.Sample{Kind: kind}
		if err := rows.Scan(&startMs, &endMs, &sm.Value); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		sm.Start, sm.End = time.UnixMilli(startMs), time.UnixMilli(endMs)
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return healthdata.AggregateSamples(samples, kind, start, end), nil
}

func (s *Store) ReadSleepSessions(ctx context.Context, start, end time.Time) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, start_ms, end_ms, source FROM sleep_sessions
		 WHERE end_ms > ? AND start_ms < ?
		 ORDER BY start_ms ASC`,
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying sleep sessions: %w", err)
	}
	defer rows.Close()

	loc := start.Location()
	var result []models.Session
	for rows.Next() {
		var (
			ss             models.Session
			startMs, endMs int64
		)
		if err := rows.Scan(&ss.ID, &startMs, &endMs, &ss.Source); err != nil {
			return nil, fmt.Errorf("scanning sleep session: %w", err)
		}
		ss.Start, ss.End = time.UnixMilli(startMs).In(loc), time.UnixMilli(endMs).In(loc)
		result = append(result, ss)
	}
	return result, rows.Err()
}
