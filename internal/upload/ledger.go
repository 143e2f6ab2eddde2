package upload

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ledgerVersion is the user_version of a ledger this build writes. It equals
// len(ledgerSteps).
const ledgerVersion = 1

// ledgerSteps are applied in order; step i moves user_version from i to i+1.
var ledgerSteps = []string{
	`CREATE TABLE IF NOT EXISTS export_files (
		path             TEXT    PRIMARY KEY,
		size             INTEGER NOT NULL,
		sha256           TEXT    NOT NULL,
		samples_sent     INTEGER NOT NULL DEFAULT 0,
		samples_stored   INTEGER NOT NULL DEFAULT 0,
		sessions_sent    INTEGER NOT NULL DEFAULT 0,
		sessions_stored  INTEGER NOT NULL DEFAULT 0,
		uploaded_ms      INTEGER NOT NULL
	)`,
}

// Fingerprint identifies the content of an export file.
type Fingerprint struct {
	Size   int64
	SHA256 string
}

// FingerprintFile sizes and hashes the file at path.
func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// Entry is the ledger row for one export file, path relative to the export
// directory. Stored counts are what the server reported as new.
type Entry struct {
	Path string
	Fingerprint
	SamplesSent    int64
	SamplesStored  int64
	SessionsSent   int64
	SessionsStored int64
	UploadedAt     time.Time
}

// Totals sums the ledger over every file ever uploaded.
type Totals struct {
	Files          int64
	SamplesStored  int64
	SessionsStored int64
}

// Ledger is a SQLite record of export files already delivered, so reruns
// send only new or changed files.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (or creates) the ledger at dir/ledger.db.
func OpenLedger(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger dir %s: %w", dir, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	var version int
	if err := l.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading ledger version: %w", err)
	}
	if version > ledgerVersion {
		return fmt.Errorf("ledger version %d is newer than supported %d", version, ledgerVersion)
	}
	for v := version; v < ledgerVersion; v++ {
		if _, err := l.db.Exec(ledgerSteps[v]); err != nil {
			return fmt.Errorf("applying ledger step %d: %w", v+1, err)
		}
		if _, err := l.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("setting ledger version: %w", err)
		}
	}
	return nil
}

// Lookup returns the entry for path. ok is false when the file was never uploaded.
func (l *Ledger) Lookup(ctx context.Context, path string) (e Entry, ok bool, err error) {
	var uploadedMs int64
	err = l.db.QueryRowContext(ctx,
		`SELECT path, size, sha256, samples_sent, samples_stored, sessions_sent, sessions_stored, uploaded_ms
		 FROM export_files WHERE path = ?`, path,
	).Scan(&e.Path, &e.Size, &e.SHA256, &e.SamplesSent, &e.SamplesStored, &e.SessionsSent, &e.SessionsStored, &uploadedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("looking up %s: %w", path, err)
	}
	e.UploadedAt = time.UnixMilli(uploadedMs)
	return e, true, nil
}

// Record stores e, replacing any earlier entry for the same path.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO export_files (path, size, sha256, samples_sent, samples_stored, sessions_sent, sessions_stored, uploaded_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (path) DO UPDATE SET
			size = excluded.size, sha256 = excluded.sha256,
			samples_sent = excluded.samples_sent, samples_stored = excluded.samples_stored,
			sessions_sent = excluded.sessions_sent, sessions_stored = excluded.sessions_stored,
			uploaded_ms = excluded.uploaded_ms`,
		e.Path, e.Size, e.SHA256, e.SamplesSent, e.SamplesStored, e.SessionsSent, e.SessionsStored, e.UploadedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", e.Path, err)
	}
	return nil
}

// Totals sums every entry.
func (l *Ledger) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(samples_stored), 0), COALESCE(SUM(sessions_stored), 0) FROM export_files`,
	).Scan(&t.Files, &t.SamplesStored, &t.SessionsStored)
	if err != nil {
		return Totals{}, fmt.Errorf("summing ledger: %w", err)
	}
	return t, nil
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}
