// Package upload pushes exported health observations to a healthbridge
// server's ingest endpoint, remembering which export files were already sent.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/claude/healthbridge/internal/models"
)

// Sample is one exported observation. Kind stays textual so files are
// validated the same way the server validates them.
type Sample struct {
	Kind   string    `json:"kind"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end,omitzero"`
	Value  float64   `json:"value"`
	Source string    `json:"source,omitempty"`
}

// Payload is both the export file format and the ingest request body.
type Payload struct {
	Samples       []Sample         `json:"samples,omitempty"`
	SleepSessions []models.Session `json:"sleep_sessions,omitempty"`
}

// Len returns the number of records in the payload.
func (p Payload) Len() int {
	return len(p.Samples) + len(p.SleepSessions)
}

// Sender delivers one payload. *Client is the production implementation.
type Sender interface {
	SendPayload(ctx context.Context, payload Payload) (samples, sessions int64, err error)
}

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	SamplesSent       int
	SleepSessionsSent int

	SamplesStored       int64
	SleepSessionsStored int64
}

// Uploader walks an export directory, validates *.json payload files, and
// POSTs them to the healthbridge server in batches.
type Uploader struct {
	sender    Sender
	ledger    *Ledger
	dir       string
	dryRun    bool
	batchSize int
	log       *slog.Logger
	stats     Stats
}

// New creates a new Uploader. sender may be nil in dry-run mode.
func New(sender Sender, ledger *Ledger, dir string, dryRun bool, batchSize int, log *slog.Logger) *Uploader {
	if batchSize < 1 {
		batchSize = 1000
	}
	return &Uploader{
		sender:    sender,
		ledger:    ledger,
		dir:       dir,
		dryRun:    dryRun,
		batchSize: batchSize,
		log:       log,
	}
}

// Run uploads every new export file under the directory, in path order.
// A file that fails to send aborts the run; files that fail to parse are
// counted and skipped.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	var files []string
	err := filepath.WalkDir(u.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".json" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return &u.stats, fmt.Errorf("walking %s: %w", u.dir, err)
	}
	sort.Strings(files)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &u.stats, err
		}
		if err := u.processFile(ctx, f); err != nil {
			return &u.stats, err
		}
	}
	return &u.stats, nil
}

func (u *Uploader) processFile(ctx context.Context, path string) error {
	u.stats.FilesTotal++

	relPath, _ := filepath.Rel(u.dir, path)
	fp, err := FingerprintFile(path)
	if err != nil {
		u.log.Warn("hash failed", "file", path, "error", err)
		u.stats.FilesErrored++
		return nil
	}

	prev, seen, err := u.ledger.Lookup(ctx, relPath)
	if err != nil {
		u.log.Warn("ledger lookup failed", "file", path, "error", err)
		u.stats.FilesErrored++
		return nil
	}
	if seen && prev.Fingerprint == fp {
		u.stats.FilesSkipped++
		return nil
	}
	if seen {
		u.log.Info("export changed since last upload, resending", "file", relPath, "uploaded_at", prev.UploadedAt)
	}

	payload, err := readPayload(path)
	if err != nil {
		u.log.Warn("parse failed", "file", path, "error", err)
		u.stats.FilesErrored++
		return nil
	}

	entry := Entry{Path: relPath, Fingerprint: fp}
	if payload.Len() == 0 {
		u.stats.FilesSkipped++
		// Empty files are recorded so they are not parsed again.
		if !u.dryRun {
			if err := u.ledger.Record(ctx, entry); err != nil {
				u.log.Warn("failed to record empty file", "file", relPath, "error", err)
			}
		}
		return nil
	}

	for _, batch := range Split(payload, u.batchSize) {
		if u.dryRun {
			u.log.Info("dry-run: would send",
				"file", relPath,
				"samples", len(batch.Samples),
				"sleep_sessions", len(batch.SleepSessions),
			)
		} else {
			samples, sessions, err := u.sender.SendPayload(ctx, batch)
			if err != nil {
				return fmt.Errorf("sending %s: %w", relPath, err)
			}
			entry.SamplesStored += samples
			entry.SessionsStored += sessions
			u.stats.SamplesStored += samples
			u.stats.SleepSessionsStored += sessions
		}
		entry.SamplesSent += int64(len(batch.Samples))
		entry.SessionsSent += int64(len(batch.SleepSessions))
		u.stats.SamplesSent += len(batch.Samples)
		u.stats.SleepSessionsSent += len(batch.SleepSessions)
	}

	if !u.dryRun {
		if err := u.ledger.Record(ctx, entry); err != nil {
			u.log.Warn("failed to record upload", "file", relPath, "error", err)
		}
	}
	u.stats.FilesUploaded++

	u.log.Info("uploaded file",
		"file", relPath,
		"samples", entry.SamplesSent,
		"samples_new", entry.SamplesStored,
		"sleep_sessions", entry.SessionsSent,
		"sleep_sessions_new", entry.SessionsStored,
	)
	return nil
}

// readPayload decodes and validates one export file.
func readPayload(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, err
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decoding: %w", err)
	}
	for i, s := range p.Samples {
		kind, err := models.ParseKind(s.Kind)
		if err != nil {
			return Payload{}, fmt.Errorf("samples[%d]: %w", i, err)
		}
		if !kind.IsDaily() {
			return Payload{}, fmt.Errorf("samples[%d]: sleep must be exported as sleep_sessions", i)
		}
		if s.Start.IsZero() {
			return Payload{}, fmt.Errorf("samples[%d]: start is required", i)
		}
		if !s.End.IsZero() && s.End.Before(s.Start) {
			return Payload{}, fmt.Errorf("samples[%d]: end before start", i)
		}
	}
	for i, ss := range p.SleepSessions {
		if ss.Start.IsZero() || ss.End.Before(ss.Start) {
			return Payload{}, fmt.Errorf("sleep_sessions[%d]: invalid interval", i)
		}
	}
	return p, nil
}

// Split cuts a payload into batches of at most size records, samples first.
func Split(p Payload, size int) []Payload {
	var out []Payload
	for i := 0; i < len(p.Samples); i += size {
		end := min(i+size, len(p.Samples))
		out = append(out, Payload{Samples: p.Samples[i:end]})
	}
	for i := 0; i < len(p.SleepSessions); i += size {
		end := min(i+size, len(p.SleepSessions))
		out = append(out, Payload{SleepSessions: p.SleepSessions[i:end]})
	}
	return out
}
