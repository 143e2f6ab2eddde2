package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/healthbridge/internal/models"
)

// InsertSleepSessions batch-inserts raw sleep sessions. Sessions without an
// ID get a random UUID. Returns count inserted.
func (db *DB) InsertSleepSessions(ctx context.Context, sessions []models.Session) (int64, error) {
	var inserted int64
	for _, b := range batches(len(sessions), maxBatchRows) {
		chunk := sessions[b[0]:b[1]]
		args := make([]any, 0, len(chunk)*4)
		for _, s := range chunk {
			id, err := sessionID(s.ID)
			if err != nil {
				return inserted, err
			}
			args = append(args, id, s.Start, s.End, s.Source)
		}

		query := `INSERT INTO sleep_sessions (id, start_time, end_time, source) VALUES ` +
			placeholders(len(chunk), 4) + ` ON CONFLICT DO NOTHING`
		tag, err := db.Pool.Exec(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("inserting sleep sessions: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ReadSleepSessions retrieves sessions overlapping [start, end), ordered by start.
func (db *DB) ReadSleepSessions(ctx context.Context, start, end time.Time) ([]models.Session, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, start_time, end_time, source
		 FROM sleep_sessions
		 WHERE end_time > $1 AND start_time < $2
		 ORDER BY start_time ASC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("querying sleep sessions: %w", err)
	}
	defer rows.Close()

	var result []models.Session
	for rows.Next() {
		var (
			s  models.Session
			id uuid.UUID
		)
		if err := rows.Scan(&id, &s.Start, &s.End, &s.Source); err != nil {
			return nil, fmt.Errorf("scanning sleep session: %w", err)
		}
		s.ID = id.String()
		result = append(result, s)
	}
	return result, rows.Err()
}

// sessionID parses a caller-supplied id or generates a new one.
func sessionID(id string) (uuid.UUID, error) {
	if id == "" {
		return uuid.New(), nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("sleep session id %q: %w", id, err)
	}
	return parsed, nil
}
