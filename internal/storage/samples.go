package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/models"
)

// maxBatchRows keeps a multi-row INSERT under the 65535 bind parameter limit.
const maxBatchRows = 1000

// InsertSamples batch-inserts raw samples. Returns the number actually inserted
// (skipped duplicates via ON CONFLICT DO NOTHING).
func (db *DB) InsertSamples(ctx context.Context, samples []models.Sample) (int64, error) {
	var inserted int64
	for _, b := range batches(len(samples), maxBatchRows) {
		chunk := samples[b[0]:b[1]]
		args := make([]any, 0, len(chunk)*5)
		for _, s := range chunk {
			end := s.End
			if end.IsZero() {
				end = s.Start
			}
			args = append(args, s.Kind.String(), s.Start, end, s.Value, s.Source)
		}

		query := `INSERT INTO health_samples (kind, start_time, end_time, value, source) VALUES ` +
			placeholders(len(chunk), 5) + ` ON CONFLICT DO NOTHING`
		tag, err := db.Pool.Exec(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("inserting health samples: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// AggregateDaily sums samples per calendar day of start's location. The
// location must carry an IANA name Postgres understands.
func (db *DB) AggregateDaily(ctx context.Context, kind models.Kind, start, end time.Time) ([]models.Period, error) {
	zone, err := zoneName(start.Location())
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT date_trunc('day', start_time AT TIME ZONE $1::text) AT TIME ZONE $1::text AS day,
		        SUM(value)
		 FROM health_samples
		 WHERE kind = $2 AND start_time >= $3 AND start_time < $4
		 GROUP BY day
		 ORDER BY day ASC`,
		zone, kind.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregating %s: %w", kind, err)
	}
	defer rows.Close()

	loc := start.Location()
	var result []models.Period
	for rows.Next() {
		var (
			day   time.Time
			total float64
		)
		if err := rows.Scan(&day, &total); err != nil {
			return nil, fmt.Errorf("scanning daily %s: %w", kind, err)
		}
		result = append(result, healthdata.DailyPeriod(day.In(loc), total, start, end))
	}
	return result, rows.Err()
}

// zoneName returns the IANA name of loc for use in AT TIME ZONE.
func zoneName(loc *time.Location) (string, error) {
	name := loc.String()
	if name == "" || name == "Local" {
		return "", fmt.Errorf("location %q has no IANA name", name)
	}
	return name, nil
}

// placeholders renders "($1,$2),($3,$4)" for rows rows of cols columns.
func placeholders(rows, cols int) string {
	var b strings.Builder
	for i := range rows {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for j := range cols {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", i*cols+j+1)
		}
		b.WriteByte(')')
	}
	return b.String()
}

// batches splits n items into [lo, hi) ranges of at most size.
func batches(n, size int) [][2]int {
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}
