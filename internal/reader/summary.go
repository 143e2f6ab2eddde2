package reader

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/claude/healthbridge/internal/models"
	"github.com/claude/healthbridge/internal/series"
)

// Summary is the at-a-glance view: today's value of each daily metric and
// the most recent sleep block.
type Summary struct {
	Days              int                  `json:"days"`
	Steps             *models.MetricRecord `json:"steps"`
	ActiveMinutes     *models.MetricRecord `json:"active_minutes"`
	Distance          *models.MetricRecord `json:"distance"`
	LastSleep         *models.MetricRecord `json:"last_sleep"`
	LastSleepDuration string               `json:"last_sleep_duration"`
	SleepMinutes      float64              `json:"sleep_minutes"`
}

// Summary reads every metric over the last days and keeps the final record
// of each. A metric whose read degraded to no data is left nil. The four
// reads run concurrently; the first cancellation error is returned.
func (r *Reader) Summary(ctx context.Context, days int) (*Summary, error) {
	if days < 1 || days > MaxDays {
		return nil, ErrInvalidDays
	}
	s := &Summary{Days: days}

	targets := []struct {
		kind models.Kind
		dst  **models.MetricRecord
	}{
		{models.KindSteps, &s.Steps},
		{models.KindActiveMinutes, &s.ActiveMinutes},
		{models.KindDistance, &s.Distance},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			records, err := r.ReadSeries(gctx, t.kind, days)
			if err != nil {
				return fmt.Errorf("summarizing %s: %w", t.kind, err)
			}
			*t.dst = last(records)
			return nil
		})
	}

	var blocks []models.MetricRecord
	g.Go(func() error {
		var err error
		blocks, err = r.ReadSleep(gctx, days)
		if err != nil {
			return fmt.Errorf("summarizing sleep: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.LastSleep = last(blocks)
	s.SleepMinutes = series.Minutes(blocks)
	if s.LastSleep != nil {
		s.LastSleepDuration = FormatMinutes(s.LastSleep.Value)
	}
	return s, nil
}

// FormatMinutes renders a minute count as HH:MM.
func FormatMinutes(minutes float64) string {
	m := int64(minutes)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func last(records []models.MetricRecord) *models.MetricRecord {
	if len(records) == 0 {
		return nil
	}
	rec := records[len(records)-1]
	return &rec
}
