// Package reader queries a health-data source and reconciles the results into
// daily series and sleep blocks.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/models"
	"github.com/claude/healthbridge/internal/observability"
	"github.com/claude/healthbridge/internal/series"
)

// MaxDays is the longest interval a single read may cover.
const MaxDays = 366

const metersPerMile = 1609.344

var (
	// ErrInvalidDays is returned for an interval outside 1..MaxDays.
	ErrInvalidDays = fmt.Errorf("days must be between 1 and %d", MaxDays)
	// ErrNotDaily is returned when a daily series is requested for sleep.
	ErrNotDaily = errors.New("metric kind has no daily series")
)

// Reader reads metrics from a Source. Safe for concurrent use if the Source is.
type Reader struct {
	src healthdata.Source
	loc *time.Location
	log *slog.Logger
	now func() time.Time
}

// Option configures a Reader.
type Option func(*Reader)

// WithClock replaces the wall clock used to compute windows.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

// New creates a Reader over src. Calendar days are taken in loc.
func New(src healthdata.Source, loc *time.Location, log *slog.Logger, opts ...Option) *Reader {
	if loc == nil {
		loc = time.UTC
	}
	r := &Reader{src: src, loc: loc, log: log, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Location returns the zone calendar days are computed in.
func (r *Reader) Location() *time.Location {
	return r.loc
}

// Window returns the interval a read of kind over the last days covers.
// It starts at local midnight days-1 days ago. Steps end one second before
// now; every other kind ends at now.
func (r *Reader) Window(kind models.Kind, days int) (models.Window, error) {
	if days < 1 || days > MaxDays {
		return models.Window{}, ErrInvalidDays
	}
	now := r.now().In(r.loc).Truncate(time.Second)
	y, m, d := now.Date()
	start := time.Date(y, m, d-(days-1), 0, 0, 0, 0, r.loc)

	end := now
	if kind == models.KindSteps {
		end = now.Add(-time.Minute).Add(59 * time.Second)
	}
	return models.Window{Start: start, End: end}, nil
}

// ReadSeries returns one record per calendar day for a daily metric.
// Values are step counts, whole exercise minutes, or miles.
func (r *Reader) ReadSeries(ctx context.Context, kind models.Kind, days int) ([]models.MetricRecord, error) {
	_, records, err := r.ReadSeriesWindow(ctx, kind, days)
	return records, err
}

// ReadSeriesWindow is ReadSeries that also returns the window the records
// were built over.
func (r *Reader) ReadSeriesWindow(ctx context.Context, kind models.Kind, days int) (models.Window, []models.MetricRecord, error) {
	if !kind.IsDaily() {
		return models.Window{}, nil, ErrNotDaily
	}
	w, err := r.Window(kind, days)
	if err != nil {
		return models.Window{}, nil, err
	}

	started := time.Now()
	periods, err := r.src.AggregateDaily(ctx, kind, w.Start, w.End)
	if err != nil {
		records, err := r.degraded(ctx, kind, started, err)
		return w, records, err
	}
	outcome := observability.OutcomeOK
	if len(periods) == 0 {
		outcome = observability.OutcomeEmpty
	}
	observability.RecordSourceQuery(kind.String(), outcome, time.Since(started))

	converted := make([]models.Period, len(periods))
	for i, p := range periods {
		converted[i] = convertPeriod(kind, p)
	}
	records, filled := series.BuildCounted(kind, converted, w)
	observability.RecordPlaceholders(kind.String(), filled)
	return w, records, nil
}

// ReadSteps returns daily step counts.
func (r *Reader) ReadSteps(ctx context.Context, days int) ([]models.MetricRecord, error) {
	return r.ReadSeries(ctx, models.KindSteps, days)
}

// ReadActiveMinutes returns daily exercise minutes.
func (r *Reader) ReadActiveMinutes(ctx context.Context, days int) ([]models.MetricRecord, error) {
	return r.ReadSeries(ctx, models.KindActiveMinutes, days)
}

// ReadDistance returns daily distance in miles.
func (r *Reader) ReadDistance(ctx context.Context, days int) ([]models.MetricRecord, error) {
	return r.ReadSeries(ctx, models.KindDistance, days)
}

// ReadSleep returns merged sleep blocks over the window.
func (r *Reader) ReadSleep(ctx context.Context, days int) ([]models.MetricRecord, error) {
	_, blocks, err := r.ReadSleepWindow(ctx, days)
	return blocks, err
}

// ReadSleepWindow is ReadSleep that also returns the window read.
func (r *Reader) ReadSleepWindow(ctx context.Context, days int) (models.Window, []models.MetricRecord, error) {
	w, err := r.Window(models.KindSleep, days)
	if err != nil {
		return models.Window{}, nil, err
	}

	started := time.Now()
	sessions, err := r.src.ReadSleepSessions(ctx, w.Start, w.End)
	if err != nil {
		blocks, err := r.degraded(ctx, models.KindSleep, started, err)
		return w, blocks, err
	}
	outcome := observability.OutcomeOK
	if len(sessions) == 0 {
		outcome = observability.OutcomeEmpty
	}
	observability.RecordSourceQuery(models.KindSleep.String(), outcome, time.Since(started))

	return w, series.MergeSleep(sessions, w.Start), nil
}

// degraded handles a failed source query. Cancellation is returned to the
// caller; any other failure is logged and reads as "no data".
func (r *Reader) degraded(ctx context.Context, kind models.Kind, started time.Time, err error) ([]models.MetricRecord, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		observability.RecordSourceQuery(kind.String(), observability.OutcomeCanceled, time.Since(started))
		return nil, fmt.Errorf("reading %s: %w", kind, ctxErr)
	}
	observability.RecordSourceQuery(kind.String(), observability.OutcomeError, time.Since(started))
	r.log.Warn("health data query failed", "kind", kind.String(), "error", err)
	return []models.MetricRecord{}, nil
}

// Status reports source availability and which grants are missing.
// A failed grant lookup is logged and counts as no grants.
func (r *Reader) Status(ctx context.Context) healthdata.Status {
	a := r.src.Availability(ctx)
	if a != healthdata.Available {
		return healthdata.NewStatus(a, nil)
	}
	granted, err := r.src.GrantedPermissions(ctx)
	if err != nil {
		r.log.Warn("reading granted permissions", "error", err)
		granted = nil
	}
	return healthdata.NewStatus(a, granted)
}

func convertPeriod(kind models.Kind, p models.Period) models.Period {
	if p.Total == nil {
		return p
	}
	v := *p.Total
	switch kind {
	case models.KindActiveMinutes:
		v = float64(int64(v) / 60)
	case models.KindDistance:
		v = v / metersPerMile
	}
	p.Total = &v
	return p
}
