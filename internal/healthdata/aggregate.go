package healthdata

import (
	"sort"
	"time"

	"github.com/claude/healthbridge/internal/models"
)

// AggregateSamples buckets samples of one kind into daily periods over [start, end).
// Days are calendar days in start's location, and a sample belongs to the day
// its start falls on. The first bucket is clipped to start and the last to end,
// matching what a period-grouped platform query returns.
func AggregateSamples(samples []models.Sample, kind models.Kind, start, end time.Time) []models.Period {
	loc := start.Location()
	sums := make(map[time.Time]float64)

	for _, s := range samples {
		if s.Kind != kind || s.Start.Before(start) || !s.Start.Before(end) {
			continue
		}
		sums[models.StartOfDay(s.Start.In(loc))] += s.Value
	}

	periods := make([]models.Period, 0, len(sums))
	for day, total := range sums {
		periods = append(periods, DailyPeriod(day, total, start, end))
	}
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].Start.Before(periods[j].Start)
	})
	return periods
}

// DailyPeriod builds the bucket for the calendar day starting at day,
// clipped to [start, end).
func DailyPeriod(day time.Time, total float64, start, end time.Time) models.Period {
	p := models.Period{Start: day, End: models.NextDay(day), Total: &total}
	if p.Start.Before(start) {
		p.Start = start
	}
	if p.End.After(end) {
		p.End = end
	}
	return p
}

// SessionsWithin returns sessions overlapping [start, end), ordered by start.
func SessionsWithin(sessions []models.Session, start, end time.Time) []models.Session {
	out := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.End.After(start) && s.Start.Before(end) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
