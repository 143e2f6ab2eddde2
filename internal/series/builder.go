// Package series reconciles raw health-data results into the records the API
// serves: gap-filled daily series and merged sleep blocks.
package series

import (
	"sort"
	"time"

	"github.com/claude/healthbridge/internal/models"
)

// Build turns sparse daily aggregation buckets into one record per calendar day
// of the window. Days without a bucket get a zero-valued placeholder.
//
// Bucket ends are shifted back one second so a record never shares its closing
// instant with the next record's start. The first day of the window always
// starts at window.Start. The final day ends at window.End when window.End
// falls inside it.
func Build(kind models.Kind, raw []models.Period, window models.Window) []models.MetricRecord {
	records, _ := BuildCounted(kind, raw, window)
	return records
}

// BuildCounted is Build that also reports how many of the records are
// zero-valued placeholders for days without a bucket.
func BuildCounted(kind models.Kind, raw []models.Period, window models.Window) ([]models.MetricRecord, int) {
	loc := window.Start.Location()
	firstDay := models.StartOfDay(window.Start)
	periods := sortedWithin(raw, window)

	records := make([]models.MetricRecord, 0, window.Days())
	cursor := firstDay
	filled := 0

	for _, p := range periods {
		start := p.Start.In(loc)
		for cursor.Before(start) {
			records = append(records, placeholder(kind, cursor, window, models.EndOfDay(cursor)))
			filled++
			cursor = models.NextDay(cursor)
		}

		periodStart := start
		if models.SameDay(firstDay, start) || start.Before(window.Start) {
			periodStart = window.Start
		}
		records = append(records, models.MetricRecord{
			Value:       p.TotalOrZero(),
			Kind:        kind,
			PeriodStart: models.NewTimestamp(periodStart, loc),
			PeriodEnd:   models.NewTimestamp(p.End.Add(-time.Second), loc),
		})

		if end := p.End.In(loc); end.After(cursor) {
			cursor = end
		}
	}

	for cursor.Before(window.End) {
		end := models.EndOfDay(cursor)
		if models.SameDay(cursor, window.End) {
			end = window.End
		}
		records = append(records, placeholder(kind, cursor, window, end))
		filled++
		cursor = models.NextDay(cursor)
	}

	return records, filled
}

// placeholder builds a zero record for the day containing cursor.
func placeholder(kind models.Kind, cursor time.Time, window models.Window, end time.Time) models.MetricRecord {
	loc := window.Start.Location()
	start := cursor
	if models.SameDay(window.Start, cursor) {
		start = window.Start
	}
	return models.MetricRecord{
		Value:       0,
		Kind:        kind,
		PeriodStart: models.NewTimestamp(start, loc),
		PeriodEnd:   models.NewTimestamp(end, loc),
	}
}

// sortedWithin returns a start-ordered copy of raw without periods that lie
// wholly outside the window. The caller's slice is left untouched.
func sortedWithin(raw []models.Period, window models.Window) []models.Period {
	out := make([]models.Period, 0, len(raw))
	for _, p := range raw {
		if !p.End.After(window.Start) || !p.Start.Before(window.End) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
