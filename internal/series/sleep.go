package series

import (
	"sort"
	"time"

	"github.com/claude/healthbridge/internal/models"
)

// MergeSleep consolidates raw sleep sessions into non-overlapping blocks.
// A session that starts at or before the current block's end joins the block;
// one that starts strictly later opens a new block. Each record's value is the
// block duration in whole minutes.
//
// With no sessions, a single zero-duration record spanning one second at
// windowStart is returned so callers always have a "last session" to show.
func MergeSleep(raw []models.Session, windowStart time.Time) []models.MetricRecord {
	loc := windowStart.Location()
	if len(raw) == 0 {
		return []models.MetricRecord{{
			Value:       0,
			Kind:        models.KindSleep,
			PeriodStart: models.NewTimestamp(windowStart, loc),
			PeriodEnd:   models.NewTimestamp(windowStart.Add(time.Second), loc),
		}}
	}

	sessions := make([]models.Session, len(raw))
	copy(sessions, raw)
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Start.Before(sessions[j].Start)
	})

	var blocks []models.MetricRecord
	start, end := sessions[0].Start, sessions[0].End

	for _, s := range sessions[1:] {
		if s.Start.After(end) {
			blocks = append(blocks, sleepBlock(start, end, loc))
			start, end = s.Start, s.End
			continue
		}
		if !s.End.Before(end) {
			end = s.End
		}
	}
	blocks = append(blocks, sleepBlock(start, end, loc))

	return blocks
}

func sleepBlock(start, end time.Time, loc *time.Location) models.MetricRecord {
	return models.MetricRecord{
		Value:       float64(int64(end.Sub(start) / time.Minute)),
		Kind:        models.KindSleep,
		PeriodStart: models.NewTimestamp(start, loc),
		PeriodEnd:   models.NewTimestamp(end, loc),
	}
}

// Minutes sums the values of a set of sleep blocks.
func Minutes(blocks []models.MetricRecord) float64 {
	var total float64
	for _, b := range blocks {
		total += b.Value
	}
	return total
}
