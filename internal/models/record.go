package models

import (
	"strconv"
	"time"
)

// MetricRecord is one reconciled observation: a daily total for steps,
// active minutes or distance, or one merged sleep block.
type MetricRecord struct {
	Value       float64   `json:"value"`
	Kind        Kind      `json:"kind"`
	PeriodStart Timestamp `json:"period_start"`
	PeriodEnd   Timestamp `json:"period_end"`
}

// FormatValue renders the value in its shortest decimal text form ("1234", "2.5").
func (r MetricRecord) FormatValue() string {
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// Period is one raw aggregation bucket as returned by a health-data source.
// A nil Total means the source reported the bucket without a value.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Total *float64  `json:"total,omitempty"`
}

// TotalOrZero returns Total, or 0 when absent.
func (p Period) TotalOrZero() float64 {
	if p.Total == nil {
		return 0
	}
	return *p.Total
}

// Session is one raw, possibly overlapping sleep observation.
type Session struct {
	ID     string    `json:"id,omitempty"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Source string    `json:"source,omitempty"`
}

// Sample is one raw metric observation kept by a store. Value is in the kind's
// native unit: step count, exercise seconds or meters.
type Sample struct {
	Kind   Kind      `json:"kind"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Value  float64   `json:"value"`
	Source string    `json:"source,omitempty"`
}

// Window is a requested interval [Start, End). Start's location defines the
// calendar days of the window.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the number of calendar days the window touches.
func (w Window) Days() int {
	if !w.End.After(w.Start) {
		return 0
	}
	n := 0
	for day := StartOfDay(w.Start); day.Before(w.End); day = NextDay(day) {
		n++
	}
	return n
}
