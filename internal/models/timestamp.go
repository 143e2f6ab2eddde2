package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the fixed-offset ISO layout used for every record boundary,
// e.g. "2024-02-06T23:59:59+01:00". UTC renders as "Z".
const TimestampLayout = "2006-01-02T15:04:05Z07:00"

// Timestamp is a zone-aware instant with second precision.
// The zero value is the zero time in UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp pins t to loc and truncates it to the second.
// A nil loc keeps t's own location.
func NewTimestamp(t time.Time, loc *time.Location) Timestamp {
	if loc != nil {
		t = t.In(loc)
	}
	return Timestamp{Time: t.Truncate(time.Second)}
}

// ParseTimestamp parses a TimestampLayout string. The resulting location is a
// fixed zone carrying the parsed offset.
func ParseTimestamp(s string) (Timestamp, error) {
	var ts Timestamp
	if err := ts.Parse(s); err != nil {
		return Timestamp{}, err
	}
	return ts, nil
}

// Parse parses s in TimestampLayout, falling back to RFC 3339 with fractional seconds.
func (t *Timestamp) Parse(s string) error {
	parsed, err := time.Parse(TimestampLayout, s)
	if err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err2 := time.Parse(time.RFC3339Nano, s)
	if err2 == nil {
		t.Time = parsed.Truncate(time.Second)
		return nil
	}
	return fmt.Errorf("cannot parse timestamp %q: %w", s, err)
}

// String formats the timestamp in TimestampLayout.
func (t Timestamp) String() string {
	return t.Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(TimestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return t.Parse(s)
}

// StartOfDay returns local midnight of the calendar day containing t, in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextDay returns midnight of the calendar day after the one containing t.
// Uses calendar arithmetic so DST transitions do not shift the boundary.
func NextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last whole second of the calendar day containing t.
func EndOfDay(t time.Time) time.Time {
	return NextDay(t).Add(-time.Second)
}

// SameDay reports whether a and b fall on the same calendar day in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
