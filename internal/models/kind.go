package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a metric kind name is not recognized.
var ErrUnknownKind = errors.New("unknown metric kind")

// Kind identifies which fitness metric a record carries.
type Kind int

const (
	KindSteps Kind = iota
	KindActiveMinutes
	KindDistance
	KindSleep
)

// Kinds lists every metric kind in display order.
var Kinds = []Kind{KindSteps, KindActiveMinutes, KindDistance, KindSleep}

var kindNames = map[Kind]string{
	KindSteps:         "steps",
	KindActiveMinutes: "active_minutes",
	KindDistance:      "distance",
	KindSleep:         "sleep",
}

var kindUnits = map[Kind]string{
	KindSteps:         "count",
	KindActiveMinutes: "min",
	KindDistance:      "mi",
	KindSleep:         "min",
}

// String returns the lowercase wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Unit returns the display unit of values of this kind after normalization.
func (k Kind) Unit() string {
	return kindUnits[k]
}

// IsDaily reports whether the kind is reconciled into a daily series
// (as opposed to merged sleep blocks).
func (k Kind) IsDaily() bool {
	return k == KindSteps || k == KindActiveMinutes || k == KindDistance
}

// ParseKind maps a kind name to a Kind. Accepts the wire names ("steps",
// "active_minutes", ...) and the upper-case enum names ("STEPS", "MINS"),
// case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "steps":
		return KindSteps, nil
	case "active_minutes", "mins", "minutes":
		return KindActiveMinutes, nil
	case "distance":
		return KindDistance, nil
	case "sleep":
		return KindSleep, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(name), nil
}

func (k *Kind) UnmarshalText(data []byte) error {
	parsed, err := ParseKind(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalJSON keeps map keys and values consistent with MarshalText.
func (k Kind) MarshalJSON() ([]byte, error) {
	text, err := k.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return k.UnmarshalText([]byte(s))
}
