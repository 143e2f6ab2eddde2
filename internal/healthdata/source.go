// Package healthdata defines the contract of the external health-data store the
// reader queries, plus the helpers shared by its implementations.
package healthdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/claude/healthbridge/internal/models"
)

// ErrNoResponse reports that the source produced no result object at all.
// Readers treat it (and any other query error) as "no data".
var ErrNoResponse = errors.New("health data source returned no response")

// Availability is the state of the health-data source on this deployment.
type Availability int

const (
	Available Availability = iota
	Unavailable
	UpdateRequired
)

var availabilityNames = map[Availability]string{
	Available:      "available",
	Unavailable:    "unavailable",
	UpdateRequired: "update_required",
}

func (a Availability) String() string {
	if name, ok := availabilityNames[a]; ok {
		return name
	}
	return fmt.Sprintf("availability(%d)", int(a))
}

func (a Availability) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Availability) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, name := range availabilityNames {
		if name == s {
			*a = k
			return nil
		}
	}
	return fmt.Errorf("unknown availability %q", s)
}

// Permission is a read grant the source can hold for this application.
type Permission string

const (
	PermissionReadSteps    Permission = "read_steps"
	PermissionReadSleep    Permission = "read_sleep"
	PermissionReadDistance Permission = "read_distance"
	PermissionReadExercise Permission = "read_exercise"
)

// RequiredPermissions is the full set of grants every read needs.
var RequiredPermissions = []Permission{
	PermissionReadSteps,
	PermissionReadSleep,
	PermissionReadDistance,
	PermissionReadExercise,
}

// ParsePermission validates a permission name.
func ParsePermission(s string) (Permission, error) {
	for _, p := range RequiredPermissions {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// Source is the external health-data store.
//
// AggregateDaily returns one bucket per local calendar day that has data,
// ordered by start; days without data are simply absent. Totals are in the
// kind's native unit: step count, exercise seconds, or meters.
type Source interface {
	Availability(ctx context.Context) Availability
	GrantedPermissions(ctx context.Context) ([]Permission, error)
	AggregateDaily(ctx context.Context, kind models.Kind, start, end time.Time) ([]models.Period, error)
	ReadSleepSessions(ctx context.Context, start, end time.Time) ([]models.Session, error)
}

// Writer is implemented by sources that accept raw observations.
type Writer interface {
	InsertSamples(ctx context.Context, samples []models.Sample) (int64, error)
	InsertSleepSessions(ctx context.Context, sessions []models.Session) (int64, error)
}

// PermissionGranter is implemented by sources that can record new grants.
type PermissionGranter interface {
	GrantPermissions(ctx context.Context, perms []Permission) error
}

// Status summarizes whether reads can proceed.
type Status struct {
	Availability Availability `json:"availability"`
	Granted      []Permission `json:"granted"`
	Missing      []Permission `json:"missing"`
	AllGranted   bool         `json:"all_granted"`
}

// NewStatus computes granted and missing permissions against RequiredPermissions.
func NewStatus(a Availability, granted []Permission) Status {
	have := make(map[Permission]bool, len(granted))
	for _, p := range granted {
		have[p] = true
	}
	st := Status{Availability: a, Granted: []Permission{}, Missing: []Permission{}}
	for _, p := range RequiredPermissions {
		if have[p] {
			st.Granted = append(st.Granted, p)
		} else {
			st.Missing = append(st.Missing, p)
		}
	}
	st.AllGranted = len(st.Missing) == 0
	return st
}

// Ready reports whether the source is available and fully granted.
func (s Status) Ready() bool {
	return s.Availability == Available && s.AllGranted
}
