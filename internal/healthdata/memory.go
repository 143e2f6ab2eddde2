package healthdata

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/healthbridge/internal/models"
)

// Memory is an in-process Source for local development and tests.
// All methods are safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	availability Availability
	granted      map[Permission]bool
	samples      []models.Sample
	sessions     []models.Session
	sampleKeys   map[sampleKey]bool
	sessionKeys  map[sessionKey]bool
	failQueries  bool
}

// Compile-time checks.
var (
	_ Source            = (*Memory)(nil)
	_ Writer            = (*Memory)(nil)
	_ PermissionGranter = (*Memory)(nil)
)

// NewMemory returns an available store holding the given grants.
func NewMemory(granted ...Permission) *Memory {
	m := &Memory{
		granted:     make(map[Permission]bool),
		sampleKeys:  make(map[sampleKey]bool),
		sessionKeys: make(map[sessionKey]bool),
	}
	for _, p := range granted {
		m.granted[p] = true
	}
	return m
}

// SetAvailability changes what Availability reports.
func (m *Memory) SetAvailability(a Availability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.availability = a
}

// SetFailing makes every query return ErrNoResponse until reset.
func (m *Memory) SetFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failQueries = fail
}

func (m *Memory) Availability(ctx context.Context) Availability {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.availability
}

func (m *Memory) GrantedPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Permission
	for _, p := range RequiredPermissions {
		if m.granted[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) GrantPermissions(ctx context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		m.granted[p] = true
	}
	return nil
}

func (m *Memory) AggregateDaily(ctx context.Context, kind models.Kind, start, end time.Time) ([]models.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failQueries {
		return nil, ErrNoResponse
	}
	return AggregateSamples(m.samples, kind, start, end), nil
}

func (m *Memory) ReadSleepSessions(ctx context.Context, start, end time.Time) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failQueries {
		return nil, ErrNoResponse
	}
	return SessionsWithin(m.sessions, start, end), nil
}

// sampleKey identifies a sample the way the SQL stores' unique constraints do.
type sampleKey struct {
	kind       models.Kind
	start, end int64
	source     string
}

type sessionKey struct {
	start, end int64
	source     string
}

// InsertSamples stores samples not already held, keyed on kind, start, end
// and source. A zero End is stored as Start. It returns the number stored.
func (m *Memory) InsertSamples(ctx context.Context, samples []models.Sample) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted int64
	for _, s := range samples {
		if s.End.IsZero() {
			s.End = s.Start
		}
		k := sampleKey{s.Kind, s.Start.UnixNano(), s.End.UnixNano(), s.Source}
		if m.sampleKeys[k] {
			continue
		}
		m.sampleKeys[k] = true
		m.samples = append(m.samples, s)
		inserted++
	}
	return inserted, nil
}

// InsertSleepSessions stores sessions not already held, keyed on start, end
// and source. IDs are assigned when empty and play no part in the key.
func (m *Memory) InsertSleepSessions(ctx context.Context, sessions []models.Session) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted int64
	for _, s := range sessions {
		k := sessionKey{s.Start.UnixNano(), s.End.UnixNano(), s.Source}
		if m.sessionKeys[k] {
			continue
		}
		m.sessionKeys[k] = true
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		m.sessions = append(m.sessions, s)
		inserted++
	}
	return inserted, nil
}
