package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/models"
	"github.com/claude/healthbridge/internal/reader"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

func testRecord(kind models.Kind, day int, value float64) models.MetricRecord {
	start := time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
	return models.MetricRecord{
		Value:       value,
		Kind:        kind,
		PeriodStart: models.NewTimestamp(start, nil),
		PeriodEnd:   models.NewTimestamp(models.EndOfDay(start), nil),
	}
}

// TestReadSeries verifies the kind is sent in the path, days as a query param,
// and the records are decoded from the envelope.
func TestReadSeries(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/series/active_minutes": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("days"); got != "2" {
				t.Errorf("days=%q, want 2", got)
			}
			writeTestJSON(t, w, map[string]any{
				"kind": "active_minutes",
				"days": 2,
				"records": []models.MetricRecord{
					testRecord(models.KindActiveMinutes, 1, 0),
					testRecord(models.KindActiveMinutes, 2, 45),
				},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL + "/")
	records, err := client.ReadSeries(context.Background(), models.KindActiveMinutes, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].Value != 45 {
		t.Errorf("value=%v, want 45", records[1].Value)
	}
	if records[1].Kind != models.KindActiveMinutes {
		t.Errorf("kind=%v, want active_minutes", records[1].Kind)
	}
	if got := records[0].PeriodStart.String(); got != "2026-01-01T00:00:00Z" {
		t.Errorf("period_start=%q, want 2026-01-01T00:00:00Z", got)
	}
}

// TestReadSleepEmpty verifies a null records field decodes to an empty slice.
func TestReadSleepEmpty(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sleep": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, map[string]any{"kind": "sleep", "days": 7, "records": nil})
		},
	})
	defer ts.Close()

	blocks, err := NewHTTPClient(ts.URL).ReadSleep(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if blocks == nil || len(blocks) != 0 {
		t.Errorf("blocks = %v, want empty non-nil slice", blocks)
	}
}

// TestSummary verifies the summary object round-trips through the client.
func TestSummary(t *testing.T) {
	sleep := testRecord(models.KindSleep, 3, 450)
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/summary": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, reader.Summary{
				Days:              7,
				LastSleep:         &sleep,
				LastSleepDuration: "07:30",
				SleepMinutes:      900,
			})
		},
	})
	defer ts.Close()

	summary, err := NewHTTPClient(ts.URL).Summary(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if summary.LastSleepDuration != "07:30" {
		t.Errorf("last_sleep_duration=%q, want 07:30", summary.LastSleepDuration)
	}
	if summary.LastSleep == nil || summary.LastSleep.Value != 450 {
		t.Errorf("last_sleep=%v, want value 450", summary.LastSleep)
	}
	if summary.Steps != nil {
		t.Errorf("steps=%v, want nil", summary.Steps)
	}
}

// TestStatus verifies missing permissions are recomputed from the granted list.
func TestStatus(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/status": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, map[string]any{
				"availability": "available",
				"granted":      []string{"read_steps", "read_sleep"},
			})
		},
	})
	defer ts.Close()

	st := NewHTTPClient(ts.URL).Status(context.Background())
	if st.Availability != healthdata.Available {
		t.Errorf("availability=%v, want available", st.Availability)
	}
	if st.AllGranted {
		t.Error("all_granted=true, want false")
	}
	if len(st.Missing) != 2 {
		t.Errorf("missing=%v, want 2 permissions", st.Missing)
	}
}

// TestStatusUnreachable verifies a failing server reads as unavailable.
func TestStatusUnreachable(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})
	defer ts.Close()

	st := NewHTTPClient(ts.URL).Status(context.Background())
	if st.Availability != healthdata.Unavailable {
		t.Errorf("availability=%v, want unavailable", st.Availability)
	}
	if st.Ready() {
		t.Error("Ready() = true, want false")
	}
}

// TestHTTPClientErrorResponse verifies non-200 responses surface as errors
// carrying the status code.
func TestHTTPClientErrorResponse(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/series/steps": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			writeTestJSON(t, w, map[string]string{"error": "missing permissions"})
		},
	})
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL).ReadSeries(context.Background(), models.KindSteps, 7)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}
