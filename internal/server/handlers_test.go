package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/reader"
)

const testAPIKey = "test-key"

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, src healthdata.Source) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rd := reader.New(src, time.UTC, log, reader.WithClock(func() time.Time { return testNow }))
	return New(rd, src, testAPIKey, 7, log)
}

func do(t *testing.T, s *Server, method, path, body string, withKey bool) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if withKey {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// readOnlySource hides the Writer and PermissionGranter methods of Memory.
type readOnlySource struct {
	healthdata.Source
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	s := newTestServer(t, healthdata.NewMemory())
	rec := do(t, s, http.MethodGet, "/api/v1/me", "", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
}

// TestStatusReportsMissingPermissions verifies status is always served and
// lists what still needs granting.
func TestStatusReportsMissingPermissions(t *testing.T) {
	s := newTestServer(t, healthdata.NewMemory(healthdata.PermissionReadSteps))
	rec := do(t, s, http.MethodGet, "/api/v1/status", "", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st healthdata.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if st.AllGranted || len(st.Missing) != 3 {
		t.Errorf("status = %+v, want 3 missing", st)
	}
}

// TestReadGating verifies reads are refused until the source is ready.
func TestReadGating(t *testing.T) {
	mem := healthdata.NewMemory()
	s := newTestServer(t, mem)

	if rec := do(t, s, http.MethodGet, "/api/v1/series/steps", "", false); rec.Code != http.StatusForbidden {
		t.Errorf("ungranted read status = %d, want 403", rec.Code)
	}

	rec := do(t, s, http.MethodPost, "/api/v1/permissions", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("grant status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/series/steps", "", false); rec.Code != http.StatusOK {
		t.Errorf("granted read status = %d, want 200", rec.Code)
	}

	mem.SetAvailability(healthdata.UpdateRequired)
	rec = do(t, s, http.MethodGet, "/api/v1/sleep", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("update_required read status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "update_required") {
		t.Errorf("503 body = %s, want availability", rec.Body)
	}
}

// TestGrantPermissionsSubset verifies named grants and rejection of unknown names.
func TestGrantPermissionsSubset(t *testing.T) {
	s := newTestServer(t, healthdata.NewMemory())

	rec := do(t, s, http.MethodPost, "/api/v1/permissions", `{"permissions":["read_sleep"]}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st healthdata.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(st.Granted) != 1 || st.Granted[0] != healthdata.PermissionReadSleep {
		t.Errorf("granted = %v, want [read_sleep]", st.Granted)
	}

	if rec := do(t, s, http.MethodPost, "/api/v1/permissions", `{"permissions":["write_all"]}`, true); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown permission status = %d, want 400", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/permissions", "", false); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}
}

// TestSeriesEndpoint verifies the gap-filled response shape.
func TestSeriesEndpoint(t *testing.T) {
	s := newTestServer(t, healthdata.NewMemory(healthdata.RequiredPermissions...))

	rec := do(t, s, http.MethodGet, "/api/v1/series/distance?days=3", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SeriesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Unit != "mi" || resp.Days != 3 {
		t.Errorf("unit/days = %q/%d, want mi/3", resp.Unit, resp.Days)
	}
	if len(resp.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(resp.Records))
	}
	if got := resp.Records[0].PeriodStart.String(); got != "2024-05-08T00:00:00Z" {
		t.Errorf("first period_start = %q", got)
	}
}

// TestSeriesWindowMatchesRecords verifies the response window is the one the
// records were built over, even when the clock crosses midnight mid-request.
func TestSeriesWindowMatchesRecords(t *testing.T) {
	src := healthdata.NewMemory(healthdata.RequiredPermissions...)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC)
	clock := func() time.Time {
		read := now
		now = now.Add(time.Hour)
		return read
	}
	s := New(reader.New(src, time.UTC, log, reader.WithClock(clock)), src, testAPIKey, 7, log)

	for _, path := range []string{"/api/v1/series/steps?days=3", "/api/v1/sleep?days=3"} {
		rec := do(t, s, http.MethodGet, path, "", false)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, rec.Code)
		}
		var resp SeriesResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("%s: decode error: %v", path, err)
		}
		if len(resp.Records) > 0 && !resp.Window.Start.Equal(resp.Records[0].PeriodStart.Time) {
			t.Errorf("%s: window start = %v, first record starts %v", path, resp.Window.Start, resp.Records[0].PeriodStart)
		}
		if got := resp.Window.End.Sub(resp.Window.Start); got > 3*24*time.Hour {
			t.Errorf("%s: window spans %v, want at most 3 days", path, got)
		}
	}
	if want := time.Date(2024, 5, 11, 1, 30, 0, 0, time.UTC); !now.Equal(want) {
		t.Errorf("clock = %v, want %v after one reading per request", now, want)
	}
}

// TestSeriesBadRequests verifies parameter validation.
func TestSeriesBadRequests(t *testing.T) {
	s := newTestServer(t, healthdata.NewMemory(healthdata.RequiredPermissions...))

	for _, path := range []string{
		"/api/v1/series/sleep",
		"/api/v1/series/heart_rate",
		"/api/v1/series/steps?days=abc",
		"/api/v1/series/steps?days=0",
		"/api/v1/series/steps?days=367",
		"/api/v1/summary?days=-2",
	} {
		if rec := do(t, s, http.MethodGet, path, "", false); rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, rec.Code)
		}
	}
}

// TestIngestThenSummary verifies ingested data shows up in the summary.
func TestIngestThenSummary(t *testing.T) {
	s := newTestServer(t, healthdata.NewMemory(healthdata.RequiredPermissions...))

	body := `{
		"samples": [
			{"kind": "steps", "start": "2024-05-10T08:00:00Z", "end": "2024-05-10T09:00:00Z", "value": 1200},
			{"kind": "active_minutes", "start": "2024-05-10T08:00:00Z", "end": "2024-05-10T08:30:00Z", "value": 1800}
		],
		"sleep_sessions": [
			{"start": "2024-05-09T23:00:00Z", "end": "2024-05-10T06:15:00Z"}
		]
	}`
	if rec := do(t, s, http.MethodPost, "/api/v1/ingest", body, false); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}
	rec := do(t, s, http.MethodPost, "/api/v1/ingest", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d: %s", rec.Code, rec.Body)
	}
	var result ingestResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.SamplesInserted != 2 || result.SleepSessionsInserted != 1 {
		t.Errorf("result = %+v", result)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/summary", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	var summary reader.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if summary.Steps == nil || summary.Steps.Value != 1200 {
		t.Errorf("steps = %+v, want 1200", summary.Steps)
	}
	if summary.ActiveMinutes == nil || summary.ActiveMinutes.Value != 30 {
		t.Errorf("active minutes = %+v, want 30", summary.ActiveMinutes)
	}
	if summary.LastSleepDuration != "07:15" {
		t.Errorf("last_sleep_duration = %q, want 07:15", summary.LastSleepDuration)
	}
}

// TestIngestValidation verifies malformed payloads are rejected.
func TestIngestValidation(t *testing.T) {
	s := newTestServer(t, healthdata.NewMemory())

	for name, body := range map[string]string{
		"bad json":     `{`,
		"missing kind": `{"samples":[{"start":"2024-05-10T08:00:00Z","value":1}]}`,
		"sleep sample": `{"samples":[{"kind":"sleep","start":"2024-05-10T08:00:00Z","value":1}]}`,
		"reversed":     `{"samples":[{"kind":"steps","start":"2024-05-10T08:00:00Z","end":"2024-05-10T07:00:00Z","value":1}]}`,
		"open session": `{"sleep_sessions":[{"start":"2024-05-10T01:00:00Z"}]}`,
	} {
		if rec := do(t, s, http.MethodPost, "/api/v1/ingest", body, true); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
	}
}

// TestReadOnlySource verifies write endpoints report 501 when unsupported.
func TestReadOnlySource(t *testing.T) {
	s := newTestServer(t, readOnlySource{healthdata.NewMemory()})

	if rec := do(t, s, http.MethodPost, "/api/v1/ingest", `{}`, true); rec.Code != http.StatusNotImplemented {
		t.Errorf("ingest status = %d, want 501", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/permissions", "", true); rec.Code != http.StatusNotImplemented {
		t.Errorf("permissions status = %d, want 501", rec.Code)
	}
}

// TestMetricsEndpoint verifies Prometheus exposition is mounted.
func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, healthdata.NewMemory(healthdata.RequiredPermissions...))
	do(t, s, http.MethodGet, "/api/v1/series/steps", "", false)

	rec := do(t, s, http.MethodGet, "/metrics", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthbridge_source_queries_total") {
		t.Error("metrics output missing source query counter")
	}
}

// TestSetMCP verifies an MCP handler is reachable once mounted.
func TestSetMCP(t *testing.T) {
	s := newTestServer(t, healthdata.NewMemory())
	s.SetMCP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	if rec := do(t, s, http.MethodPost, "/mcp", `{}`, false); rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}

// TestHandlersRespectCancellation verifies a canceled request surfaces 503.
func TestHandlersRespectCancellation(t *testing.T) {
	mem := healthdata.NewMemory(healthdata.RequiredPermissions...)
	mem.SetFailing(true)
	s := newTestServer(t, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/series/steps", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
