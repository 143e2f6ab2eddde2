package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/models"
	"github.com/claude/healthbridge/internal/observability"
	"github.com/claude/healthbridge/internal/reader"
)

// SeriesResponse is the body of the series and sleep endpoints.
type SeriesResponse struct {
	Kind    models.Kind           `json:"kind"`
	Unit    string                `json:"unit"`
	Days    int                   `json:"days"`
	Window  models.Window         `json:"window"`
	Records []models.MetricRecord `json:"records"`
}

type grantRequest struct {
	Permissions []string `json:"permissions"`
}

type ingestRequest struct {
	Samples       []ingestSample   `json:"samples"`
	SleepSessions []models.Session `json:"sleep_sessions"`
}

// ingestSample keeps kind as text so a missing kind is rejected instead of
// decoding to the zero Kind.
type ingestSample struct {
	Kind   string    `json:"kind"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Value  float64   `json:"value"`
	Source string    `json:"source"`
}

type ingestResult struct {
	SamplesInserted       int64 `json:"samples_inserted"`
	SleepSessionsInserted int64 `json:"sleep_sessions_inserted"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reader.Status(r.Context()))
}

func (s *Server) handleGrantPermissions(w http.ResponseWriter, r *http.Request) {
	granter, ok := s.src.(healthdata.PermissionGranter)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "source cannot record permissions"})
		return
	}

	var req grantRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
			return
		}
	}

	perms := healthdata.RequiredPermissions
	if len(req.Permissions) > 0 {
		perms = make([]healthdata.Permission, 0, len(req.Permissions))
		for _, name := range req.Permissions {
			p, err := healthdata.ParsePermission(name)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			perms = append(perms, p)
		}
	}

	if err := granter.GrantPermissions(r.Context(), perms); err != nil {
		s.log.Error("grant permissions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.reader.Status(r.Context()))
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	writer, ok := s.src.(healthdata.Writer)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "source is read-only"})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	samples, err := validateIngest(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var result ingestResult
	if len(samples) > 0 {
		if result.SamplesInserted, err = writer.InsertSamples(r.Context(), samples); err != nil {
			s.log.Error("ingest samples", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	if len(req.SleepSessions) > 0 {
		if result.SleepSessionsInserted, err = writer.InsertSleepSessions(r.Context(), req.SleepSessions); err != nil {
			s.log.Error("ingest sleep sessions", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	observability.RecordIngested("samples", result.SamplesInserted)
	observability.RecordIngested("sleep_sessions", result.SleepSessionsInserted)

	s.log.Info("ingest complete",
		"samples", result.SamplesInserted,
		"sleep_sessions", result.SleepSessionsInserted,
	)
	writeJSON(w, http.StatusOK, result)
}

// validateIngest checks the payload and converts its samples.
func validateIngest(req ingestRequest) ([]models.Sample, error) {
	samples := make([]models.Sample, 0, len(req.Samples))
	for i, in := range req.Samples {
		kind, err := models.ParseKind(in.Kind)
		if err != nil {
			return nil, fmt.Errorf("samples[%d]: %w", i, err)
		}
		if !kind.IsDaily() {
			return nil, fmt.Errorf("samples[%d]: sleep must be sent as sleep_sessions", i)
		}
		if in.Start.IsZero() {
			return nil, fmt.Errorf("samples[%d]: start is required", i)
		}
		if !in.End.IsZero() && in.End.Before(in.Start) {
			return nil, fmt.Errorf("samples[%d]: end before start", i)
		}
		samples = append(samples, models.Sample{
			Kind: kind, Start: in.Start, End: in.End, Value: in.Value, Source: in.Source,
		})
	}
	for i, ss := range req.SleepSessions {
		if ss.Start.IsZero() || ss.End.IsZero() {
			return nil, fmt.Errorf("sleep_sessions[%d]: start and end are required", i)
		}
		if ss.End.Before(ss.Start) {
			return nil, fmt.Errorf("sleep_sessions[%d]: end before start", i)
		}
	}
	return samples, nil
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !kind.IsDaily() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "use /api/v1/sleep for sleep"})
		return
	}
	days, err := parseDays(r, s.defaultDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	window, records, err := s.reader.ReadSeriesWindow(r.Context(), kind, days)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	writeSeries(w, kind, days, window, records)
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r, s.defaultDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	window, blocks, err := s.reader.ReadSleepWindow(r.Context(), days)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	writeSeries(w, models.KindSleep, days, window, blocks)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r, s.defaultDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	summary, err := s.reader.Summary(r.Context(), days)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeSeries(w http.ResponseWriter, kind models.Kind, days int, window models.Window, records []models.MetricRecord) {
	writeJSON(w, http.StatusOK, SeriesResponse{
		Kind:    kind,
		Unit:    kind.Unit(),
		Days:    days,
		Window:  window,
		Records: records,
	})
}

func (s *Server) writeReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reader.ErrInvalidDays), errors.Is(err, reader.ErrNotDaily):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.log.Warn("read aborted", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseDays reads the days query parameter, falling back to def.
func parseDays(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return def, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("days must be an integer")
	}
	if days < 1 || days > reader.MaxDays {
		return 0, reader.ErrInvalidDays
	}
	return days, nil
}
