package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/reader"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	reader      *reader.Reader
	src         healthdata.Source
	log         *slog.Logger
	apiKey      string
	defaultDays int
	whois       WhoIser
	router      chi.Router
}

// New creates a new Server with all routes configured. src is the same
// source rd reads from; it is consulted for optional write capabilities.
func New(rd *reader.Reader, src healthdata.Source, apiKey string, defaultDays int, log *slog.Logger) *Server {
	if defaultDays < 1 {
		defaultDays = 7
	}
	s := &Server{
		reader:      rd,
		src:         src,
		log:         log,
		apiKey:      apiKey,
		defaultDays: defaultDays,
		router:      chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.identity)

	s.router.Get("/api/v1/me", s.handleMe)
	s.router.Get("/api/v1/status", s.handleStatus)
	s.router.Handle("/metrics", promhttp.Handler())

	// Write endpoints (API key required)
	s.router.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/api/v1/permissions", s.handleGrantPermissions)
		r.Post("/api/v1/ingest", s.handleIngest)
	})

	// Read endpoints (source must be available and fully granted)
	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Get("/api/v1/series/{kind}", s.handleSeries)
		r.Get("/api/v1/sleep", s.handleSleep)
		r.Get("/api/v1/summary", s.handleSummary)
	})
}

// SetTailscale enables tailnet identity lookup for incoming requests.
func (s *Server) SetTailscale(w WhoIser) {
	s.whois = w
}

// SetMCP mounts an MCP streamable HTTP handler at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.router.Handle("/mcp", h)
	s.router.Handle("/mcp/*", h)
}
