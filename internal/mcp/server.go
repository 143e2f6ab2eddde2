package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
// defaultDays applies when a tool call omits days.
func New(ds DataSource, version string, defaultDays int, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("healthbridge", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("healthbridge fitness data server. Query gap-filled daily steps, active minutes and distance, merged sleep blocks, and source readiness. Days are calendar days in the server's configured timezone."),
	)

	if defaultDays < 1 {
		defaultDays = 7
	}
	h := &handlers{ds: ds, defaultDays: defaultDays, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetDailySeries, Handler: h.getDailySeries},
		server.ServerTool{Tool: toolGetSleepBlocks, Handler: h.getSleepBlocks},
		server.ServerTool{Tool: toolGetHealthSummary, Handler: h.getHealthSummary},
		server.ServerTool{Tool: toolGetSourceStatus, Handler: h.getSourceStatus},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resToday, Handler: h.today},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds          DataSource
	defaultDays int
	log         *slog.Logger
}

// --- Resource definitions ---

var resToday = mcp.NewResource(
	"healthbridge://today",
	"Today",
	mcp.WithResourceDescription("Today's steps, active minutes and distance plus the most recent sleep block"),
	mcp.WithMIMEType("application/json"),
)
