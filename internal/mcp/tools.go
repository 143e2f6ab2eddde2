package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/models"
	"github.com/claude/healthbridge/internal/reader"
)

// daysArg reads the days argument, falling back to the server default.
func (h *handlers) daysArg(req mcp.CallToolRequest) (int, error) {
	days := req.GetInt("days", h.defaultDays)
	if days < 1 || days > reader.MaxDays {
		return 0, fmt.Errorf("days must be between 1 and %d", reader.MaxDays)
	}
	return days, nil
}

// notReady renders the status as a tool error when reads cannot proceed.
func (h *handlers) notReady(ctx context.Context) *mcp.CallToolResult {
	st := h.ds.Status(ctx)
	if st.Ready() {
		return nil
	}
	if st.Availability != healthdata.Available {
		return mcp.NewToolResultError("health data source is " + st.Availability.String())
	}
	return mcp.NewToolResultError(fmt.Sprintf("missing permissions: %v", st.Missing))
}

// --- Tool definitions ---

var toolGetDailySeries = mcp.NewTool("get_daily_series",
	mcp.WithDescription("Daily totals for one metric, one record per calendar day including zero-valued days. Steps are counts, active minutes are whole minutes, distance is miles."),
	mcp.WithString("kind", mcp.Required(), mcp.Description("Metric kind"), mcp.Enum("steps", "active_minutes", "distance")),
	mcp.WithNumber("days", mcp.Description("Number of calendar days ending today (1-366). Defaults to the server setting.")),
)

var toolGetSleepBlocks = mcp.NewTool("get_sleep_blocks",
	mcp.WithDescription("Sleep sessions merged into non-overlapping blocks. Each block's value is its duration in whole minutes."),
	mcp.WithNumber("days", mcp.Description("Number of calendar days ending today (1-366). Defaults to the server setting.")),
)

var toolGetHealthSummary = mcp.NewTool("get_health_summary",
	mcp.WithDescription("Today's steps, active minutes and distance, the last sleep block with an HH:MM duration, and total sleep minutes over the interval."),
	mcp.WithNumber("days", mcp.Description("Interval used for the sleep total (1-366). Defaults to the server setting.")),
)

var toolGetSourceStatus = mcp.NewTool("get_source_status",
	mcp.WithDescription("Health data source availability and which read permissions are granted or missing."),
)

// --- Tool handlers ---

func (h *handlers) getDailySeries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError("kind parameter is required"), nil
	}
	kind, err := models.ParseKind(name)
	if err != nil || !kind.IsDaily() {
		return mcp.NewToolResultError("kind must be one of steps, active_minutes, distance"), nil
	}
	days, err := h.daysArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res := h.notReady(ctx); res != nil {
		return res, nil
	}

	records, err := h.ds.ReadSeries(ctx, kind, days)
	if err != nil {
		h.log.Error("mcp get_daily_series", "kind", kind.String(), "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"kind":    kind,
		"unit":    kind.Unit(),
		"days":    days,
		"records": records,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSleepBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days, err := h.daysArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res := h.notReady(ctx); res != nil {
		return res, nil
	}

	blocks, err := h.ds.ReadSleep(ctx, days)
	if err != nil {
		h.log.Error("mcp get_sleep_blocks", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"kind":    models.KindSleep,
		"unit":    models.KindSleep.Unit(),
		"days":    days,
		"records": blocks,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getHealthSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days, err := h.daysArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res := h.notReady(ctx); res != nil {
		return res, nil
	}

	summary, err := h.ds.Summary(ctx, days)
	if err != nil {
		h.log.Error("mcp get_health_summary", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(summary)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSourceStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(h.ds.Status(ctx))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
