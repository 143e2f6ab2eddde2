package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) today(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	status := h.ds.Status(ctx)
	if !status.Ready() {
		data, err := json.Marshal(map[string]any{"status": status})
		if err != nil {
			return nil, err
		}
		return textContents(req.Params.URI, data), nil
	}

	summary, err := h.ds.Summary(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("reading today's summary: %w", err)
	}

	data, err := json.Marshal(map[string]any{
		"status":  status,
		"summary": summary,
	})
	if err != nil {
		return nil, err
	}
	return textContents(req.Params.URI, data), nil
}

func textContents(uri string, data []byte) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}
}
