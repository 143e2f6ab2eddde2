package mcp

import (
	"context"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/models"
	"github.com/claude/healthbridge/internal/reader"
)

// DataSource abstracts the data layer for MCP tools. Both *reader.Reader (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	ReadSeries(ctx context.Context, kind models.Kind, days int) ([]models.MetricRecord, error)
	ReadSleep(ctx context.Context, days int) ([]models.MetricRecord, error)
	Summary(ctx context.Context, days int) (*reader.Summary, error)
	Status(ctx context.Context) healthdata.Status
}

// Compile-time check: *reader.Reader satisfies DataSource.
var _ DataSource = (*reader.Reader)(nil)
