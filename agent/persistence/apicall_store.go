package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ApiCallFilter narrows ApiCallStore.Query results (spec §4.6).
type ApiCallFilter struct {
	UserID    string
	SessionID uuid.UUID
	AgentID   uuid.UUID
	Status    string
	Model     string
	Since     time.Time
	Until     time.Time
	Page      int
	PageSize  int
}

// ApiCallUsage aggregates ApiCallStore.UsageStats results.
type ApiCallUsage struct {
	CallCount        int
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	TotalCostUSD     float64
	AvgLatencyMS     float64
	CallsPerSecond   float64
}

// ApiCallStore persists ApiCall records: upsert, filtered paginated query,
// usage aggregation, and retention cleanup (spec §4.6).
type ApiCallStore interface {
	Store

	// Save upserts an ApiCall by ID.
	Save(ctx context.Context, call *ApiCall) error

	// Query returns calls matching filter, newest first.
	Query(ctx context.Context, filter ApiCallFilter) ([]*ApiCall, error)

	// UsageStats aggregates usage for calls matching filter.
	UsageStats(ctx context.Context, filter ApiCallFilter) (*ApiCallUsage, error)

	// Cleanup deletes calls created before olderThan, returning the count removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}
