package api

import (
	"time"

	"github.com/goran-ethernal/staking-indexer/internal/checkpoint"
)

// QueryParams represents common query parameters for event retrieval.
type QueryParams struct {
	// Pagination
	Limit  int `json:"limit"`
	Offset int `json:"offset"`

	// Block range filtering
	FromBlock *uint64 `json:"from_block,omitempty"`
	ToBlock   *uint64 `json:"to_block,omitempty"`
}

// EventResponse represents a page of events of one type.
type EventResponse struct {
	EventType  string           `json:"event_type"`
	Events     interface{}      `json:"events"`
	Pagination PaginationResult `json:"pagination"`
}

// PaginationResult contains pagination metadata.
type PaginationResult struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	IndexedBlocks uint64    `json:"indexed_blocks"`
	LatestBlock   uint64    `json:"latest_block"`
}

// StatsResponse aggregates indexing progress and per-table event counts.
type StatsResponse struct {
	Blocks            checkpoint.BlockBounds  `json:"blocks"`
	HighestContiguous uint64                  `json:"highest_contiguous"`
	EventTypes        []string                `json:"event_types"`
	Events            []checkpoint.TableStats `json:"events"`
}
