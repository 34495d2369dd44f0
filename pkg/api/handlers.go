package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/goran-ethernal/staking-indexer/internal/checkpoint"
	"github.com/goran-ethernal/staking-indexer/internal/events"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// eventQuery binds an event type name to its table and a typed query
// closure, since meddler needs a concrete destination slice.
type eventQuery struct {
	table string
	query func(ctx context.Context, store *checkpoint.Store,
		fromBlock, toBlock uint64, limit, offset int) (interface{}, error)
}

var eventQueries = map[string]eventQuery{
	"delegate": {"delegate_events",
		func(ctx context.Context, s *checkpoint.Store, from, to uint64, limit, offset int) (interface{}, error) {
			out := []*events.DelegateEvent{}
			err := s.QueryEvents(ctx, &out, "delegate_events", from, to, limit, offset)
			return out, err
		}},
	"undelegate": {"undelegate_events",
		func(ctx context.Context, s *checkpoint.Store, from, to uint64, limit, offset int) (interface{}, error) {
			out := []*events.UndelegateEvent{}
			err := s.QueryEvents(ctx, &out, "undelegate_events", from, to, limit, offset)
			return out, err
		}},
	"withdraw": {"withdraw_events",
		func(ctx context.Context, s *checkpoint.Store, from, to uint64, limit, offset int) (interface{}, error) {
			out := []*events.WithdrawEvent{}
			err := s.QueryEvents(ctx, &out, "withdraw_events", from, to, limit, offset)
			return out, err
		}},
	"claim_rewards": {"claim_rewards_events",
		func(ctx context.Context, s *checkpoint.Store, from, to uint64, limit, offset int) (interface{}, error) {
			out := []*events.ClaimRewardsEvent{}
			err := s.QueryEvents(ctx, &out, "claim_rewards_events", from, to, limit, offset)
			return out, err
		}},
	"validator_created": {"validator_created_events",
		func(ctx context.Context, s *checkpoint.Store, from, to uint64, limit, offset int) (interface{}, error) {
			out := []*events.ValidatorCreatedEvent{}
			err := s.QueryEvents(ctx, &out, "validator_created_events", from, to, limit, offset)
			return out, err
		}},
	"validator_rewarded": {"validator_rewarded_events",
		func(ctx context.Context, s *checkpoint.Store, from, to uint64, limit, offset int) (interface{}, error) {
			out := []*events.ValidatorRewardedEvent{}
			err := s.QueryEvents(ctx, &out, "validator_rewarded_events", from, to, limit, offset)
			return out, err
		}},
	"commission_changed": {"commission_changed_events",
		func(ctx context.Context, s *checkpoint.Store, from, to uint64, limit, offset int) (interface{}, error) {
			out := []*events.CommissionChangedEvent{}
			err := s.QueryEvents(ctx, &out, "commission_changed_events", from, to, limit, offset)
			return out, err
		}},
	"epoch_changed": {"epoch_changed_events",
		func(ctx context.Context, s *checkpoint.Store, from, to uint64, limit, offset int) (interface{}, error) {
			out := []*events.EpochChangedEvent{}
			err := s.QueryEvents(ctx, &out, "epoch_changed_events", from, to, limit, offset)
			return out, err
		}},
	"validator_status_changed": {"validator_status_changed_events",
		func(ctx context.Context, s *checkpoint.Store, from, to uint64, limit, offset int) (interface{}, error) {
			out := []*events.ValidatorStatusChangedEvent{}
			err := s.QueryEvents(ctx, &out, "validator_status_changed_events", from, to, limit, offset)
			return out, err
		}},
}

// EventTypes returns the queryable event type names in sorted order.
func EventTypes() []string {
	names := make([]string, 0, len(eventQueries))
	for name := range eventQueries {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Handler handles HTTP requests for the API.
type Handler struct {
	store     *checkpoint.Store
	minHeight uint64
	log       *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(store *checkpoint.Store, minHeight uint64, log *logger.Logger) *Handler {
	return &Handler{
		store:     store,
		minHeight: minHeight,
		log:       log,
	}
}

// GetEvents returns a page of decoded events of one type, optionally
// filtered by block range.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	eventType := r.PathValue("type")

	eq, ok := eventQueries[eventType]
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown event type '%s'", eventType))
		return
	}

	params, err := parseQueryParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid query parameters: %v", err))
		return
	}

	fromBlock := uint64(0)
	if params.FromBlock != nil {
		fromBlock = *params.FromBlock
	}
	toBlock := uint64(1<<63 - 1)
	if params.ToBlock != nil {
		toBlock = *params.ToBlock
	}

	evs, err := eq.query(r.Context(), h.store, fromBlock, toBlock, params.Limit, params.Offset)
	if err != nil {
		h.log.Errorf("failed to query %s events: %v", eventType, err)
		respondError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	total, err := h.store.CountEvents(r.Context(), eq.table, fromBlock, toBlock)
	if err != nil {
		h.log.Errorf("failed to count %s events: %v", eventType, err)
		respondError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	response := EventResponse{
		EventType: eventType,
		Events:    evs,
		Pagination: PaginationResult{
			Total:   total,
			Limit:   params.Limit,
			Offset:  params.Offset,
			HasMore: params.Offset+params.Limit < total,
		},
	}

	respondJSON(w, http.StatusOK, response)
}

// GetStats returns indexing progress and per-table event counts.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	bounds, err := h.store.Bounds(r.Context())
	if err != nil {
		h.log.Errorf("failed to query block bounds: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query stats")
		return
	}

	highest, err := h.store.HighestContiguous(r.Context(), h.minHeight)
	if err != nil {
		h.log.Errorf("failed to query highest contiguous block: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query stats")
		return
	}

	counts, err := h.store.EventCounts(r.Context())
	if err != nil {
		h.log.Errorf("failed to query event counts: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query stats")
		return
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		Blocks:            bounds,
		HighestContiguous: highest,
		EventTypes:        EventTypes(),
		Events:            counts,
	})
}

// Health reports liveness plus a summary of indexing progress.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	bounds, err := h.store.Bounds(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to query block bounds")
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Timestamp:     time.Now(),
		IndexedBlocks: bounds.Count,
		LatestBlock:   bounds.Latest,
	})
}

// parseQueryParams parses HTTP query parameters into QueryParams.
func parseQueryParams(r *http.Request) (*QueryParams, error) {
	params := &QueryParams{Limit: defaultLimit}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxLimit {
			return params, fmt.Errorf("invalid limit: must be between 1 and %d", maxLimit)
		}
		params.Limit = limit
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return params, fmt.Errorf("invalid offset: must be non-negative")
		}
		params.Offset = offset
	}

	if fromBlockStr := r.URL.Query().Get("from_block"); fromBlockStr != "" {
		fromBlock, err := strconv.ParseUint(fromBlockStr, 10, 64)
		if err != nil {
			return params, fmt.Errorf("invalid from_block")
		}
		params.FromBlock = &fromBlock
	}

	if toBlockStr := r.URL.Query().Get("to_block"); toBlockStr != "" {
		toBlock, err := strconv.ParseUint(toBlockStr, 10, 64)
		if err != nil {
			return params, fmt.Errorf("invalid to_block")
		}
		params.ToBlock = &toBlock
	}

	if params.FromBlock != nil && params.ToBlock != nil && *params.FromBlock > *params.ToBlock {
		return params, fmt.Errorf("from_block cannot be greater than to_block")
	}

	return params, nil
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// Encode first so an encoding failure can still change the status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)

	if _, err := w.Write(encoded); err != nil {
		// Headers already sent, nothing left to do
		return
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	respondJSON(w, status, response)
}
