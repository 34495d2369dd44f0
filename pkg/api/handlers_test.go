package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/staking-indexer/internal/checkpoint"
	"github.com/goran-ethernal/staking-indexer/internal/config"
	"github.com/goran-ethernal/staking-indexer/internal/db"
	"github.com/goran-ethernal/staking-indexer/internal/db/migrations"
	"github.com/goran-ethernal/staking-indexer/internal/events"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
)

func setupHandler(t *testing.T) (*Handler, *checkpoint.Store) {
	t.Helper()

	dbConfig := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "api_test.db")}
	dbConfig.ApplyDefaults()

	sqlDB, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.RunMigrationsDB(logger.NewNopLogger(), sqlDB))

	store := checkpoint.NewStore(sqlDB, logger.NewNopLogger())

	return NewHandler(store, 100, logger.NewNopLogger()), store
}

func seedDelegates(t *testing.T, store *checkpoint.Store, blockNums ...uint64) {
	t.Helper()

	for _, n := range blockNums {
		_, err := store.WriteBlock(context.Background(), checkpoint.Block{
			BlockNumber:    n,
			BlockHash:      common.BigToHash(new(big.Int).SetUint64(n)),
			BlockTimestamp: 1700000000 + n,
		}, []events.Event{
			&events.DelegateEvent{
				ValID:           7,
				Delegator:       common.HexToAddress("0xabc0000000000000000000000000000000000001"),
				Amount:          big.NewInt(1000),
				ActivationEpoch: 3,
				BlockNumber:     n,
				TxHash:          common.BigToHash(new(big.Int).SetUint64(n * 31)),
			},
		})
		require.NoError(t, err)
	}
}

func getEvents(t *testing.T, h *Handler, eventType, query string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/"+eventType+query, nil)
	req.SetPathValue("type", eventType)
	w := httptest.NewRecorder()

	h.GetEvents(w, req)

	return w
}

func TestGetEvents(t *testing.T) {
	h, store := setupHandler(t)
	seedDelegates(t, store, 100, 101, 102)

	w := getEvents(t, h, "delegate", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "delegate", resp.EventType)
	require.Equal(t, 3, resp.Pagination.Total)
	require.False(t, resp.Pagination.HasMore)

	evs, ok := resp.Events.([]interface{})
	require.True(t, ok)
	require.Len(t, evs, 3)
}

func TestGetEvents_Pagination(t *testing.T) {
	h, store := setupHandler(t)
	seedDelegates(t, store, 100, 101, 102, 103, 104)

	w := getEvents(t, h, "delegate", "?limit=2&offset=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 5, resp.Pagination.Total)
	require.Equal(t, 2, resp.Pagination.Limit)
	require.Equal(t, 2, resp.Pagination.Offset)
	require.True(t, resp.Pagination.HasMore)
	require.Len(t, resp.Events.([]interface{}), 2)

	// Last page
	w = getEvents(t, h, "delegate", "?limit=2&offset=4")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Pagination.HasMore)
	require.Len(t, resp.Events.([]interface{}), 1)
}

func TestGetEvents_BlockRangeFilter(t *testing.T) {
	h, store := setupHandler(t)
	seedDelegates(t, store, 100, 101, 102, 103)

	w := getEvents(t, h, "delegate", "?from_block=101&to_block=102")
	require.Equal(t, http.StatusOK, w.Code)

	var resp EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Pagination.Total)
	require.Len(t, resp.Events.([]interface{}), 2)
}

func TestGetEvents_EmptyType(t *testing.T) {
	h, store := setupHandler(t)
	seedDelegates(t, store, 100)

	w := getEvents(t, h, "withdraw", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Zero(t, resp.Pagination.Total)
	require.Len(t, resp.Events.([]interface{}), 0)
}

func TestGetEvents_UnknownType(t *testing.T) {
	h, _ := setupHandler(t)

	w := getEvents(t, h, "transfer", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp.Message, "transfer")
}

func TestGetEvents_InvalidParams(t *testing.T) {
	h, _ := setupHandler(t)

	tests := []struct {
		name  string
		query string
	}{
		{"zero limit", "?limit=0"},
		{"limit too large", "?limit=5000"},
		{"negative offset", "?offset=-1"},
		{"bad from_block", "?from_block=abc"},
		{"bad to_block", "?to_block=abc"},
		{"inverted range", "?from_block=10&to_block=5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getEvents(t, h, "delegate", tt.query)
			require.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetStats(t *testing.T) {
	h, store := setupHandler(t)
	seedDelegates(t, store, 100, 101, 102)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()

	h.GetStats(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, uint64(3), resp.Blocks.Count)
	require.Equal(t, uint64(100), resp.Blocks.Earliest)
	require.Equal(t, uint64(102), resp.Blocks.Latest)
	require.Equal(t, uint64(102), resp.HighestContiguous)
	require.Equal(t, EventTypes(), resp.EventTypes)

	for _, tc := range resp.Events {
		if tc.Table == "delegate_events" {
			require.Equal(t, uint64(3), tc.Count)
		} else {
			require.Zero(t, tc.Count)
		}
	}
}

func TestHealth(t *testing.T) {
	h, store := setupHandler(t)
	seedDelegates(t, store, 100, 101)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.Health(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, uint64(2), resp.IndexedBlocks)
	require.Equal(t, uint64(101), resp.LatestBlock)
}

func TestEventTypes_CoversEveryTable(t *testing.T) {
	require.Len(t, EventTypes(), len(events.Tables))

	seen := make(map[string]bool)
	for _, name := range EventTypes() {
		seen[eventQueries[name].table] = true
	}
	for _, table := range events.Tables {
		require.True(t, seen[table], "no event type mapped to %s", table)
	}
}
