package ingest

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/staking-indexer/internal/backfill"
	"github.com/goran-ethernal/staking-indexer/internal/checkpoint"
	cmn "github.com/goran-ethernal/staking-indexer/internal/common"
	"github.com/goran-ethernal/staking-indexer/internal/config"
	"github.com/goran-ethernal/staking-indexer/internal/db"
	"github.com/goran-ethernal/staking-indexer/internal/db/migrations"
	"github.com/goran-ethernal/staking-indexer/internal/events"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
	"github.com/goran-ethernal/staking-indexer/internal/reorg"
	"github.com/goran-ethernal/staking-indexer/internal/rpc"
)

// stubChain serves a canonical chain whose block hashes are derived from
// real headers, so window verification agrees with fetched blocks.
type stubChain struct {
	headers map[uint64]*types.Header
	logs    map[uint64][]types.Log
	head    uint64
}

func newStubChain(start, end uint64) *stubChain {
	headers := make(map[uint64]*types.Header, end-start+1)
	for n := start; n <= end; n++ {
		headers[n] = &types.Header{
			Number: new(big.Int).SetUint64(n),
			Time:   1700000000 + n,
		}
	}

	return &stubChain{
		headers: headers,
		logs:    make(map[uint64][]types.Log),
		head:    end,
	}
}

func (s *stubChain) HeadBlock(ctx context.Context) (uint64, error) {
	return s.head, nil
}

func (s *stubChain) BlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	header, ok := s.headers[blockNum]
	if !ok {
		return nil, fmt.Errorf("header %d not found", blockNum)
	}

	return header, nil
}

func (s *stubChain) FetchRange(ctx context.Context, start, end uint64) ([]rpc.BlockData, error) {
	var out []rpc.BlockData
	for n := start; n <= end; n++ {
		header, ok := s.headers[n]
		if !ok {
			return nil, fmt.Errorf("block %d not found", n)
		}

		out = append(out, rpc.BlockData{
			Number:    n,
			Hash:      header.Hash(),
			Timestamp: header.Time,
			Logs:      s.logs[n],
		})
	}

	return out, nil
}

func (s *stubChain) hashAt(n uint64) common.Hash {
	return s.headers[n].Hash()
}

func delegateLog(blockNum uint64, valID uint64) types.Log {
	amount := make([]byte, 32)
	amount[31] = 0x64
	epoch := make([]byte, 32)
	epoch[31] = 3

	return types.Log{
		Address: common.HexToAddress(config.StakingContractAddress),
		Topics: []common.Hash{
			events.DelegateTopic,
			common.BigToHash(new(big.Int).SetUint64(valID)),
			common.HexToHash("0x000000000000000000000000aabbccddeeff00112233445566778899aabbccdd"),
		},
		Data:        append(amount, epoch...),
		BlockNumber: blockNum,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(blockNum * 31)),
	}
}

func ingestTestConfig() config.IngestConfig {
	return config.IngestConfig{
		MinBlockHeight:  100,
		ChunkSize:       3,
		Workers:         2,
		PollInterval:    cmn.NewDuration(10 * time.Millisecond),
		ReorgWindow:     4,
		MaxAttempts:     2,
		RetryBackoff:    cmn.NewDuration(time.Millisecond),
		RequeueCooldown: cmn.NewDuration(5 * time.Millisecond),
	}
}

func setupPipeline(t *testing.T, chain *stubChain, cfg config.IngestConfig) (*Pipeline, *checkpoint.Store) {
	t.Helper()

	dbConfig := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "ingest_test.db")}
	dbConfig.ApplyDefaults()

	sqlDB, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.RunMigrationsDB(logger.NewNopLogger(), sqlDB))

	log := logger.NewNopLogger()
	store := checkpoint.NewStore(sqlDB, log)
	guard := reorg.NewGuard(store, chain, cfg.ReorgWindow, log)
	scheduler := backfill.NewScheduler(chain, store, guard, cfg, log)

	return NewPipeline(chain, store, guard, scheduler, cfg, log), store
}

func TestRunPass_BackfillsFromEmpty(t *testing.T) {
	chain := newStubChain(100, 105)
	chain.logs[102] = []types.Log{delegateLog(102, 7)}

	pipeline, store := setupPipeline(t, chain, ingestTestConfig())
	ctx := context.Background()

	require.NoError(t, pipeline.RunPass(ctx))

	highest, err := store.HighestContiguous(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(105), highest)

	bounds, err := store.Bounds(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(6), bounds.Count)

	counts, err := store.EventCounts(ctx)
	require.NoError(t, err)
	for _, tc := range counts {
		if tc.Table == "delegate_events" {
			require.Equal(t, uint64(1), tc.Count)
		} else {
			require.Zero(t, tc.Count)
		}
	}

	// A second pass over an already complete window is a no-op
	require.NoError(t, pipeline.RunPass(ctx))

	bounds, err = store.Bounds(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(6), bounds.Count)
}

func TestRunPass_FillsInteriorGap(t *testing.T) {
	chain := newStubChain(100, 105)

	pipeline, store := setupPipeline(t, chain, ingestTestConfig())
	ctx := context.Background()

	// Index everything except 102 and 103
	for _, n := range []uint64{100, 101, 104, 105} {
		_, err := store.WriteBlock(ctx, checkpoint.Block{
			BlockNumber:    n,
			BlockHash:      chain.hashAt(n),
			BlockTimestamp: 1700000000 + n,
		}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, pipeline.RunPass(ctx))

	highest, err := store.HighestContiguous(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(105), highest)
}

func TestRunPass_RollsBackAndRefills(t *testing.T) {
	chain := newStubChain(100, 105)

	pipeline, store := setupPipeline(t, chain, ingestTestConfig())
	ctx := context.Background()

	// Blocks 100-103 are indexed, but 103 under a hash the chain no
	// longer serves: a reorg replaced it.
	for n := uint64(100); n <= 102; n++ {
		_, err := store.WriteBlock(ctx, checkpoint.Block{
			BlockNumber:    n,
			BlockHash:      chain.hashAt(n),
			BlockTimestamp: 1700000000 + n,
		}, nil)
		require.NoError(t, err)
	}
	_, err := store.WriteBlock(ctx, checkpoint.Block{
		BlockNumber:    103,
		BlockHash:      common.HexToHash("0xdeadbeef"),
		BlockTimestamp: 1700000103,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, pipeline.RunPass(ctx))

	// The stale block was replaced by the canonical one
	stored, ok, err := store.StoredHash(ctx, 103)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, chain.hashAt(103), stored)

	highest, err := store.HighestContiguous(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(105), highest)
}

func TestStart_StopsOnCancel(t *testing.T) {
	chain := newStubChain(100, 102)

	pipeline, store := setupPipeline(t, chain, ingestTestConfig())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- pipeline.Start(ctx) }()

	require.Eventually(t, func() bool {
		highest, err := store.HighestContiguous(context.Background(), 100)
		return err == nil && highest == 102
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ingestion loop did not stop")
	}
}
