package reorg

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/staking-indexer/internal/checkpoint"
	"github.com/goran-ethernal/staking-indexer/internal/config"
	"github.com/goran-ethernal/staking-indexer/internal/db"
	"github.com/goran-ethernal/staking-indexer/internal/db/migrations"
	"github.com/goran-ethernal/staking-indexer/internal/gap"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
	"github.com/goran-ethernal/staking-indexer/internal/rpc"
)

// stubChain serves canned headers by height.
type stubChain struct {
	headers map[uint64]*types.Header
	head    uint64
}

func (s *stubChain) HeadBlock(ctx context.Context) (uint64, error) {
	return s.head, nil
}

func (s *stubChain) FetchRange(ctx context.Context, start, end uint64) ([]rpc.BlockData, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubChain) BlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	header, ok := s.headers[blockNum]
	if !ok {
		return nil, fmt.Errorf("no header at %d", blockNum)
	}
	return header, nil
}

func setupStore(t *testing.T) *checkpoint.Store {
	t.Helper()

	dbConfig := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "reorg_test.db")}
	dbConfig.ApplyDefaults()

	sqlDB, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.RunMigrationsDB(logger.NewNopLogger(), sqlDB))

	return checkpoint.NewStore(sqlDB, logger.NewNopLogger())
}

func headerAt(n uint64) *types.Header {
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: 1700000000 + n}
}

func TestCheckBlock_NoDivergence(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	hash := common.HexToHash("0xaaa")
	_, err := store.WriteBlock(ctx, checkpoint.Block{BlockNumber: 100, BlockHash: hash, BlockTimestamp: 1}, nil)
	require.NoError(t, err)

	guard := NewGuard(store, &stubChain{}, 64, logger.NewNopLogger())

	// Matching hash passes
	require.NoError(t, guard.CheckBlock(ctx, rpc.BlockData{Number: 100, Hash: hash}))

	// Unknown height passes
	require.NoError(t, guard.CheckBlock(ctx, rpc.BlockData{Number: 101, Hash: common.HexToHash("0xbbb")}))
}

func TestCheckBlock_DivergenceRollsBack(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for n := uint64(100); n <= 105; n++ {
		block := checkpoint.Block{
			BlockNumber:    n,
			BlockHash:      common.BigToHash(new(big.Int).SetUint64(n)),
			BlockTimestamp: n,
		}
		_, err := store.WriteBlock(ctx, block, nil)
		require.NoError(t, err)
	}

	guard := NewGuard(store, &stubChain{}, 64, logger.NewNopLogger())

	// Block 102 now reports a different hash
	err := guard.CheckBlock(ctx, rpc.BlockData{Number: 102, Hash: common.HexToHash("0xdead")})
	require.Error(t, err)

	var reorgErr *ErrReorgDetected
	require.ErrorAs(t, err, &reorgErr)
	require.Equal(t, uint64(102), reorgErr.FirstReorgBlock)

	// Everything >= 102 is gone, 100-101 remain
	indexed, err := store.IndexedBlocks(ctx, 0, 200)
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 101}, indexed)

	// The gap detector rediscovers [102, head]
	missing := gap.ComputeMissingRanges(indexed, 105, 100)
	require.Equal(t, []gap.BlockRange{{Start: 102, End: 105}}, missing)
}

func TestVerifyWindow_CleanWindow(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	chain := &stubChain{headers: map[uint64]*types.Header{}, head: 105}
	for n := uint64(100); n <= 105; n++ {
		header := headerAt(n)
		chain.headers[n] = header

		block := checkpoint.Block{BlockNumber: n, BlockHash: header.Hash(), BlockTimestamp: header.Time}
		_, err := store.WriteBlock(ctx, block, nil)
		require.NoError(t, err)
	}

	guard := NewGuard(store, chain, 64, logger.NewNopLogger())
	require.NoError(t, guard.VerifyWindow(ctx, 105))
}

func TestVerifyWindow_DivergenceRollsBack(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	chain := &stubChain{headers: map[uint64]*types.Header{}, head: 105}
	for n := uint64(100); n <= 105; n++ {
		header := headerAt(n)
		chain.headers[n] = header

		storedHash := header.Hash()
		if n >= 103 {
			// Checkpointed under a now-orphaned chain history
			storedHash = common.BigToHash(new(big.Int).SetUint64(n * 7))
		}

		block := checkpoint.Block{BlockNumber: n, BlockHash: storedHash, BlockTimestamp: header.Time}
		_, err := store.WriteBlock(ctx, block, nil)
		require.NoError(t, err)
	}

	guard := NewGuard(store, chain, 64, logger.NewNopLogger())

	err := guard.VerifyWindow(ctx, 105)
	var reorgErr *ErrReorgDetected
	require.ErrorAs(t, err, &reorgErr)
	require.Equal(t, uint64(103), reorgErr.FirstReorgBlock)

	indexed, err := store.IndexedBlocks(ctx, 0, 200)
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 101, 102}, indexed)
}

func TestVerifyWindow_OnlyChecksTrailingWindow(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// Block 10 has a bogus hash but sits outside the window
	_, err := store.WriteBlock(ctx,
		checkpoint.Block{BlockNumber: 10, BlockHash: common.HexToHash("0xbad"), BlockTimestamp: 1}, nil)
	require.NoError(t, err)

	header := headerAt(100)
	chain := &stubChain{headers: map[uint64]*types.Header{100: header}, head: 100}

	_, err = store.WriteBlock(ctx,
		checkpoint.Block{BlockNumber: 100, BlockHash: header.Hash(), BlockTimestamp: header.Time}, nil)
	require.NoError(t, err)

	guard := NewGuard(store, chain, 8, logger.NewNopLogger())
	require.NoError(t, guard.VerifyWindow(ctx, 100))
}
