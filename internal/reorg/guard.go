package reorg

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/staking-indexer/internal/checkpoint"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
	"github.com/goran-ethernal/staking-indexer/internal/metrics"
	"github.com/goran-ethernal/staking-indexer/internal/rpc"
)

// Guard detects chain reorganizations against the checkpoint log and rolls
// back every block from the point of divergence. Only block hashes take
// part in divergence detection, timestamps are informational.
type Guard struct {
	store  *checkpoint.Store
	client rpc.ChainClient
	window uint64
	log    *logger.Logger
}

// NewGuard creates a reorg guard with the given trailing window depth.
func NewGuard(store *checkpoint.Store, client rpc.ChainClient, window uint64, log *logger.Logger) *Guard {
	return &Guard{
		store:  store,
		client: client,
		window: window,
		log:    log,
	}
}

// CheckBlock compares a freshly fetched block against any checkpointed
// hash at the same height. On divergence it rolls back from that height
// and returns ErrReorgDetected; the caller must abandon its current pass
// before writing anything for the divergent height.
func (g *Guard) CheckBlock(ctx context.Context, block rpc.BlockData) error {
	stored, ok, err := g.store.StoredHash(ctx, block.Number)
	if err != nil {
		return fmt.Errorf("failed to read stored hash at %d: %w", block.Number, err)
	}
	if !ok || stored == block.Hash {
		return nil
	}

	return g.rollback(ctx, block.Number, stored, block.Hash)
}

// VerifyWindow proactively re-checks every checkpointed block inside the
// trailing window (head-window, head] against the chain's current hashes.
// The first divergence triggers a rollback from that height.
func (g *Guard) VerifyWindow(ctx context.Context, head uint64) error {
	var from uint64
	if head > g.window {
		from = head - g.window + 1
	}

	indexed, err := g.store.IndexedBlocks(ctx, from, head)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints in window: %w", err)
	}

	for _, blockNum := range indexed {
		stored, ok, err := g.store.StoredHash(ctx, blockNum)
		if err != nil {
			return fmt.Errorf("failed to read stored hash at %d: %w", blockNum, err)
		}
		if !ok {
			continue
		}

		header, err := g.client.BlockHeader(ctx, blockNum)
		if err != nil {
			return fmt.Errorf("failed to fetch header at %d: %w", blockNum, err)
		}

		if chainHash := header.Hash(); chainHash != stored {
			return g.rollback(ctx, blockNum, stored, chainHash)
		}
	}

	return nil
}

func (g *Guard) rollback(ctx context.Context, blockNum uint64, stored, chain common.Hash) error {
	g.log.Warnf("reorg detected at block %d: stored %s, chain %s, rolling back",
		blockNum, stored.Hex(), chain.Hex())

	if err := g.store.DeleteFrom(ctx, blockNum); err != nil {
		return fmt.Errorf("failed to roll back from block %d: %w", blockNum, err)
	}

	metrics.ReorgRollbacksInc()

	return &ErrReorgDetected{
		FirstReorgBlock: blockNum,
		StoredHash:      stored,
		ChainHash:       chain,
	}
}
