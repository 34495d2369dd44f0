package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/goran-ethernal/staking-indexer/internal/backfill"
	"github.com/goran-ethernal/staking-indexer/internal/checkpoint"
	"github.com/goran-ethernal/staking-indexer/internal/config"
	"github.com/goran-ethernal/staking-indexer/internal/gap"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
	"github.com/goran-ethernal/staking-indexer/internal/metrics"
	"github.com/goran-ethernal/staking-indexer/internal/reorg"
	"github.com/goran-ethernal/staking-indexer/internal/rpc"
)

// Pipeline is the top-level ingestion loop. Each pass verifies the
// trailing reorg window, scans the checkpoint log for missing block
// ranges and hands them to the backfill scheduler. Passes repeat on the
// poll interval until the context is cancelled.
type Pipeline struct {
	client    rpc.ChainClient
	store     *checkpoint.Store
	guard     *reorg.Guard
	scheduler *backfill.Scheduler
	cfg       config.IngestConfig
	log       *logger.Logger
}

// NewPipeline assembles the ingestion loop from its parts.
func NewPipeline(client rpc.ChainClient, store *checkpoint.Store, guard *reorg.Guard,
	scheduler *backfill.Scheduler, cfg config.IngestConfig, log *logger.Logger) *Pipeline {
	return &Pipeline{
		client:    client,
		store:     store,
		guard:     guard,
		scheduler: scheduler,
		cfg:       cfg,
		log:       log,
	}
}

// Start runs ingestion passes until ctx is cancelled. A failed pass is
// logged and retried on the next tick, it never stops the loop.
func (p *Pipeline) Start(ctx context.Context) error {
	p.log.Infof("starting ingestion loop, poll interval %s", p.cfg.PollInterval.Duration)

	ticker := time.NewTicker(p.cfg.PollInterval.Duration)
	defer ticker.Stop()

	for {
		if err := p.RunPass(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			p.log.Errorf("ingestion pass failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunPass executes one full ingestion pass: reorg window verification,
// gap scan and backfill. It loops the scan until the window
// [min_block_height, head] has no missing ranges left, since a rollback
// or a new head mid-pass can open fresh gaps.
func (p *Pipeline) RunPass(ctx context.Context) error {
	for {
		head, err := p.client.HeadBlock(ctx)
		if err != nil {
			return err
		}
		metrics.HeadBlockSet(head)

		if err := p.verifyWindow(ctx, head); err != nil {
			return err
		}

		ranges, err := p.missingRanges(ctx, head)
		if err != nil {
			return err
		}

		if err := p.updateGauges(ctx, head); err != nil {
			return err
		}

		if len(ranges) == 0 {
			p.log.Debugf("no gaps below head %d", head)
			return nil
		}

		if err := p.scheduler.Run(ctx, ranges); err != nil {
			var reorgErr *reorg.ErrReorgDetected
			if errors.As(err, &reorgErr) {
				// Rollback already happened, rescan immediately so the
				// reopened range is refilled in this pass
				p.log.Infof("restarting pass after rollback from block %d", reorgErr.FirstReorgBlock)
				continue
			}

			return err
		}
	}
}

// verifyWindow re-checks the trailing reorg window. A detected
// divergence has already been rolled back by the guard, the scan that
// follows will pick the hole up.
func (p *Pipeline) verifyWindow(ctx context.Context, head uint64) error {
	err := p.guard.VerifyWindow(ctx, head)
	if err == nil {
		return nil
	}

	var reorgErr *reorg.ErrReorgDetected
	if errors.As(err, &reorgErr) {
		p.log.Infof("trailing window diverged at block %d, rolled back", reorgErr.FirstReorgBlock)
		return nil
	}

	return err
}

// missingRanges scans the checkpoint log for gaps below head.
func (p *Pipeline) missingRanges(ctx context.Context, head uint64) ([]gap.BlockRange, error) {
	indexed, err := p.store.IndexedBlocks(ctx, p.cfg.MinBlockHeight, head)
	if err != nil {
		return nil, err
	}

	return gap.ComputeMissingRanges(indexed, head, p.cfg.MinBlockHeight), nil
}

// updateGauges refreshes the progress gauges from the checkpoint log.
func (p *Pipeline) updateGauges(ctx context.Context, head uint64) error {
	highest, err := p.store.HighestContiguous(ctx, p.cfg.MinBlockHeight)
	if err != nil {
		return err
	}

	metrics.HighestContiguousSet(highest)
	if head >= highest {
		metrics.BackfillLagSet(head - highest)
	}

	return nil
}
