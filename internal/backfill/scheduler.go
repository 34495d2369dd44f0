package backfill

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goran-ethernal/staking-indexer/internal/checkpoint"
	"github.com/goran-ethernal/staking-indexer/internal/config"
	"github.com/goran-ethernal/staking-indexer/internal/events"
	"github.com/goran-ethernal/staking-indexer/internal/gap"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
	"github.com/goran-ethernal/staking-indexer/internal/metrics"
	"github.com/goran-ethernal/staking-indexer/internal/reorg"
	"github.com/goran-ethernal/staking-indexer/internal/rpc"
)

// Scheduler drains a set of missing block ranges with a bounded pool of
// workers. Ranges are subdivided into chunks, each chunk runs the
// fetch-decode-persist pipeline with per-chunk retry; a chunk that
// exhausts its attempts is re-queued after a cooldown so the rest of the
// pass keeps progressing. A detected reorg aborts the whole pass.
type Scheduler struct {
	client rpc.ChainClient
	store  *checkpoint.Store
	guard  *reorg.Guard
	cfg    config.IngestConfig
	log    *logger.Logger
}

// NewScheduler creates a backfill scheduler.
func NewScheduler(client rpc.ChainClient, store *checkpoint.Store, guard *reorg.Guard,
	cfg config.IngestConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		client: client,
		store:  store,
		guard:  guard,
		cfg:    cfg,
		log:    log,
	}
}

// Run processes the given missing ranges to completion. It returns nil
// once every chunk has been written, or the first fatal error (reorg,
// cancellation). Chunks from disjoint ranges never touch the same block,
// so workers need no coordination beyond the store's own constraints.
func (s *Scheduler) Run(ctx context.Context, ranges []gap.BlockRange) error {
	var chunks []gap.BlockRange
	for _, r := range ranges {
		chunks = append(chunks, gap.SplitRange(r, s.cfg.ChunkSize)...)
	}

	if len(chunks) == 0 {
		return nil
	}

	s.log.Infof("backfilling %d ranges as %d chunks with %d workers",
		len(ranges), len(chunks), s.cfg.Workers)

	// A chunk is either queued, in flight, or waiting out a cooldown, so
	// the initial chunk count bounds the queue.
	queue := make(chan gap.BlockRange, len(chunks))
	for _, chunk := range chunks {
		queue <- chunk
	}

	pending := int64(len(chunks))
	var closeOnce sync.Once

	chunkDone := func() {
		if atomic.AddInt64(&pending, -1) == 0 {
			closeOnce.Do(func() { close(queue) })
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case chunk, ok := <-queue:
					if !ok {
						return nil
					}

					err := s.attemptChunk(gctx, chunk)
					if err == nil {
						chunkDone()
						continue
					}

					var reorgErr *reorg.ErrReorgDetected
					if errors.As(err, &reorgErr) {
						// Rollback already done, abandon the pass
						return err
					}
					if gctx.Err() != nil {
						return gctx.Err()
					}

					// Exhausted attempts: cool down, then try again
					s.log.Warnf("chunk [%d, %d] failed, re-queueing after %s: %v",
						chunk.Start, chunk.End, s.cfg.RequeueCooldown.Duration, err)
					metrics.ChunksRequeuedInc()

					g.Go(func() error {
						select {
						case <-time.After(s.cfg.RequeueCooldown.Duration):
							queue <- chunk
							return nil
						case <-gctx.Done():
							return gctx.Err()
						}
					})
				}
			}
		})
	}

	return g.Wait()
}

// attemptChunk runs the chunk pipeline with exponential backoff up to the
// configured attempt budget. Reorg errors are never retried.
func (s *Scheduler) attemptChunk(ctx context.Context, chunk gap.BlockRange) error {
	backoff := s.cfg.RetryBackoff.Duration

	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err = s.processChunk(ctx, chunk)
		if err == nil {
			return nil
		}

		var reorgErr *reorg.ErrReorgDetected
		if errors.As(err, &reorgErr) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}

		s.log.Debugf("chunk [%d, %d] attempt %d/%d failed: %v",
			chunk.Start, chunk.End, attempt, s.cfg.MaxAttempts, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	return err
}

// processChunk is a single fetch-decode-persist attempt over one chunk.
func (s *Scheduler) processChunk(ctx context.Context, chunk gap.BlockRange) error {
	blocks, err := s.client.FetchRange(ctx, chunk.Start, chunk.End)
	if err != nil {
		return err
	}

	for _, block := range blocks {
		if err := s.guard.CheckBlock(ctx, block); err != nil {
			return err
		}

		evs := s.decodeBlock(block)

		stats, err := s.store.WriteBlock(ctx, checkpoint.Block{
			BlockNumber:    block.Number,
			BlockHash:      block.Hash,
			BlockTimestamp: block.Timestamp,
		}, evs)
		if err != nil {
			return err
		}

		for eventType, count := range stats.Duplicates {
			s.log.Debugf("block %d: %d %s events already indexed", block.Number, count, eventType)
		}
	}

	return nil
}

// decodeBlock decodes the staking logs of one block. Unrecognized
// signatures and malformed payloads are counted and skipped, they never
// fail the chunk.
func (s *Scheduler) decodeBlock(block rpc.BlockData) []events.Event {
	evs := make([]events.Event, 0, len(block.Logs))

	for i := range block.Logs {
		log := &block.Logs[i]

		ev, err := events.Decode(log)
		if err != nil {
			s.log.Warnf("skipping undecodable log at block %d, tx %s: %v",
				log.BlockNumber, log.TxHash.Hex(), err)
			metrics.EventsMalformedInc()
			continue
		}
		if ev == nil {
			metrics.EventsUnrecognizedInc()
			continue
		}

		evs = append(evs, ev)
	}

	return evs
}
