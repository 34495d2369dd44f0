package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"

	"github.com/goran-ethernal/staking-indexer/internal/events"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
	"github.com/goran-ethernal/staking-indexer/internal/metrics"
)

// Block is a checkpoint row: its presence means every event of that
// block has been persisted.
type Block struct {
	BlockNumber    uint64      `meddler:"block_number"`
	BlockHash      common.Hash `meddler:"block_hash,hash"`
	BlockTimestamp uint64      `meddler:"block_timestamp"`
}

// WriteStats reports what a WriteBlock call actually inserted.
type WriteStats struct {
	BlockInserted bool
	Inserted      map[string]uint64
	Duplicates    map[string]uint64
}

// Store persists block checkpoints and decoded events. All writes are
// idempotent: duplicate rows are absorbed silently, and each block is
// written in a single transaction so a crash never leaves a checkpointed
// block with missing events.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore creates a checkpoint store on an already migrated database.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// WriteBlock atomically inserts the block checkpoint row and every event
// row. Re-writing an already indexed block (or event) is a no-op reported
// through WriteStats, not an error.
func (s *Store) WriteBlock(ctx context.Context, block Block, evs []events.Event) (WriteStats, error) {
	stats := WriteStats{
		Inserted:   make(map[string]uint64),
		Duplicates: make(map[string]uint64),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	inserted, err := insertIgnoreDuplicate(tx, "blocks", &block)
	if err != nil {
		return stats, fmt.Errorf("failed to insert block %d: %w", block.BlockNumber, err)
	}
	stats.BlockInserted = inserted

	for _, ev := range evs {
		ev.SetBlockTimestamp(block.BlockTimestamp)

		inserted, err := insertIgnoreDuplicate(tx, ev.Table(), ev)
		if err != nil {
			return stats, fmt.Errorf("failed to insert %s event at block %d: %w",
				ev.Type(), block.BlockNumber, err)
		}

		if inserted {
			stats.Inserted[ev.Type()]++
		} else {
			stats.Duplicates[ev.Type()]++
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit transaction: %w", err)
	}

	for eventType, count := range stats.Inserted {
		metrics.EventsInsertedAdd(eventType, count)
	}
	for eventType, count := range stats.Duplicates {
		metrics.EventsDuplicatesAdd(eventType, count)
	}
	if stats.BlockInserted {
		metrics.BackfilledBlocksAdd(1)
	}

	return stats, nil
}

// insertIgnoreDuplicate inserts a row and reports whether it was actually
// written. A unique constraint violation means the row already exists; the
// failed statement does not poison the surrounding transaction.
func insertIgnoreDuplicate(tx *sql.Tx, table string, src interface{}) (bool, error) {
	err := meddler.Insert(tx, table, src)
	if err == nil {
		return true, nil
	}

	if isUniqueViolation(err) {
		return false, nil
	}

	return false, err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// HighestContiguous returns the highest block H such that every height in
// [minHeight, H] is checkpointed, or 0 if minHeight itself is missing.
func (s *Store) HighestContiguous(ctx context.Context, minHeight uint64) (uint64, error) {
	var present int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM blocks WHERE block_number = ?", minHeight).Scan(&present)
	if err != nil {
		return 0, fmt.Errorf("failed to query checkpoint at %d: %w", minHeight, err)
	}
	if present == 0 {
		return 0, nil
	}

	// The smallest checkpointed block >= minHeight without a successor is
	// the end of the first contiguous run.
	var runEnd uint64
	err = s.db.QueryRowContext(ctx, `
		SELECT MIN(b.block_number)
		FROM blocks b
		WHERE b.block_number >= ?
		  AND NOT EXISTS (
			SELECT 1 FROM blocks b2 WHERE b2.block_number = b.block_number + 1
		  )`, minHeight).Scan(&runEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to query contiguous run: %w", err)
	}

	return runEnd, nil
}

// IndexedBlocks returns the sorted checkpointed heights within [from, to].
func (s *Store) IndexedBlocks(ctx context.Context, from, to uint64) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT block_number FROM blocks WHERE block_number BETWEEN ? AND ? ORDER BY block_number",
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexed blocks: %w", err)
	}
	defer rows.Close()

	var blocks []uint64
	for rows.Next() {
		var n uint64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan block number: %w", err)
		}
		blocks = append(blocks, n)
	}

	return blocks, rows.Err()
}

// StoredHash returns the checkpointed hash at a height, with false if the
// height is not checkpointed.
func (s *Store) StoredHash(ctx context.Context, blockNum uint64) (common.Hash, bool, error) {
	var hashHex string
	err := s.db.QueryRowContext(ctx,
		"SELECT block_hash FROM blocks WHERE block_number = ?", blockNum).Scan(&hashHex)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("failed to query hash at %d: %w", blockNum, err)
	}

	return common.HexToHash(hashHex), true, nil
}

// DeleteFrom removes every event row and checkpoint row with
// block_number >= blockNum in one transaction. Used by the reorg guard.
func (s *Store) DeleteFrom(ctx context.Context, blockNum uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	var eventsDeleted int64
	for _, table := range events.Tables {
		result, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE block_number >= ?", table), blockNum)
		if err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		eventsDeleted += n
	}

	result, err := tx.ExecContext(ctx,
		"DELETE FROM blocks WHERE block_number >= ?", blockNum)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	blocksDeleted, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Infof("deleted %d checkpoints and %d events from block %d",
		blocksDeleted, eventsDeleted, blockNum)

	return nil
}

// TableStats describes one event table for the stats surface.
type TableStats struct {
	Table string `json:"table"`
	Count uint64 `json:"count"`
}

// BlockBounds reports the extremes of the checkpoint log.
type BlockBounds struct {
	Count    uint64 `json:"count"`
	Earliest uint64 `json:"earliest"`
	Latest   uint64 `json:"latest"`
}

// EventCounts returns the row count of every event table.
func (s *Store) EventCounts(ctx context.Context) ([]TableStats, error) {
	stats := make([]TableStats, 0, len(events.Tables))
	for _, table := range events.Tables {
		var count uint64
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats = append(stats, TableStats{Table: table, Count: count})
	}
	return stats, nil
}

// Bounds returns the count and extremes of the blocks table.
func (s *Store) Bounds(ctx context.Context) (BlockBounds, error) {
	var bounds BlockBounds
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(MIN(block_number), 0),
		       COALESCE(MAX(block_number), 0)
		FROM blocks`).Scan(&bounds.Count, &bounds.Earliest, &bounds.Latest)
	if err != nil {
		return bounds, fmt.Errorf("failed to query block bounds: %w", err)
	}
	return bounds, nil
}

// CountEvents returns the number of rows of one event table within a
// block range.
func (s *Store) CountEvents(ctx context.Context, table string, fromBlock, toBlock uint64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE block_number >= ? AND block_number <= ?", table),
		fromBlock, toBlock).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// QueryEvents loads rows of one event table into dst (a pointer to a slice
// of event structs) with a block range filter and pagination.
func (s *Store) QueryEvents(ctx context.Context, dst interface{}, table string,
	fromBlock, toBlock uint64, limit, offset int) error {
	query := fmt.Sprintf(`
		SELECT * FROM %s
		WHERE block_number >= ? AND block_number <= ?
		ORDER BY block_number, log_index
		LIMIT ? OFFSET ?`, table)

	return meddler.QueryAll(s.db, dst, query, fromBlock, toBlock, limit, offset)
}
