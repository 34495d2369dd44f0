package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/goran-ethernal/staking-indexer/internal/config"
	"github.com/goran-ethernal/staking-indexer/internal/metrics"
)

// BlockData bundles a block's checkpoint metadata with the staking
// contract logs it contains.
type BlockData struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
	Logs      []types.Log
}

// ChainClient is the chain access surface consumed by the backfill
// scheduler, reorg guard and ingest pipeline.
type ChainClient interface {
	// HeadBlock returns the current chain head number.
	HeadBlock(ctx context.Context) (uint64, error)

	// FetchRange returns block metadata plus contract logs for every
	// block in [start, end].
	FetchRange(ctx context.Context, start, end uint64) ([]BlockData, error)

	// BlockHeader returns the header at an exact height.
	BlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error)
}

// Compile-time check to ensure Client implements the ChainClient interface.
var _ ChainClient = (*Client)(nil)

// Client wraps the Ethereum RPC client with the calls the indexer needs.
// Every call carries a request timeout and retry with exponential backoff.
type Client struct {
	eth      *ethclient.Client
	rpc      *rpc.Client
	contract common.Address
	timeout  time.Duration
	retry    *config.RetryConfig
}

// NewClient creates a new RPC client connected to the given endpoint,
// filtering logs of the given contract.
func NewClient(ctx context.Context, cfg config.RPCConfig, contract common.Address) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}

	return &Client{
		eth:      ethclient.NewClient(rpcClient),
		rpc:      rpcClient,
		contract: contract,
		timeout:  cfg.RequestTimeout.Duration,
		retry:    cfg.Retry,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// HeadBlock returns the current chain head number.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	var head uint64

	err := c.call(ctx, "head_block", func(callCtx context.Context) error {
		var err error
		head, err = c.eth.BlockNumber(callCtx)
		return err
	})
	if err != nil {
		return 0, err
	}

	return head, nil
}

// BlockHeader returns the header at an exact height.
func (c *Client) BlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	var header *types.Header

	err := c.call(ctx, "block_header", func(callCtx context.Context) error {
		var err error
		header, err = c.eth.HeaderByNumber(callCtx, new(big.Int).SetUint64(blockNum))
		return err
	})
	if err != nil {
		return nil, err
	}

	return header, nil
}

// FetchRange fetches the contract's logs for [start, end] with a single
// filter query, plus the headers of every block in the range with a
// batched eth_getBlockByNumber, and groups logs by block.
func (c *Client) FetchRange(ctx context.Context, start, end uint64) ([]BlockData, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range [%d, %d]", start, end)
	}

	var logs []types.Log
	err := c.call(ctx, "get_logs", func(callCtx context.Context) error {
		var err error
		logs, err = c.eth.FilterLogs(callCtx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{c.contract},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs for [%d, %d]: %w", start, end, err)
	}

	blockNums := make([]uint64, 0, end-start+1)
	for n := start; n <= end; n++ {
		blockNums = append(blockNums, n)
	}

	var headers []*types.Header
	err = c.call(ctx, "get_block_headers", func(callCtx context.Context) error {
		var err error
		headers, err = c.batchGetBlockHeaders(callCtx, blockNums)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch headers for [%d, %d]: %w", start, end, err)
	}

	logsByBlock := make(map[uint64][]types.Log, len(headers))
	for _, log := range logs {
		logsByBlock[log.BlockNumber] = append(logsByBlock[log.BlockNumber], log)
	}

	blocks := make([]BlockData, 0, len(headers))
	for i, header := range headers {
		if header == nil {
			return nil, fmt.Errorf("missing header for block %d", blockNums[i])
		}

		blocks = append(blocks, BlockData{
			Number:    header.Number.Uint64(),
			Hash:      header.Hash(),
			Timestamp: header.Time,
			Logs:      logsByBlock[header.Number.Uint64()],
		})
	}

	return blocks, nil
}

// batchGetBlockHeaders retrieves headers for multiple block numbers in a single batch call.
func (c *Client) batchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	const maxBatch = 100
	var allResults []*types.Header

	for i := 0; i < len(blockNums); i += maxBatch {
		end := min(i+maxBatch, len(blockNums))
		chunk := blockNums[i:end]

		batch := make([]rpc.BatchElem, len(chunk))
		results := make([]*types.Header, len(chunk))

		for j, blockNum := range chunk {
			batch[j] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{toBlockNumArg(blockNum), false}, // false = don't include transactions
				Result: &results[j],
			}
		}

		if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
			return nil, err
		}

		// Check for individual errors
		for _, elem := range batch {
			if elem.Error != nil {
				return nil, elem.Error
			}
		}

		allResults = append(allResults, results...)
	}

	return allResults, nil
}

// call wraps an RPC operation with the request timeout, retry policy and
// duration metric.
func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	started := time.Now()
	defer func() {
		metrics.RPCDurationObserve(operation, time.Since(started))
	}()

	return retryWithBackoff(ctx, c.retry, operation, func() error {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		return fn(callCtx)
	})
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}
