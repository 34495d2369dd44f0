package reorg

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrReorgDetected reports a divergence between a checkpointed block hash
// and the hash the chain now reports at that height. By the time callers
// see it, the rollback has already been performed.
type ErrReorgDetected struct {
	FirstReorgBlock uint64
	StoredHash      common.Hash
	ChainHash       common.Hash
}

func (e *ErrReorgDetected) Error() string {
	return fmt.Sprintf("reorg detected at block %d: stored hash %s, chain hash %s",
		e.FirstReorgBlock, e.StoredHash.Hex(), e.ChainHash.Hex())
}
