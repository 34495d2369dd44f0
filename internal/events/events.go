package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a decoded staking contract event ready to be persisted.
// Table is the destination table and Type the metric label for the
// variant. Block timestamps are not part of the log itself, the
// fetcher stamps them from block metadata before persisting.
type Event interface {
	Table() string
	Type() string
	SetBlockTimestamp(ts uint64)
}

// DelegateEvent represents a Delegate event.
type DelegateEvent struct {
	ID              int64          `meddler:"id,pk"`
	ValID           uint64         `meddler:"val_id"`
	Delegator       common.Address `meddler:"delegator,address"`
	Amount          *big.Int       `meddler:"amount,bigint"`
	ActivationEpoch uint64         `meddler:"activation_epoch"`
	BlockNumber     uint64         `meddler:"block_number"`
	BlockHash       common.Hash    `meddler:"block_hash,hash"`
	BlockTimestamp  uint64         `meddler:"block_timestamp"`
	TxHash          common.Hash    `meddler:"transaction_hash,hash"`
	TxIndex         uint           `meddler:"transaction_index"`
	LogIndex        uint           `meddler:"log_index"`
}

func (e *DelegateEvent) Table() string { return "delegate_events" }
func (e *DelegateEvent) Type() string { return "delegate" }
func (e *DelegateEvent) SetBlockTimestamp(ts uint64) { e.BlockTimestamp = ts }

// UndelegateEvent represents an Undelegate event.
type UndelegateEvent struct {
	ID              int64          `meddler:"id,pk"`
	ValID           uint64         `meddler:"val_id"`
	Delegator       common.Address `meddler:"delegator,address"`
	WithdrawalID    uint8          `meddler:"withdrawal_id"`
	Amount          *big.Int       `meddler:"amount,bigint"`
	ActivationEpoch uint64         `meddler:"activation_epoch"`
	BlockNumber     uint64         `meddler:"block_number"`
	BlockHash       common.Hash    `meddler:"block_hash,hash"`
	BlockTimestamp  uint64         `meddler:"block_timestamp"`
	TxHash          common.Hash    `meddler:"transaction_hash,hash"`
	TxIndex         uint           `meddler:"transaction_index"`
	LogIndex        uint           `meddler:"log_index"`
}

func (e *UndelegateEvent) Table() string { return "undelegate_events" }
func (e *UndelegateEvent) Type() string { return "undelegate" }
func (e *UndelegateEvent) SetBlockTimestamp(ts uint64) { e.BlockTimestamp = ts }

// WithdrawEvent represents a Withdraw event. Multiple withdrawals may
// settle in one transaction, so its dedup key includes the log index.
type WithdrawEvent struct {
	ID              int64          `meddler:"id,pk"`
	ValID           uint64         `meddler:"val_id"`
	Delegator       common.Address `meddler:"delegator,address"`
	WithdrawalID    uint8          `meddler:"withdrawal_id"`
	Amount          *big.Int       `meddler:"amount,bigint"`
	ActivationEpoch uint64         `meddler:"activation_epoch"`
	BlockNumber     uint64         `meddler:"block_number"`
	BlockHash       common.Hash    `meddler:"block_hash,hash"`
	BlockTimestamp  uint64         `meddler:"block_timestamp"`
	TxHash          common.Hash    `meddler:"transaction_hash,hash"`
	TxIndex         uint           `meddler:"transaction_index"`
	LogIndex        uint           `meddler:"log_index"`
}

func (e *WithdrawEvent) Table() string { return "withdraw_events" }
func (e *WithdrawEvent) Type() string { return "withdraw" }
func (e *WithdrawEvent) SetBlockTimestamp(ts uint64) { e.BlockTimestamp = ts }

// ClaimRewardsEvent represents a ClaimRewards event.
type ClaimRewardsEvent struct {
	ID             int64          `meddler:"id,pk"`
	ValID          uint64         `meddler:"val_id"`
	Delegator      common.Address `meddler:"delegator,address"`
	Amount         *big.Int       `meddler:"amount,bigint"`
	Epoch          uint64         `meddler:"epoch"`
	BlockNumber    uint64         `meddler:"block_number"`
	BlockHash      common.Hash    `meddler:"block_hash,hash"`
	BlockTimestamp uint64         `meddler:"block_timestamp"`
	TxHash         common.Hash    `meddler:"transaction_hash,hash"`
	TxIndex        uint           `meddler:"transaction_index"`
	LogIndex       uint           `meddler:"log_index"`
}

func (e *ClaimRewardsEvent) Table() string { return "claim_rewards_events" }
func (e *ClaimRewardsEvent) Type() string { return "claim_rewards" }
func (e *ClaimRewardsEvent) SetBlockTimestamp(ts uint64) { e.BlockTimestamp = ts }

// ValidatorCreatedEvent represents a ValidatorCreated event.
type ValidatorCreatedEvent struct {
	ID             int64          `meddler:"id,pk"`
	ValidatorID    uint64         `meddler:"validator_id"`
	AuthAddress    common.Address `meddler:"auth_address,address"`
	Commission     *big.Int       `meddler:"commission,bigint"`
	BlockNumber    uint64         `meddler:"block_number"`
	BlockHash      common.Hash    `meddler:"block_hash,hash"`
	BlockTimestamp uint64         `meddler:"block_timestamp"`
	TxHash         common.Hash    `meddler:"transaction_hash,hash"`
	TxIndex        uint           `meddler:"transaction_index"`
	LogIndex       uint           `meddler:"log_index"`
}

func (e *ValidatorCreatedEvent) Table() string { return "validator_created_events" }
func (e *ValidatorCreatedEvent) Type() string { return "validator_created" }
func (e *ValidatorCreatedEvent) SetBlockTimestamp(ts uint64) { e.BlockTimestamp = ts }

// ValidatorRewardedEvent represents a ValidatorRewarded event.
type ValidatorRewardedEvent struct {
	ID             int64          `meddler:"id,pk"`
	ValidatorID    uint64         `meddler:"validator_id"`
	FromAddress    common.Address `meddler:"from_address,address"`
	Amount         *big.Int       `meddler:"amount,bigint"`
	Epoch          uint64         `meddler:"epoch"`
	BlockNumber    uint64         `meddler:"block_number"`
	BlockHash      common.Hash    `meddler:"block_hash,hash"`
	BlockTimestamp uint64         `meddler:"block_timestamp"`
	TxHash         common.Hash    `meddler:"transaction_hash,hash"`
	TxIndex        uint           `meddler:"transaction_index"`
	LogIndex       uint           `meddler:"log_index"`
}

func (e *ValidatorRewardedEvent) Table() string { return "validator_rewarded_events" }
func (e *ValidatorRewardedEvent) Type() string { return "validator_rewarded" }
func (e *ValidatorRewardedEvent) SetBlockTimestamp(ts uint64) { e.BlockTimestamp = ts }

// CommissionChangedEvent represents a CommissionChanged event.
type CommissionChangedEvent struct {
	ID             int64       `meddler:"id,pk"`
	ValidatorID    uint64      `meddler:"validator_id"`
	OldCommission  *big.Int    `meddler:"old_commission,bigint"`
	NewCommission  *big.Int    `meddler:"new_commission,bigint"`
	BlockNumber    uint64      `meddler:"block_number"`
	BlockHash      common.Hash `meddler:"block_hash,hash"`
	BlockTimestamp uint64      `meddler:"block_timestamp"`
	TxHash         common.Hash `meddler:"transaction_hash,hash"`
	TxIndex        uint        `meddler:"transaction_index"`
	LogIndex       uint        `meddler:"log_index"`
}

func (e *CommissionChangedEvent) Table() string { return "commission_changed_events" }
func (e *CommissionChangedEvent) Type() string { return "commission_changed" }
func (e *CommissionChangedEvent) SetBlockTimestamp(ts uint64) { e.BlockTimestamp = ts }

// EpochChangedEvent represents an EpochChanged event.
type EpochChangedEvent struct {
	ID             int64       `meddler:"id,pk"`
	OldEpoch       uint64      `meddler:"old_epoch"`
	NewEpoch       uint64      `meddler:"new_epoch"`
	BlockNumber    uint64      `meddler:"block_number"`
	BlockHash      common.Hash `meddler:"block_hash,hash"`
	BlockTimestamp uint64      `meddler:"block_timestamp"`
	TxHash         common.Hash `meddler:"transaction_hash,hash"`
	TxIndex        uint        `meddler:"transaction_index"`
	LogIndex       uint        `meddler:"log_index"`
}

func (e *EpochChangedEvent) Table() string { return "epoch_changed_events" }
func (e *EpochChangedEvent) Type() string { return "epoch_changed" }
func (e *EpochChangedEvent) SetBlockTimestamp(ts uint64) { e.BlockTimestamp = ts }

// ValidatorStatusChangedEvent represents a ValidatorStatusChanged event.
type ValidatorStatusChangedEvent struct {
	ID             int64       `meddler:"id,pk"`
	ValidatorID    uint64      `meddler:"validator_id"`
	Flags          uint64      `meddler:"flags"`
	BlockNumber    uint64      `meddler:"block_number"`
	BlockHash      common.Hash `meddler:"block_hash,hash"`
	BlockTimestamp uint64      `meddler:"block_timestamp"`
	TxHash         common.Hash `meddler:"transaction_hash,hash"`
	TxIndex        uint        `meddler:"transaction_index"`
	LogIndex       uint        `meddler:"log_index"`
}

func (e *ValidatorStatusChangedEvent) Table() string { return "validator_status_changed_events" }
func (e *ValidatorStatusChangedEvent) Type() string { return "validator_status_changed" }
func (e *ValidatorStatusChangedEvent) SetBlockTimestamp(ts uint64) { e.BlockTimestamp = ts }

// Tables lists every event table, used for rollback and stats queries.
var Tables = []string{
	"delegate_events",
	"undelegate_events",
	"withdraw_events",
	"claim_rewards_events",
	"validator_created_events",
	"validator_rewarded_events",
	"commission_changed_events",
	"epoch_changed_events",
	"validator_status_changed_events",
}
