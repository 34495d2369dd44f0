package events

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const wordSize = 32

// Event signature hashes of the staking precompile.
var (
	DelegateTopic               = crypto.Keccak256Hash([]byte("Delegate(uint64,address,uint256,uint64)"))
	UndelegateTopic             = crypto.Keccak256Hash([]byte("Undelegate(uint64,address,uint8,uint256,uint64)"))
	WithdrawTopic               = crypto.Keccak256Hash([]byte("Withdraw(uint64,address,uint8,uint256,uint64)"))
	ClaimRewardsTopic           = crypto.Keccak256Hash([]byte("ClaimRewards(uint64,address,uint256,uint64)"))
	ValidatorRewardedTopic      = crypto.Keccak256Hash([]byte("ValidatorRewarded(uint64,address,uint256,uint64)"))
	EpochChangedTopic           = crypto.Keccak256Hash([]byte("EpochChanged(uint64,uint64)"))
	ValidatorCreatedTopic       = crypto.Keccak256Hash([]byte("ValidatorCreated(uint64,address,uint256)"))
	ValidatorStatusChangedTopic = crypto.Keccak256Hash([]byte("ValidatorStatusChanged(uint64,uint64)"))
	CommissionChangedTopic      = crypto.Keccak256Hash([]byte("CommissionChanged(uint64,uint256,uint256)"))
)

var decoders = map[common.Hash]func(*types.Log) (Event, error){
	DelegateTopic:               decodeDelegate,
	UndelegateTopic:             decodeUndelegate,
	WithdrawTopic:               decodeWithdraw,
	ClaimRewardsTopic:           decodeClaimRewards,
	ValidatorRewardedTopic:      decodeValidatorRewarded,
	EpochChangedTopic:           decodeEpochChanged,
	ValidatorCreatedTopic:       decodeValidatorCreated,
	ValidatorStatusChangedTopic: decodeValidatorStatusChanged,
	CommissionChangedTopic:      decodeCommissionChanged,
}

// Decode converts a raw log into a typed staking event. A log whose first
// topic does not match any known signature returns (nil, nil): unrecognized
// logs are dropped by callers, not treated as errors. A log that matches a
// known signature but carries a malformed payload returns an error.
func Decode(log *types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}

	decode, ok := decoders[log.Topics[0]]
	if !ok {
		return nil, nil
	}

	return decode(log)
}

func checkShape(log *types.Log, name string, topics, dataWords int) error {
	if len(log.Topics) != topics {
		return fmt.Errorf("invalid %s event: expected %d topics, got %d", name, topics, len(log.Topics))
	}
	if len(log.Data) != dataWords*wordSize {
		return fmt.Errorf("invalid %s event: expected %d bytes of data, got %d",
			name, dataWords*wordSize, len(log.Data))
	}
	return nil
}

// topicUint64 extracts a uint64 from an indexed 32-byte topic word.
func topicUint64(topic common.Hash) uint64 {
	return binary.BigEndian.Uint64(topic[wordSize-8:])
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}

func dataWord(data []byte, i int) []byte {
	return data[i*wordSize : (i+1)*wordSize]
}

func dataUint64(data []byte, i int) uint64 {
	word := dataWord(data, i)
	return binary.BigEndian.Uint64(word[wordSize-8:])
}

func dataUint8(data []byte, i int) uint8 {
	word := dataWord(data, i)
	return word[wordSize-1]
}

func dataBigInt(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(dataWord(data, i))
}

// decodeDelegate parses a Delegate event.
// Delegate(uint64 indexed valId, address indexed delegator, uint256 amount, uint64 activationEpoch)
func decodeDelegate(log *types.Log) (Event, error) {
	if err := checkShape(log, "Delegate", 3, 2); err != nil {
		return nil, err
	}

	return &DelegateEvent{
		ValID:           topicUint64(log.Topics[1]),
		Delegator:       topicAddress(log.Topics[2]),
		Amount:          dataBigInt(log.Data, 0),
		ActivationEpoch: dataUint64(log.Data, 1),
		BlockNumber:     log.BlockNumber,
		BlockHash:       log.BlockHash,
		TxHash:          log.TxHash,
		TxIndex:         log.TxIndex,
		LogIndex:        log.Index,
	}, nil
}

// decodeUndelegate parses an Undelegate event.
// Undelegate(uint64 indexed valId, address indexed delegator, uint8 withdrawalId, uint256 amount, uint64 activationEpoch)
func decodeUndelegate(log *types.Log) (Event, error) {
	if err := checkShape(log, "Undelegate", 3, 3); err != nil {
		return nil, err
	}

	return &UndelegateEvent{
		ValID:           topicUint64(log.Topics[1]),
		Delegator:       topicAddress(log.Topics[2]),
		WithdrawalID:    dataUint8(log.Data, 0),
		Amount:          dataBigInt(log.Data, 1),
		ActivationEpoch: dataUint64(log.Data, 2),
		BlockNumber:     log.BlockNumber,
		BlockHash:       log.BlockHash,
		TxHash:          log.TxHash,
		TxIndex:         log.TxIndex,
		LogIndex:        log.Index,
	}, nil
}

// decodeWithdraw parses a Withdraw event, same layout as Undelegate.
func decodeWithdraw(log *types.Log) (Event, error) {
	if err := checkShape(log, "Withdraw", 3, 3); err != nil {
		return nil, err
	}

	return &WithdrawEvent{
		ValID:           topicUint64(log.Topics[1]),
		Delegator:       topicAddress(log.Topics[2]),
		WithdrawalID:    dataUint8(log.Data, 0),
		Amount:          dataBigInt(log.Data, 1),
		ActivationEpoch: dataUint64(log.Data, 2),
		BlockNumber:     log.BlockNumber,
		BlockHash:       log.BlockHash,
		TxHash:          log.TxHash,
		TxIndex:         log.TxIndex,
		LogIndex:        log.Index,
	}, nil
}

// decodeClaimRewards parses a ClaimRewards event.
// ClaimRewards(uint64 indexed valId, address indexed delegator, uint256 amount, uint64 epoch)
func decodeClaimRewards(log *types.Log) (Event, error) {
	if err := checkShape(log, "ClaimRewards", 3, 2); err != nil {
		return nil, err
	}

	return &ClaimRewardsEvent{
		ValID:       topicUint64(log.Topics[1]),
		Delegator:   topicAddress(log.Topics[2]),
		Amount:      dataBigInt(log.Data, 0),
		Epoch:       dataUint64(log.Data, 1),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
	}, nil
}

// decodeValidatorRewarded parses a ValidatorRewarded event.
// ValidatorRewarded(uint64 indexed validatorId, address indexed from, uint256 amount, uint64 epoch)
func decodeValidatorRewarded(log *types.Log) (Event, error) {
	if err := checkShape(log, "ValidatorRewarded", 3, 2); err != nil {
		return nil, err
	}

	return &ValidatorRewardedEvent{
		ValidatorID: topicUint64(log.Topics[1]),
		FromAddress: topicAddress(log.Topics[2]),
		Amount:      dataBigInt(log.Data, 0),
		Epoch:       dataUint64(log.Data, 1),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
	}, nil
}

// decodeEpochChanged parses an EpochChanged event.
// EpochChanged(uint64 oldEpoch, uint64 newEpoch), nothing indexed
func decodeEpochChanged(log *types.Log) (Event, error) {
	if err := checkShape(log, "EpochChanged", 1, 2); err != nil {
		return nil, err
	}

	return &EpochChangedEvent{
		OldEpoch:    dataUint64(log.Data, 0),
		NewEpoch:    dataUint64(log.Data, 1),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
	}, nil
}

// decodeValidatorCreated parses a ValidatorCreated event.
// ValidatorCreated(uint64 indexed validatorId, address indexed authAddress, uint256 commission)
func decodeValidatorCreated(log *types.Log) (Event, error) {
	if err := checkShape(log, "ValidatorCreated", 3, 1); err != nil {
		return nil, err
	}

	return &ValidatorCreatedEvent{
		ValidatorID: topicUint64(log.Topics[1]),
		AuthAddress: topicAddress(log.Topics[2]),
		Commission:  dataBigInt(log.Data, 0),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
	}, nil
}

// decodeValidatorStatusChanged parses a ValidatorStatusChanged event.
// ValidatorStatusChanged(uint64 indexed validatorId, uint64 flags)
func decodeValidatorStatusChanged(log *types.Log) (Event, error) {
	if err := checkShape(log, "ValidatorStatusChanged", 2, 1); err != nil {
		return nil, err
	}

	return &ValidatorStatusChangedEvent{
		ValidatorID: topicUint64(log.Topics[1]),
		Flags:       dataUint64(log.Data, 0),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
	}, nil
}

// decodeCommissionChanged parses a CommissionChanged event.
// CommissionChanged(uint64 indexed validatorId, uint256 oldCommission, uint256 newCommission)
func decodeCommissionChanged(log *types.Log) (Event, error) {
	if err := checkShape(log, "CommissionChanged", 2, 2); err != nil {
		return nil, err
	}

	return &CommissionChangedEvent{
		ValidatorID:   topicUint64(log.Topics[1]),
		OldCommission: dataBigInt(log.Data, 0),
		NewCommission: dataBigInt(log.Data, 1),
		BlockNumber:   log.BlockNumber,
		BlockHash:     log.BlockHash,
		TxHash:        log.TxHash,
		TxIndex:       log.TxIndex,
		LogIndex:      log.Index,
	}, nil
}
