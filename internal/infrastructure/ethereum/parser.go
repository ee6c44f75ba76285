package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// Staking event signatures derived from the staking rewards ABI
var (
	StakedEventSignature     = StakingRewardsABI.Events["Staked"].ID
	WithdrawnEventSignature  = StakingRewardsABI.Events["Withdrawn"].ID
	RewardPaidEventSignature = StakingRewardsABI.Events["RewardPaid"].ID
)

var stakeEventKinds = map[common.Hash]entities.StakeEventKind{
	StakedEventSignature:     entities.EventStaked,
	WithdrawnEventSignature:  entities.EventWithdrawn,
	RewardPaidEventSignature: entities.EventRewardPaid,
}

// ParseStakeEvent parses a raw farm log into a StakeEvent
func ParseStakeEvent(log types.Log) (*entities.StakeEvent, error) {
	// Topics[0] = signature, Topics[1] = indexed user
	if len(log.Topics) != 2 {
		return nil, fmt.Errorf("invalid number of topics: expected 2, got %d", len(log.Topics))
	}

	kind, ok := stakeEventKinds[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("not a staking event")
	}

	if len(log.Data) != 32 {
		return nil, fmt.Errorf("invalid data length: expected 32, got %d", len(log.Data))
	}

	return &entities.StakeEvent{
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		Kind:        kind,
		Amount:      new(big.Int).SetBytes(log.Data),
	}, nil
}

// ParseStakeLogs parses multiple logs, skipping removed logs.
// Returns parsed events and a list of failed log indices.
func ParseStakeLogs(logs []types.Log) ([]entities.StakeEvent, []int) {
	events := make([]entities.StakeEvent, 0, len(logs))
	failedIndices := make([]int, 0)

	for i, log := range logs {
		if log.Removed {
			continue
		}
		event, err := ParseStakeEvent(log)
		if err != nil {
			failedIndices = append(failedIndices, i)
			continue
		}
		events = append(events, *event)
	}

	return events, failedIndices
}

// IsStakeEvent checks if a log is one of the farm events
func IsStakeEvent(log types.Log) bool {
	if len(log.Topics) != 2 {
		return false
	}
	_, ok := stakeEventKinds[log.Topics[0]]
	return ok
}
