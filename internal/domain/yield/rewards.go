package yield

import (
	"math/big"
	"sort"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// EventsInWindow returns the events with fromBlock < block <= toBlock,
// ordered by block and log index.
func EventsInWindow(events []entities.StakeEvent, fromBlock, toBlock uint64) []entities.StakeEvent {
	window := make([]entities.StakeEvent, 0, len(events))
	for _, ev := range events {
		if ev.BlockNumber > fromBlock && ev.BlockNumber <= toBlock {
			window = append(window, ev)
		}
	}
	sort.SliceStable(window, func(i, j int) bool {
		if window[i].BlockNumber != window[j].BlockNumber {
			return window[i].BlockNumber < window[j].BlockNumber
		}
		return window[i].LogIndex < window[j].LogIndex
	})
	return window
}

// SumRewards adds up the RewardPaid amounts in (fromBlock, toBlock].
func SumRewards(events []entities.StakeEvent, fromBlock, toBlock uint64) *big.Int {
	total := new(big.Int)
	for _, ev := range EventsInWindow(events, fromBlock, toBlock) {
		if ev.Kind == entities.EventRewardPaid && ev.Amount != nil {
			total.Add(total, ev.Amount)
		}
	}
	return total
}

// WeightedAveragePosition reconstructs the block-weighted average stake over
// (fromBlock, toBlock]. It walks back from currentBalance through the window's
// events, undoing each deposit and withdrawal to infer the size held before it.
// Inferred sizes below zero are treated as zero. The result is in raw token units.
func WeightedAveragePosition(events []entities.StakeEvent, currentBalance *big.Int, fromBlock, toBlock uint64) *big.Float {
	if toBlock <= fromBlock {
		return new(big.Float)
	}

	balance := new(big.Int)
	if currentBalance != nil {
		balance.Set(currentBalance)
	}

	window := EventsInWindow(events, fromBlock, toBlock)
	weighted := new(big.Int)
	cursor := toBlock

	for i := len(window) - 1; i >= 0; i-- {
		ev := window[i]
		held := new(big.Int).SetUint64(cursor - ev.BlockNumber)
		weighted.Add(weighted, new(big.Int).Mul(balance, held))

		if ev.Amount != nil {
			switch ev.Kind {
			case entities.EventStaked:
				balance.Sub(balance, ev.Amount)
			case entities.EventWithdrawn:
				balance.Add(balance, ev.Amount)
			}
		}
		if balance.Sign() < 0 {
			balance.SetInt64(0)
		}
		cursor = ev.BlockNumber
	}
	held := new(big.Int).SetUint64(cursor - fromBlock)
	weighted.Add(weighted, new(big.Int).Mul(balance, held))

	avg := new(big.Float).SetInt(weighted)
	return avg.Quo(avg, new(big.Float).SetUint64(toBlock-fromBlock))
}

// TimeWeightedAPR annualizes rewards earned over a window of windowBlocks
// blocks against the average position held. Both amounts must be in the same
// unit. A zero average or an empty window yields 0.
func TimeWeightedAPR(rewards, avgPosition float64, windowBlocks uint64, blocksPerYear float64) float64 {
	if avgPosition <= 0 || windowBlocks == 0 || !finite(avgPosition) || !finite(rewards) {
		return 0
	}
	apr := (rewards / avgPosition) * (blocksPerYear / float64(windowBlocks))
	if !finite(apr) {
		return 0
	}
	return apr
}
