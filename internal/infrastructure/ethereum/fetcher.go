package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// EventFetcher retrieves farm events for one user in bounded block ranges
type EventFetcher struct {
	backend   Backend
	chunkSize uint64
	logger    *zap.Logger
}

// NewEventFetcher creates a new event fetcher
func NewEventFetcher(backend Backend, chunkSize int, logger *zap.Logger) *EventFetcher {
	if chunkSize <= 0 {
		chunkSize = 50_000
	}
	return &EventFetcher{
		backend:   backend,
		chunkSize: uint64(chunkSize),
		logger:    logger,
	}
}

// ChunkHandler is invoked after each block range has been fetched
type ChunkHandler func(r BlockRange, events []entities.StakeEvent) error

// FetchStakeEvents fetches Staked, Withdrawn and RewardPaid events emitted by
// farm for user in [fromBlock, toBlock]. onChunk runs after every range, in
// ascending order; returning an error stops the walk.
func (f *EventFetcher) FetchStakeEvents(ctx context.Context, farm, user common.Address, fromBlock, toBlock uint64, onChunk ChunkHandler) error {
	for _, r := range SplitBlockRange(fromBlock, toBlock, f.chunkSize) {
		query := BuildStakeFilterQuery(farm, user, r)

		logs, err := f.backend.FilterLogs(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to fetch logs for blocks %d-%d: %w", r.From, r.To, err)
		}

		events, failedIndices := ParseStakeLogs(logs)
		if len(failedIndices) > 0 {
			f.logger.Warn("Failed to parse some logs",
				zap.Int("failed_count", len(failedIndices)),
				zap.Int("total_logs", len(logs)),
			)
		}

		f.logger.Debug("Fetched staking events",
			zap.String("user", user.Hex()),
			zap.Uint64("from_block", r.From),
			zap.Uint64("to_block", r.To),
			zap.Int("event_count", len(events)),
		)

		if onChunk != nil {
			if err := onChunk(r, events); err != nil {
				return err
			}
		}
	}
	return nil
}

// CollectStakeEvents fetches all events in [fromBlock, toBlock]
func (f *EventFetcher) CollectStakeEvents(ctx context.Context, farm, user common.Address, fromBlock, toBlock uint64) ([]entities.StakeEvent, error) {
	var all []entities.StakeEvent
	err := f.FetchStakeEvents(ctx, farm, user, fromBlock, toBlock, func(_ BlockRange, events []entities.StakeEvent) error {
		all = append(all, events...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// BuildStakeFilterQuery builds a filter for the three farm events of one user
func BuildStakeFilterQuery(farm, user common.Address, r BlockRange) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		ToBlock:   new(big.Int).SetUint64(r.To),
		Addresses: []common.Address{farm},
		Topics: [][]common.Hash{
			{StakedEventSignature, WithdrawnEventSignature, RewardPaidEventSignature},
			{common.BytesToHash(user.Bytes())},
		},
	}
}

// BlockRange represents an inclusive range of blocks
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitBlockRange splits an inclusive range into batches of at most batchSize blocks
func SplitBlockRange(fromBlock, toBlock, batchSize uint64) []BlockRange {
	if fromBlock > toBlock || batchSize == 0 {
		return nil
	}

	var ranges []BlockRange
	for current := fromBlock; current <= toBlock; current += batchSize {
		end := current + batchSize - 1
		if end > toBlock || end < current {
			end = toBlock
		}
		ranges = append(ranges, BlockRange{From: current, To: end})
		if end == toBlock {
			break
		}
	}

	return ranges
}
