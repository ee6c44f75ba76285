package ethereum

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

func TestSplitBlockRange(t *testing.T) {
	tests := []struct {
		name     string
		from     uint64
		to       uint64
		size     uint64
		expected []BlockRange
	}{
		{"single block", 10, 10, 5, []BlockRange{{10, 10}}},
		{"exact multiple", 0, 9, 5, []BlockRange{{0, 4}, {5, 9}}},
		{"remainder", 1, 12, 5, []BlockRange{{1, 5}, {6, 10}, {11, 12}}},
		{"inverted range", 10, 1, 5, nil},
		{"zero batch size", 1, 10, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitBlockRange(tt.from, tt.to, tt.size)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d ranges, got %d (%v)", len(tt.expected), len(got), got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("range %d: expected %v, got %v", i, tt.expected[i], got[i])
				}
			}
		})
	}
}

type logBackend struct {
	fakeBackend
	queries []ethereum.FilterQuery
	logs    map[uint64][]types.Log
	failAt  uint64
}

func (b *logBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.queries = append(b.queries, q)
	from := q.FromBlock.Uint64()
	if b.failAt != 0 && from == b.failAt {
		return nil, errors.New("query returned more than 10000 results")
	}
	return b.logs[from], nil
}

func TestEventFetcher_FetchStakeEvents(t *testing.T) {
	farm := common.HexToAddress("0x173e314C7635B45322cd8Cb14f44b312e079F3af")

	t.Run("walks chunks in order", func(t *testing.T) {
		backend := &logBackend{logs: map[uint64][]types.Log{
			100: {stakeLog(StakedEventSignature, 50, 120)},
			200: {stakeLog(RewardPaidEventSignature, 5, 230), stakeLog(WithdrawnEventSignature, 10, 250)},
		}}
		fetcher := NewEventFetcher(backend, 100, zap.NewNop())

		var chunks []BlockRange
		var total int
		err := fetcher.FetchStakeEvents(context.Background(), farm, holder, 100, 250, func(r BlockRange, events []entities.StakeEvent) error {
			chunks = append(chunks, r)
			total += len(events)
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chunks) != 2 || chunks[0] != (BlockRange{100, 199}) || chunks[1] != (BlockRange{200, 250}) {
			t.Errorf("unexpected chunks: %v", chunks)
		}
		if total != 3 {
			t.Errorf("expected 3 events, got %d", total)
		}

		q := backend.queries[0]
		if len(q.Topics) != 2 || len(q.Topics[0]) != 3 {
			t.Fatalf("unexpected topics: %v", q.Topics)
		}
		if q.Topics[1][0] != common.BytesToHash(holder.Bytes()) {
			t.Error("expected user topic filter")
		}
		if q.Addresses[0] != farm {
			t.Error("expected farm address filter")
		}
	})

	t.Run("stops on fetch error", func(t *testing.T) {
		backend := &logBackend{failAt: 200}
		fetcher := NewEventFetcher(backend, 100, zap.NewNop())

		var handled int
		err := fetcher.FetchStakeEvents(context.Background(), farm, holder, 100, 350, func(r BlockRange, events []entities.StakeEvent) error {
			handled++
			return nil
		})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if handled != 1 {
			t.Errorf("expected 1 handled chunk before failure, got %d", handled)
		}
	})

	t.Run("stops on handler error", func(t *testing.T) {
		backend := &logBackend{}
		fetcher := NewEventFetcher(backend, 100, zap.NewNop())

		stop := errors.New("stop")
		err := fetcher.FetchStakeEvents(context.Background(), farm, holder, 0, 1_000, func(r BlockRange, events []entities.StakeEvent) error {
			return stop
		})
		if !errors.Is(err, stop) {
			t.Errorf("expected stop error, got %v", err)
		}
		if len(backend.queries) != 1 {
			t.Errorf("expected 1 query, got %d", len(backend.queries))
		}
	})
}
