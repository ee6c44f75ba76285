package testutil

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	chain "github.com/bimakw/yield-aggregator/internal/infrastructure/ethereum"
)

func TestMockSnapshotRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMockSnapshotRepository()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	err := repo.Replace(ctx, "k", []entities.SnapshotEntry{
		{Key: "k", TakenAt: t0.Add(time.Hour), Value: 2},
		{Key: "k", TakenAt: t0, Value: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := repo.Load(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 || entries[0].Value != 1 {
		t.Errorf("expected sorted entries, got %+v", entries)
	}
	if len(repo.Calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(repo.Calls))
	}
}

func TestMockLedgerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMockLedgerRepository()

	ledger := entities.NewDepositLedger(AliceAddress)
	ledger.TotalDeposited.SetInt64(10)
	if err := repo.Upsert(ctx, ledger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.Get(ctx, AliceAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.TotalDeposited.Int64() != 10 {
		t.Errorf("unexpected ledger %+v", got)
	}
	if repo.CallCount("Upsert") != 1 {
		t.Errorf("expected 1 upsert, got %d", repo.CallCount("Upsert"))
	}
}

func TestFakeChain_DirectAndMulticall(t *testing.T) {
	fc := NewFakeChain(500)
	token := common.HexToAddress(SUSDeAddress)
	holder := common.HexToAddress(AliceAddress)

	fc.Handle(token, chain.ERC20ABI, "balanceOf", func(args []interface{}, block *big.Int) ([]interface{}, error) {
		if args[0].(common.Address) != holder {
			return []interface{}{big.NewInt(0)}, nil
		}
		return []interface{}{big.NewInt(42)}, nil
	})
	fc.Returns(token, chain.ERC20ABI, "decimals", uint8(18))

	modes := map[string][]chain.ReaderOption{
		"multicall":  nil,
		"individual": {chain.WithoutMulticall()},
	}

	for name, opts := range modes {
		t.Run(name, func(t *testing.T) {
			reader := chain.NewReader(fc, chain.DefaultMulticall3Address.Hex(), 2, zap.NewNop(), opts...)
			results := reader.Execute(context.Background(), []chain.Call{
				{Target: token, ABI: chain.ERC20ABI, Method: "balanceOf", Args: []interface{}{holder}},
				{Target: token, ABI: chain.ERC20ABI, Method: "decimals"},
				{Target: token, ABI: chain.ERC20ABI, Method: "symbol"},
			})

			if v, ok := results[0].BigInt(); !ok || v.Int64() != 42 {
				t.Errorf("expected balance 42, got %v", v)
			}
			if d, ok := results[1].Uint8(); !ok || d != 18 {
				t.Errorf("expected decimals 18, got %d", d)
			}
			if results[2].OK() {
				t.Error("expected unregistered method to revert")
			}
		})
	}
}

func TestFakeChain_FilterLogs(t *testing.T) {
	fc := NewFakeChain(1_000)
	fc.Logs = append(fc.Logs,
		StakeLog(FarmAddress, AliceAddress, entities.EventStaked, big.NewInt(5), 100, 0),
		StakeLog(FarmAddress, BobAddress, entities.EventStaked, big.NewInt(7), 100, 1),
		StakeLog(FarmAddress, AliceAddress, entities.EventRewardPaid, big.NewInt(1), 900, 0),
	)

	query := chain.BuildStakeFilterQuery(
		common.HexToAddress(FarmAddress),
		common.HexToAddress(AliceAddress),
		chain.BlockRange{From: 0, To: 500},
	)
	logs, err := fc.FilterLogs(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}

	ev, err := chain.ParseStakeEvent(logs[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != entities.EventStaked || ev.Amount.Int64() != 5 {
		t.Errorf("unexpected event %+v", ev)
	}

}
