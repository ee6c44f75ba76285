package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/testutil"
)

func setupPositionServiceTest(t *testing.T, adapters ...ProtocolAdapter) (*PositionService, *testutil.MockLedgerRepository) {
	t.Helper()

	logger := zap.NewNop()
	source := &testutil.MockPriceSource{
		FetchPricesFunc: func(ctx context.Context) (entities.PriceMap, error) {
			return entities.PriceMap{entities.AssetUSDe: 1}, nil
		},
	}
	prices, err := NewPriceService(source, nil, time.Minute, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(prices.Close)

	repo := testutil.NewMockLedgerRepository()
	ledgers := NewLedgerService(repo, nil, nil, common.Address{}, 0, logger)
	aggregator := NewAggregator(NewRegistry(adapters...), prices, 2, logger, nil)

	return NewPositionService(aggregator, prices, ledgers, nil, time.Minute, 2, logger), repo
}

func TestPositionService_GetPositions(t *testing.T) {
	ethena := &stubAdapter{protocol: entities.ProtocolEthena, fetch: onePosition(entities.ProtocolEthena, 100)}
	spark := &stubAdapter{protocol: entities.ProtocolSpark, fetch: func(_ context.Context, req FetchRequest) []entities.Position {
		return []entities.Position{testutil.CreateTestPosition(
			testutil.PositionWithProtocol(entities.ProtocolSpark),
			testutil.PositionWithAddress(req.Address),
			testutil.PositionWithValue(50),
			testutil.PositionWithAPR7d(0.1),
		)}
	}}
	service, _ := setupPositionServiceTest(t, ethena, spark)

	response, err := service.GetPositions(context.Background(), []string{testutil.AliceAddress})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := response.Data
	if len(data.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(data.Positions))
	}
	if data.Positions[0].Protocol != entities.ProtocolEthena {
		t.Errorf("expected ethena first, got %s", data.Positions[0].Protocol)
	}
	if data.TotalValueUSD != 150 {
		t.Errorf("expected total 150, got %v", data.TotalValueUSD)
	}
	if len(data.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(data.Groups))
	}
	if g := data.Groups[1]; g.Protocol != entities.ProtocolSpark || g.WeightedAPR7d == nil || *g.WeightedAPR7d != 0.1 {
		t.Errorf("unexpected spark group %+v", g)
	}
	if data.Groups[0].WeightedAPR7d != nil {
		t.Error("expected no weighted APR without rates")
	}
	if data.CycleID == "" || data.UpdatedAt == "" {
		t.Error("expected cycle metadata")
	}
}

func TestPositionService_GetPositions_Validation(t *testing.T) {
	service, _ := setupPositionServiceTest(t)
	ctx := context.Background()

	if _, err := service.GetPositions(ctx, []string{" "}); !errors.Is(err, ErrNoAddresses) {
		t.Errorf("expected ErrNoAddresses, got %v", err)
	}

	_, err := service.GetPositions(ctx, []string{testutil.AliceAddress, testutil.BobAddress, testutil.CharlieAddr})
	if !errors.Is(err, ErrTooManyAddresses) {
		t.Errorf("expected ErrTooManyAddresses, got %v", err)
	}
}

func TestPositionService_GetLedger(t *testing.T) {
	service, repo := setupPositionServiceTest(t)
	ctx := context.Background()

	response, err := service.GetLedger(ctx, testutil.AliceAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response != nil {
		t.Fatal("expected nil response for unknown wallet")
	}

	ledger := entities.NewDepositLedger(testutil.AliceAddress)
	ledger.LastIndexedBlock = 42
	ledger.TotalDeposited = new(big.Int).Mul(big.NewInt(3), testutil.Ether(1_000_000_000))
	ledger.TotalWithdrawn.SetInt64(1)
	repo.AddLedger(ledger)

	response, err = service.GetLedger(ctx, testutil.AliceAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Data.TotalDeposited != "3000000000000000000000000000" {
		t.Errorf("unexpected deposited %s", response.Data.TotalDeposited)
	}
	if response.Data.NetDeposited != "2999999999999999999999999999" {
		t.Errorf("unexpected net %s", response.Data.NetDeposited)
	}
	if response.Data.LastIndexedBlock != 42 {
		t.Errorf("expected block 42, got %d", response.Data.LastIndexedBlock)
	}
}

func TestGroupByProtocol(t *testing.T) {
	positions := []entities.Position{
		testutil.CreateTestPosition(testutil.PositionWithValue(100), testutil.PositionWithAPR7d(0.1)),
		testutil.CreateTestPosition(testutil.PositionWithValue(300), testutil.PositionWithAPR7d(0.2)),
		testutil.CreateTestPosition(testutil.PositionWithProtocol(entities.ProtocolPendle), testutil.PositionWithValue(0.5)),
	}

	groups, total := GroupByProtocol(positions)

	if total != 400.5 {
		t.Errorf("expected 400.5, got %v", total)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].PositionCount != 2 || groups[0].TotalValueUSD != 400 {
		t.Errorf("unexpected ethena group %+v", groups[0])
	}
	if groups[0].WeightedAPR7d == nil || *groups[0].WeightedAPR7d != 0.175 {
		t.Errorf("expected weighted APR 0.175, got %v", groups[0].WeightedAPR7d)
	}
}
