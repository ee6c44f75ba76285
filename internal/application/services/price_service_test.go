package services

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/testutil"
)

func setupPriceServiceTest(t *testing.T, ttl time.Duration) (*PriceService, *testutil.MockPriceSource) {
	t.Helper()

	source := &testutil.MockPriceSource{}
	service, err := NewPriceService(source, nil, ttl, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(service.Close)
	return service, source
}

func TestPriceService_GetPrices_ColdFailure(t *testing.T) {
	service, source := setupPriceServiceTest(t, time.Minute)
	source.FetchPricesFunc = func(ctx context.Context) (entities.PriceMap, error) {
		return nil, testutil.ErrMock
	}

	prices := service.GetPrices(context.Background())

	if len(prices) != len(entities.AllAssets) {
		t.Fatalf("expected %d assets, got %d", len(entities.AllAssets), len(prices))
	}
	for _, asset := range entities.AllAssets {
		if prices[asset] != 0 {
			t.Errorf("expected zero price for %s, got %v", asset, prices[asset])
		}
	}
}

func TestPriceService_GetPrices_CompletesMissingAssets(t *testing.T) {
	service, source := setupPriceServiceTest(t, time.Minute)
	source.FetchPricesFunc = func(ctx context.Context) (entities.PriceMap, error) {
		return entities.PriceMap{entities.AssetUSDe: 1.001, entities.AssetSPK: 0.05}, nil
	}

	prices := service.GetPrices(context.Background())

	if prices.USD(entities.AssetUSDe) != 1.001 {
		t.Errorf("expected usde 1.001, got %v", prices.USD(entities.AssetUSDe))
	}
	if _, ok := prices[entities.AssetBTC]; !ok {
		t.Error("expected btc to be present")
	}
}

func TestPriceService_GetPrices_CachesLocally(t *testing.T) {
	service, source := setupPriceServiceTest(t, time.Minute)
	source.FetchPricesFunc = func(ctx context.Context) (entities.PriceMap, error) {
		return entities.PriceMap{entities.AssetETH: 3000}, nil
	}

	ctx := context.Background()
	first := service.GetPrices(ctx)
	second := service.GetPrices(ctx)

	if first.USD(entities.AssetETH) != 3000 || second.USD(entities.AssetETH) != 3000 {
		t.Errorf("unexpected prices %v / %v", first, second)
	}
	if source.CallCount() != 1 {
		t.Errorf("expected 1 source call, got %d", source.CallCount())
	}

	// Callers must not be able to poison the cache
	second[entities.AssetETH] = 1
	if third := service.GetPrices(ctx); third.USD(entities.AssetETH) != 3000 {
		t.Errorf("expected cached price 3000, got %v", third.USD(entities.AssetETH))
	}
}

func TestPriceService_Refresh_LastKnownGood(t *testing.T) {
	service, source := setupPriceServiceTest(t, 0)

	fail := false
	source.FetchPricesFunc = func(ctx context.Context) (entities.PriceMap, error) {
		if fail {
			return nil, testutil.ErrMock
		}
		return entities.PriceMap{entities.AssetBTC: 60000}, nil
	}

	ctx := context.Background()
	if prices := service.Refresh(ctx); prices.USD(entities.AssetBTC) != 60000 {
		t.Fatalf("expected btc 60000, got %v", prices.USD(entities.AssetBTC))
	}

	fail = true
	if prices := service.Refresh(ctx); prices.USD(entities.AssetBTC) != 60000 {
		t.Errorf("expected last known btc 60000, got %v", prices.USD(entities.AssetBTC))
	}
	if source.CallCount() != 2 {
		t.Errorf("expected 2 source calls, got %d", source.CallCount())
	}
}
