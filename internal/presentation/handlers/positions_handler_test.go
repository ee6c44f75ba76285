package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/application/services"
	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/testutil"
)

// fixedAdapter reports one position per wallet
type fixedAdapter struct {
	protocol entities.Protocol
	value    float64
}

func (a *fixedAdapter) Protocol() entities.Protocol { return a.protocol }

func (a *fixedAdapter) FetchPositions(_ context.Context, req services.FetchRequest) []entities.Position {
	return []entities.Position{testutil.CreateTestPosition(
		testutil.PositionWithProtocol(a.protocol),
		testutil.PositionWithAddress(req.Address),
		testutil.PositionWithValue(a.value),
	)}
}

func setupPositionsHandlerTest(t *testing.T) (http.Handler, *testutil.MockLedgerRepository) {
	t.Helper()

	logger := zap.NewNop()
	source := &testutil.MockPriceSource{
		FetchPricesFunc: func(ctx context.Context) (entities.PriceMap, error) {
			return entities.PriceMap{entities.AssetUSDe: 1, entities.AssetSPK: 0.05}, nil
		},
	}
	prices, err := services.NewPriceService(source, nil, time.Minute, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(prices.Close)

	registry := services.NewRegistry(
		&fixedAdapter{protocol: entities.ProtocolEthena, value: 100},
		&fixedAdapter{protocol: entities.ProtocolSpark, value: 25},
	)
	aggregator := services.NewAggregator(registry, prices, 2, logger, nil)

	repo := testutil.NewMockLedgerRepository()
	ledgers := services.NewLedgerService(repo, nil, nil, common.Address{}, 0, logger)
	service := services.NewPositionService(aggregator, prices, ledgers, nil, time.Minute, 2, logger)

	r := chi.NewRouter()
	NewPositionsHandler(service, logger).RegisterRoutes(r)
	return r, repo
}

func TestPositionsHandler_GetWalletPositions(t *testing.T) {
	router, _ := setupPositionsHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/wallets/"+testutil.AliceAddress[2:]+"/positions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without 0x prefix, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/wallets/"+testutil.AliceAddress+"/positions", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response services.PositionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Data.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(response.Data.Positions))
	}
	if response.Data.TotalValueUSD != 125 {
		t.Errorf("expected total 125, got %v", response.Data.TotalValueUSD)
	}
	if len(response.Data.Addresses) != 1 || response.Data.Addresses[0] != testutil.AliceAddress {
		t.Errorf("unexpected addresses %v", response.Data.Addresses)
	}
}

func TestPositionsHandler_GetPositions(t *testing.T) {
	router, _ := setupPositionsHandlerTest(t)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
	}{
		{
			name:     "missing parameter",
			query:    "",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid address",
			query:    "?addresses=" + testutil.AliceAddress + ",0x123",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "only separators",
			query:    "?addresses=,,",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "too many addresses",
			query:    "?addresses=" + testutil.AliceAddress + "," + testutil.BobAddress + "," + testutil.CharlieAddr,
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "two wallets with duplicate",
			query:     "?addresses=" + testutil.AliceAddress + "," + testutil.BobAddress + "," + testutil.AliceAddress,
			wantCode:  http.StatusOK,
			wantCount: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/positions"+tt.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}

			if tt.wantCode != http.StatusOK {
				var body map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode error: %v", err)
				}
				if body["error"] == "" {
					t.Error("expected error message")
				}
				return
			}

			var response services.PositionsResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(response.Data.Positions) != tt.wantCount {
				t.Errorf("expected %d positions, got %d", tt.wantCount, len(response.Data.Positions))
			}
		})
	}
}

func TestPositionsHandler_GetPrices(t *testing.T) {
	router, _ := setupPositionsHandlerTest(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var response services.PricesResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Data[entities.AssetSPK] != 0.05 {
		t.Errorf("expected spk 0.05, got %v", response.Data[entities.AssetSPK])
	}
}

func TestPositionsHandler_GetLedger(t *testing.T) {
	router, repo := setupPositionsHandlerTest(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallets/"+testutil.BobAddress+"/ledger", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallets/bob/ledger", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}

	ledger := entities.NewDepositLedger(testutil.BobAddress)
	ledger.LastIndexedBlock = 7
	ledger.TotalDeposited.SetInt64(10)
	ledger.TotalWithdrawn.SetInt64(4)
	repo.AddLedger(ledger)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallets/"+testutil.BobAddress+"/ledger", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var response services.LedgerResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Data.NetDeposited != "6" || response.Data.LastIndexedBlock != 7 {
		t.Errorf("unexpected ledger %+v", response.Data)
	}
}

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{testutil.AliceAddress, true},
		{"0xAbCdEf0123456789aBcDeF0123456789AbCdEf01", true},
		{"0X1111111111111111111111111111111111111111", true},
		{"1111111111111111111111111111111111111111", false},
		{"0x111", false},
		{"0xzz11111111111111111111111111111111111111", false},
	}

	for _, tt := range tests {
		if got := isValidAddress(tt.addr); got != tt.want {
			t.Errorf("isValidAddress(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
