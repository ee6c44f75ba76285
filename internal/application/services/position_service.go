package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/cache"
)

// ErrTooManyAddresses is returned when a request exceeds the address limit
var ErrTooManyAddresses = errors.New("too many addresses")

// ErrNoAddresses is returned when a request names no wallet
var ErrNoAddresses = errors.New("no addresses")

// PositionService serves aggregated positions to the API
type PositionService struct {
	aggregator   *Aggregator
	prices       *PriceService
	ledgers      *LedgerService
	cache        *cache.RedisCache
	cacheTTL     time.Duration
	maxAddresses int
	logger       *zap.Logger
}

// NewPositionService creates a new position service. cache and ledgers may be nil.
func NewPositionService(
	aggregator *Aggregator,
	prices *PriceService,
	ledgers *LedgerService,
	cache *cache.RedisCache,
	cacheTTL time.Duration,
	maxAddresses int,
	logger *zap.Logger,
) *PositionService {
	return &PositionService{
		aggregator:   aggregator,
		prices:       prices,
		ledgers:      ledgers,
		cache:        cache,
		cacheTTL:     cacheTTL,
		maxAddresses: maxAddresses,
		logger:       logger,
	}
}

// ProtocolGroup totals the positions of one protocol
type ProtocolGroup struct {
	Protocol      entities.Protocol `json:"protocol"`
	PositionCount int               `json:"position_count"`
	TotalValueUSD float64           `json:"total_value_usd"`
	// Value-weighted APR over positions that report one
	WeightedAPR7d *float64 `json:"weighted_apr_7d,omitempty"`
}

// PositionsDTO is the API representation of a positions query
type PositionsDTO struct {
	CycleID       string              `json:"cycle_id"`
	Addresses     []string            `json:"addresses"`
	Positions     []entities.Position `json:"positions"`
	Groups        []ProtocolGroup     `json:"groups"`
	TotalValueUSD float64             `json:"total_value_usd"`
	UpdatedAt     string              `json:"updated_at"`
}

// PositionsResponse wraps positions for API response
type PositionsResponse struct {
	Data PositionsDTO `json:"data"`
}

// PricesResponse wraps prices for API response
type PricesResponse struct {
	Data entities.PriceMap `json:"data"`
}

// LedgerDTO is the API representation of a deposit ledger
type LedgerDTO struct {
	Address          string `json:"address"`
	LastIndexedBlock uint64 `json:"last_indexed_block"`
	TotalDeposited   string `json:"total_deposited"`
	TotalWithdrawn   string `json:"total_withdrawn"`
	TotalClaimed     string `json:"total_claimed"`
	NetDeposited     string `json:"net_deposited"`
	UpdatedAt        string `json:"updated_at"`
}

// LedgerResponse wraps a deposit ledger for API response
type LedgerResponse struct {
	Data LedgerDTO `json:"data"`
}

// GetPositions aggregates positions for one or more wallets
func (s *PositionService) GetPositions(ctx context.Context, addresses []string) (*PositionsResponse, error) {
	addresses = NormalizeAddresses(addresses)
	if len(addresses) == 0 {
		return nil, ErrNoAddresses
	}
	if s.maxAddresses > 0 && len(addresses) > s.maxAddresses {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyAddresses, len(addresses), s.maxAddresses)
	}

	cacheKey := cache.PositionsKey(addresses)

	var cached PositionsResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	result := s.aggregator.RunCycle(ctx, addresses)
	SortPositions(result.Positions)

	groups, total := GroupByProtocol(result.Positions)
	response := &PositionsResponse{
		Data: PositionsDTO{
			CycleID:       result.ID.String(),
			Addresses:     addresses,
			Positions:     result.Positions,
			Groups:        groups,
			TotalValueUSD: total,
			UpdatedAt:     result.StartedAt.UTC().Format(time.RFC3339),
		},
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, response, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}

// GetPrices returns the current price map
func (s *PositionService) GetPrices(ctx context.Context) *PricesResponse {
	return &PricesResponse{Data: s.prices.GetPrices(ctx)}
}

// GetLedger returns the stored deposit ledger of a wallet, or nil
func (s *PositionService) GetLedger(ctx context.Context, address string) (*LedgerResponse, error) {
	if s.ledgers == nil {
		return nil, nil
	}

	cacheKey := cache.LedgerKey(address)

	var cached LedgerResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	ledger, err := s.ledgers.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, nil
	}

	net := new(big.Int).Sub(ledger.TotalDeposited, ledger.TotalWithdrawn)
	response := &LedgerResponse{
		Data: LedgerDTO{
			Address:          ledger.Address,
			LastIndexedBlock: ledger.LastIndexedBlock,
			TotalDeposited:   ledger.TotalDeposited.String(),
			TotalWithdrawn:   ledger.TotalWithdrawn.String(),
			TotalClaimed:     ledger.TotalClaimed.String(),
			NetDeposited:     net.String(),
			UpdatedAt:        ledger.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, response, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache ledger", zap.Error(err))
		}
	}

	return response, nil
}

// SortPositions orders positions by protocol, then value descending
func SortPositions(positions []entities.Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].Protocol != positions[j].Protocol {
			return positions[i].Protocol < positions[j].Protocol
		}
		if positions[i].ValueUSD != positions[j].ValueUSD {
			return positions[i].ValueUSD > positions[j].ValueUSD
		}
		return positions[i].Asset < positions[j].Asset
	})
}

// GroupByProtocol computes per-protocol totals and the overall USD value
func GroupByProtocol(positions []entities.Position) ([]ProtocolGroup, float64) {
	type acc struct {
		count       int
		total       decimal.Decimal
		aprWeighted decimal.Decimal
		aprValue    decimal.Decimal
	}

	byProtocol := make(map[entities.Protocol]*acc)
	overall := decimal.Zero

	for _, p := range positions {
		a, ok := byProtocol[p.Protocol]
		if !ok {
			a = &acc{}
			byProtocol[p.Protocol] = a
		}
		value := decimal.NewFromFloat(p.ValueUSD)
		a.count++
		a.total = a.total.Add(value)
		overall = overall.Add(value)

		if p.APR7d != nil && p.ValueUSD > 0 {
			a.aprWeighted = a.aprWeighted.Add(value.Mul(decimal.NewFromFloat(*p.APR7d)))
			a.aprValue = a.aprValue.Add(value)
		}
	}

	groups := make([]ProtocolGroup, 0, len(byProtocol))
	for _, protocol := range entities.AllProtocols {
		a, ok := byProtocol[protocol]
		if !ok {
			continue
		}
		g := ProtocolGroup{
			Protocol:      protocol,
			PositionCount: a.count,
			TotalValueUSD: a.total.InexactFloat64(),
		}
		if a.aprValue.IsPositive() {
			g.WeightedAPR7d = entities.Yield(a.aprWeighted.Div(a.aprValue).InexactFloat64())
		}
		groups = append(groups, g)
	}

	return groups, overall.InexactFloat64()
}
