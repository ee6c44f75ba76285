package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// PriceOracle provides USD prices for a cycle
type PriceOracle interface {
	GetPrices(ctx context.Context) entities.PriceMap
}

// Aggregator fans wallets out over protocol adapters
type Aggregator struct {
	registry Registry
	prices   PriceOracle
	workers  int
	logger   *zap.Logger
	metrics  *AggregatorMetrics
}

// NewAggregator creates a new aggregator. metrics may be nil.
func NewAggregator(registry Registry, prices PriceOracle, workers int, logger *zap.Logger, metrics *AggregatorMetrics) *Aggregator {
	if workers <= 0 {
		workers = 1
	}
	return &Aggregator{
		registry: registry,
		prices:   prices,
		workers:  workers,
		logger:   logger,
		metrics:  metrics,
	}
}

// CycleResult is the outcome of one RunCycle
type CycleResult struct {
	ID        uuid.UUID           `json:"cycle_id"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
	Prices    entities.PriceMap   `json:"prices"`
	Positions []entities.Position `json:"positions"`
}

// RunCycle fetches prices, then aggregates every wallet under a fresh cycle
func (a *Aggregator) RunCycle(ctx context.Context, addresses []string) *CycleResult {
	cycle := NewCycle()
	prices := a.prices.GetPrices(ctx)

	positions := a.AggregateInCycle(ctx, cycle, addresses, prices)

	result := &CycleResult{
		ID:        cycle.ID,
		StartedAt: cycle.StartedAt,
		Duration:  time.Since(cycle.StartedAt),
		Prices:    prices,
		Positions: positions,
	}

	if a.metrics != nil {
		a.metrics.CyclesTotal.Inc()
		a.metrics.CycleDuration.Observe(result.Duration.Seconds())
		counts := make(map[entities.Protocol]int)
		for _, p := range positions {
			counts[p.Protocol]++
		}
		for protocol := range a.registry {
			a.metrics.Positions.WithLabelValues(string(protocol)).Set(float64(counts[protocol]))
		}
	}

	a.logger.Info("Aggregation cycle completed",
		zap.String("cycle_id", cycle.ID.String()),
		zap.Int("addresses", len(addresses)),
		zap.Int("positions", len(positions)),
		zap.Duration("duration", result.Duration),
	)

	return result
}

// Aggregate runs every adapter for every address under a new cycle
func (a *Aggregator) Aggregate(ctx context.Context, addresses []string, prices entities.PriceMap) []entities.Position {
	return a.AggregateInCycle(ctx, NewCycle(), addresses, prices)
}

// AggregateInCycle runs every (address, adapter) pair concurrently and flattens
// the results. A failing or panicking pair contributes nothing and does not
// affect the others. Result order is not meaningful.
func (a *Aggregator) AggregateInCycle(ctx context.Context, cycle *Cycle, addresses []string, prices entities.PriceMap) []entities.Position {
	addresses = NormalizeAddresses(addresses)
	adapters := a.registry.Ordered()

	var (
		mu  sync.Mutex
		out = make([]entities.Position, 0)
	)

	// Plain group: one pair's failure must not cancel the rest
	var g errgroup.Group
	g.SetLimit(a.workers)

	for _, address := range addresses {
		for _, adapter := range adapters {
			address, adapter := address, adapter
			g.Go(func() error {
				positions := a.fetch(ctx, adapter, FetchRequest{
					Address: address,
					Prices:  prices,
					Cycle:   cycle,
				})
				if len(positions) == 0 {
					return nil
				}
				mu.Lock()
				out = append(out, positions...)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	return out
}

func (a *Aggregator) fetch(ctx context.Context, adapter ProtocolAdapter, req FetchRequest) (positions []entities.Position) {
	protocol := string(adapter.Protocol())
	start := time.Now()

	defer func() {
		outcome := "ok"
		if r := recover(); r != nil {
			a.logger.Error("Adapter panicked",
				zap.String("protocol", protocol),
				zap.String("address", req.Address),
				zap.String("panic", fmt.Sprint(r)),
			)
			positions = nil
			outcome = "panic"
		} else if len(positions) == 0 {
			outcome = "empty"
		}

		if a.metrics != nil {
			a.metrics.AdapterFetches.WithLabelValues(protocol, outcome).Inc()
			a.metrics.AdapterLatency.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil
	}

	positions = adapter.FetchPositions(ctx, req)

	valid := make([]entities.Position, 0, len(positions))
	for _, p := range positions {
		if p.Protocol != adapter.Protocol() || p.Address == "" {
			a.logger.Warn("Dropping malformed position",
				zap.String("protocol", protocol),
				zap.String("address", req.Address),
			)
			continue
		}
		p.ValueUSD = entities.NonNegativeUSD(p.ValueUSD)
		valid = append(valid, p)
	}
	return valid
}
