package services

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/cache"
)

// PriceSource fetches fresh USD prices
type PriceSource interface {
	FetchPrices(ctx context.Context) (entities.PriceMap, error)
}

const localPricesKey = "prices"

// PriceService serves USD prices for the quoted asset set. Lookups go through
// an in-process cache, then the shared Redis cache, then the source. When the
// source fails it serves the last good map, or zeros on a cold start.
type PriceService struct {
	source PriceSource
	local  *ristretto.Cache
	cache  *cache.RedisCache
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	lastGood entities.PriceMap
}

// NewPriceService creates a new price service. cache may be nil.
func NewPriceService(source PriceSource, cache *cache.RedisCache, ttl time.Duration, logger *zap.Logger) (*PriceService, error) {
	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        100,
		MaxCost:            10,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	return &PriceService{
		source: source,
		local:  local,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Close releases the in-process cache
func (s *PriceService) Close() {
	s.local.Close()
}

// GetPrices returns a complete price map. It never fails: unknown prices are 0.
func (s *PriceService) GetPrices(ctx context.Context) entities.PriceMap {
	if v, ok := s.local.Get(localPricesKey); ok {
		if prices, ok := v.(entities.PriceMap); ok {
			return complete(prices)
		}
	}

	if s.cache != nil {
		var cached entities.PriceMap
		if err := s.cache.Get(ctx, cache.PricesKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cache.PricesKey))
			s.storeLocal(cached)
			return complete(cached)
		}
	}

	return s.Refresh(ctx)
}

// Refresh bypasses the caches and queries the source
func (s *PriceService) Refresh(ctx context.Context) entities.PriceMap {
	prices, err := s.source.FetchPrices(ctx)
	if err != nil {
		s.mu.RLock()
		lastGood := s.lastGood
		s.mu.RUnlock()

		if lastGood != nil {
			s.logger.Warn("Failed to fetch prices, serving last known prices", zap.Error(err))
			return complete(lastGood)
		}
		s.logger.Warn("Failed to fetch prices, serving zero prices", zap.Error(err))
		return entities.ZeroPrices()
	}

	prices = complete(prices)

	s.mu.Lock()
	s.lastGood = prices
	s.mu.Unlock()

	s.storeLocal(prices)
	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cache.PricesKey, prices, s.ttl); err != nil {
			s.logger.Warn("Failed to cache prices", zap.Error(err))
		}
	}

	return complete(prices)
}

func (s *PriceService) storeLocal(prices entities.PriceMap) {
	if s.ttl <= 0 {
		return
	}
	s.local.SetWithTTL(localPricesKey, complete(prices), 1, s.ttl)
	s.local.Wait()
}

// complete returns a copy with every quoted asset present
func complete(prices entities.PriceMap) entities.PriceMap {
	out := entities.ZeroPrices()
	for asset, price := range prices {
		out[asset] = price
	}
	return out
}
