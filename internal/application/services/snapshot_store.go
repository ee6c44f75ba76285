package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/repositories"
)

const (
	// MinSnapshotSpacing is the minimum distance between two stored samples
	MinSnapshotSpacing = 3 * time.Hour

	// SnapshotRetention is how long samples are kept
	SnapshotRetention = 60 * 24 * time.Hour

	// DefaultWiggleDays is the tolerance used when looking up a sample by age
	DefaultWiggleDays = 2
)

// SnapshotStore keeps per-position time series used when a data source
// cannot be queried at a historical block height
type SnapshotStore struct {
	repo   repositories.SnapshotRepository
	locks  *keyedMutex
	logger *zap.Logger
}

// NewSnapshotStore creates a new snapshot store
func NewSnapshotStore(repo repositories.SnapshotRepository, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{
		repo:   repo,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// Append records value at now. A sample closer than MinSnapshotSpacing to the
// latest one overwrites its value and keeps its timestamp. Samples older than
// SnapshotRetention are dropped.
func (s *SnapshotStore) Append(ctx context.Context, key string, value float64, now time.Time) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("invalid snapshot value %v", value)
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	err := s.repo.Update(ctx, key, func(entries []entities.SnapshotEntry) []entities.SnapshotEntry {
		return appendSample(entries, key, value, now)
	})
	if err != nil {
		return fmt.Errorf("failed to store snapshots: %w", err)
	}
	return nil
}

func appendSample(entries []entities.SnapshotEntry, key string, value float64, now time.Time) []entities.SnapshotEntry {
	if n := len(entries); n > 0 && now.Sub(entries[n-1].TakenAt) < MinSnapshotSpacing {
		entries[n-1].Value = value
	} else {
		entries = append(entries, entities.SnapshotEntry{Key: key, TakenAt: now, Value: value})
	}

	kept := entries[:0]
	for _, e := range entries {
		if now.Sub(e.TakenAt) <= SnapshotRetention {
			kept = append(kept, e)
		}
	}
	return kept
}

// QueryNear finds the sample whose age is closest to targetAgeDays within
// ±wiggleDays. Without one, it falls back to the most recent sample strictly
// older than the target. Samples timestamped after now are ignored.
func (s *SnapshotStore) QueryNear(ctx context.Context, key string, targetAgeDays, wiggleDays float64, now time.Time) (entities.SnapshotEntry, bool, error) {
	entries, err := s.repo.Load(ctx, key)
	if err != nil {
		return entities.SnapshotEntry{}, false, fmt.Errorf("failed to load snapshots: %w", err)
	}

	var (
		best      entities.SnapshotEntry
		bestDist  = math.Inf(1)
		found     bool
		older     entities.SnapshotEntry
		olderAge  = math.Inf(1)
		haveOlder bool
	)

	for _, e := range entries {
		age := now.Sub(e.TakenAt).Hours() / 24
		if age < 0 {
			continue
		}

		if age >= targetAgeDays-wiggleDays && age <= targetAgeDays+wiggleDays {
			if dist := math.Abs(age - targetAgeDays); dist < bestDist {
				best, bestDist, found = e, dist, true
			}
		}

		if age > targetAgeDays && age < olderAge {
			older, olderAge, haveOlder = e, age, true
		}
	}

	if found {
		return best, true, nil
	}
	if haveOlder {
		return older, true, nil
	}
	return entities.SnapshotEntry{}, false, nil
}

// HistoricalValue resolves a value for a past point in time: the on-chain
// reading when available, else the nearest stored sample.
func (s *SnapshotStore) HistoricalValue(ctx context.Context, key string, onChain *float64, ageDays float64, now time.Time) (float64, bool) {
	if onChain != nil {
		return *onChain, true
	}
	entry, ok, err := s.QueryNear(ctx, key, ageDays, DefaultWiggleDays, now)
	if err != nil {
		s.logger.Warn("Failed to query snapshots",
			zap.String("key", key),
			zap.Error(err),
		)
		return 0, false
	}
	return entry.Value, ok
}
