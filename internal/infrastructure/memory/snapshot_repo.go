// Package memory provides in-process repository implementations for tests
// and single-node deployments that do not need durable state.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/repositories"
)

var _ repositories.SnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo keeps snapshot series in a map
type SnapshotRepo struct {
	mu     sync.RWMutex
	series map[string][]entities.SnapshotEntry
}

// NewSnapshotRepo creates an empty snapshot repository
func NewSnapshotRepo() *SnapshotRepo {
	return &SnapshotRepo{series: make(map[string][]entities.SnapshotEntry)}
}

// Load returns a copy of the series for a key ordered by time
func (r *SnapshotRepo) Load(ctx context.Context, key string) ([]entities.SnapshotEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]entities.SnapshotEntry, len(r.series[key]))
	copy(entries, r.series[key])
	return entries, nil
}

// Replace overwrites the series stored under a key
func (r *SnapshotRepo) Replace(ctx context.Context, key string, entries []entities.SnapshotEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store(key, entries)
	return nil
}

// Update applies fn to the series under a key while holding the write lock
func (r *SnapshotRepo) Update(ctx context.Context, key string, fn repositories.SnapshotUpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make([]entities.SnapshotEntry, len(r.series[key]))
	copy(current, r.series[key])
	r.store(key, fn(current))
	return nil
}

func (r *SnapshotRepo) store(key string, entries []entities.SnapshotEntry) {
	stored := make([]entities.SnapshotEntry, len(entries))
	copy(stored, entries)
	for i := range stored {
		stored[i].Key = key
	}
	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].TakenAt.Before(stored[j].TakenAt)
	})

	if len(stored) == 0 {
		delete(r.series, key)
		return
	}
	r.series[key] = stored
}
