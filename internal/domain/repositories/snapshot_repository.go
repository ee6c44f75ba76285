package repositories

import (
	"context"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// SnapshotRepository persists snapshot series keyed by position
type SnapshotRepository interface {
	// Load returns the series for a key ordered by time, or an empty slice
	Load(ctx context.Context, key string) ([]entities.SnapshotEntry, error)

	// Replace overwrites the series stored under a key
	Replace(ctx context.Context, key string, entries []entities.SnapshotEntry) error

	// Update replaces the series under a key with fn applied to the stored
	// one. Concurrent updates of the same key are serialized, across
	// processes for shared stores.
	Update(ctx context.Context, key string, fn SnapshotUpdateFunc) error
}

// SnapshotUpdateFunc derives the new series from the stored one
type SnapshotUpdateFunc func(entries []entities.SnapshotEntry) []entities.SnapshotEntry
