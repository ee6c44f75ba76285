package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/repositories"
)

// Ensure SnapshotRepo implements SnapshotRepository
var _ repositories.SnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo implements SnapshotRepository using PostgreSQL
type SnapshotRepo struct {
	db *sqlx.DB
}

// NewSnapshotRepo creates a new snapshot repository
func NewSnapshotRepo(db *sqlx.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

const loadSnapshotsQuery = `
	SELECT position_key, taken_at, value
	FROM position_snapshots
	WHERE position_key = $1
	ORDER BY taken_at ASC
`

// Load returns the series for a key ordered by time
func (r *SnapshotRepo) Load(ctx context.Context, key string) ([]entities.SnapshotEntry, error) {
	entries := []entities.SnapshotEntry{}
	if err := r.db.SelectContext(ctx, &entries, loadSnapshotsQuery, key); err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	return entries, nil
}

// Replace overwrites the series stored under a key in one transaction
func (r *SnapshotRepo) Replace(ctx context.Context, key string, entries []entities.SnapshotEntry) error {
	return r.Update(ctx, key, func([]entities.SnapshotEntry) []entities.SnapshotEntry {
		return entries
	})
}

// Update reads, transforms and rewrites the series under a key in one
// transaction. A transaction-scoped advisory lock on the key serializes
// writers from every process sharing the database.
func (r *SnapshotRepo) Update(ctx context.Context, key string, fn repositories.SnapshotUpdateFunc) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to lock snapshots: %w", err)
	}

	current := []entities.SnapshotEntry{}
	if err := tx.SelectContext(ctx, &current, loadSnapshotsQuery, key); err != nil {
		return fmt.Errorf("failed to load snapshots: %w", err)
	}

	entries := fn(current)

	if _, err := tx.ExecContext(ctx, `DELETE FROM position_snapshots WHERE position_key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO position_snapshots (position_key, taken_at, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (position_key, taken_at) DO UPDATE SET value = EXCLUDED.value
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, key, e.TakenAt.UTC(), e.Value); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
