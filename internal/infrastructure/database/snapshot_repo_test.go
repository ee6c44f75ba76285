package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// openTestDB connects to TEST_DATABASE_DSN and applies the schema
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	if err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return db
}

func TestSnapshotRepo_ConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	key := "test:concurrent:" + time.Now().Format(time.RFC3339Nano)

	// Two pools stand in for the API and the worker process
	first := NewSnapshotRepo(openTestDB(t))
	second := NewSnapshotRepo(openTestDB(t))
	t.Cleanup(func() { _ = first.Replace(ctx, key, nil) })

	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	const writers = 20

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		repo := first
		if i%2 == 1 {
			repo = second
		}
		takenAt := t0.Add(time.Duration(i) * time.Hour)

		wg.Add(1)
		go func(repo *SnapshotRepo, takenAt time.Time) {
			defer wg.Done()
			errs <- repo.Update(ctx, key, func(entries []entities.SnapshotEntry) []entities.SnapshotEntry {
				return append(entries, entities.SnapshotEntry{Key: key, TakenAt: takenAt, Value: 1})
			})
		}(repo, takenAt)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := first.Load(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != writers {
		t.Errorf("expected %d entries, got %d", writers, len(entries))
	}
}
