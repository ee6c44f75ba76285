package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cycle is the lifetime of one aggregation run. Adapters use it to share
// lookups (market metadata, per-market rates) between the addresses fetched
// in the same run. It is dropped when the run ends.
type Cycle struct {
	ID        uuid.UUID
	StartedAt time.Time

	mu      sync.Mutex
	entries map[string]*memoEntry
}

type memoEntry struct {
	once  sync.Once
	value interface{}
	err   error
}

// NewCycle starts a new cycle at the current time
func NewCycle() *Cycle {
	return NewCycleAt(time.Now())
}

// NewCycleAt starts a new cycle at a fixed time
func NewCycleAt(startedAt time.Time) *Cycle {
	return &Cycle{
		ID:        uuid.New(),
		StartedAt: startedAt,
		entries:   make(map[string]*memoEntry),
	}
}

// Now returns the cycle start time, or the wall clock for a nil cycle
func (c *Cycle) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c.StartedAt
}

// Memo runs fn at most once per key for the lifetime of the cycle and
// returns its result to every caller. Errors are memoized too, except
// context cancellation and deadline errors, which are dropped so the next
// caller runs fn again.
func (c *Cycle) Memo(key string, fn func() (interface{}, error)) (interface{}, error) {
	if c == nil {
		return fn()
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &memoEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.value, entry.err = fn()
	})

	if errors.Is(entry.err, context.Canceled) || errors.Is(entry.err, context.DeadlineExceeded) {
		c.mu.Lock()
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	return entry.value, entry.err
}

// Memoize is the typed form of Cycle.Memo
func Memoize[T any](c *Cycle, key string, fn func() (T, error)) (T, error) {
	v, err := c.Memo(key, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}
