package testutil

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/repositories"
)

// ErrMock is a generic failure returned by mock hooks
var ErrMock = errors.New("mock failure")

type MockCall struct {
	Method string
	Args   []interface{}
}

var _ repositories.SnapshotRepository = (*MockSnapshotRepository)(nil)

// MockSnapshotRepository is a mock implementation of SnapshotRepository
type MockSnapshotRepository struct {
	mu      sync.RWMutex
	entries map[string][]entities.SnapshotEntry

	// Function hooks for custom behavior
	LoadFunc    func(ctx context.Context, key string) ([]entities.SnapshotEntry, error)
	ReplaceFunc func(ctx context.Context, key string, entries []entities.SnapshotEntry) error
	UpdateFunc  func(ctx context.Context, key string, fn repositories.SnapshotUpdateFunc) error

	// Call tracking
	Calls []MockCall
}

func NewMockSnapshotRepository() *MockSnapshotRepository {
	return &MockSnapshotRepository{
		entries: make(map[string][]entities.SnapshotEntry),
		Calls:   make([]MockCall, 0),
	}
}

func (m *MockSnapshotRepository) Load(ctx context.Context, key string) ([]entities.SnapshotEntry, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Load", Args: []interface{}{key}})
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, key)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.entries[key]
	out := make([]entities.SnapshotEntry, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *MockSnapshotRepository) Replace(ctx context.Context, key string, entries []entities.SnapshotEntry) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Replace", Args: []interface{}{key, len(entries)}})
	m.mu.Unlock()

	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, key, entries)
	}

	stored := make([]entities.SnapshotEntry, len(entries))
	copy(stored, entries)
	sort.Slice(stored, func(i, j int) bool { return stored[i].TakenAt.Before(stored[j].TakenAt) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = stored
	return nil
}

func (m *MockSnapshotRepository) Update(ctx context.Context, key string, fn repositories.SnapshotUpdateFunc) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Update", Args: []interface{}{key}})
	m.mu.Unlock()

	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, key, fn)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := make([]entities.SnapshotEntry, len(m.entries[key]))
	copy(current, m.entries[key])
	stored := fn(current)
	sort.Slice(stored, func(i, j int) bool { return stored[i].TakenAt.Before(stored[j].TakenAt) })
	m.entries[key] = stored
	return nil
}

// Seed stores entries for a key without recording a call
func (m *MockSnapshotRepository) Seed(key string, entries ...entities.SnapshotEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append(m.entries[key], entries...)
}

// Entries returns the stored entries for a key
func (m *MockSnapshotRepository) Entries(key string) []entities.SnapshotEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entities.SnapshotEntry, len(m.entries[key]))
	copy(out, m.entries[key])
	return out
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mu      sync.RWMutex
	ledgers map[string]*entities.DepositLedger

	// Function hooks for custom behavior
	GetFunc    func(ctx context.Context, address string) (*entities.DepositLedger, error)
	UpsertFunc func(ctx context.Context, ledger *entities.DepositLedger) error

	// Call tracking
	Calls []MockCall
}

func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{
		ledgers: make(map[string]*entities.DepositLedger),
		Calls:   make([]MockCall, 0),
	}
}

func (m *MockLedgerRepository) Get(ctx context.Context, address string) (*entities.DepositLedger, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Get", Args: []interface{}{address}})
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, address)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ledger, ok := m.ledgers[strings.ToLower(address)]
	if !ok {
		return nil, nil
	}
	return ledger.Clone(), nil
}

func (m *MockLedgerRepository) Upsert(ctx context.Context, ledger *entities.DepositLedger) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Upsert", Args: []interface{}{ledger.Address, ledger.LastIndexedBlock}})
	m.mu.Unlock()

	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, ledger)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[strings.ToLower(ledger.Address)] = ledger.Clone()
	return nil
}

// AddLedger stores a ledger without recording a call
func (m *MockLedgerRepository) AddLedger(ledger *entities.DepositLedger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[strings.ToLower(ledger.Address)] = ledger.Clone()
}

// CallCount returns how many times method was called
func (m *MockLedgerRepository) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// MockPriceSource is a mock price feed
type MockPriceSource struct {
	mu    sync.Mutex
	calls int

	FetchPricesFunc func(ctx context.Context) (entities.PriceMap, error)
}

func (m *MockPriceSource) FetchPrices(ctx context.Context) (entities.PriceMap, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.FetchPricesFunc != nil {
		return m.FetchPricesFunc(ctx)
	}
	return entities.PriceMap{}, nil
}

// CallCount returns how many times FetchPrices was called
func (m *MockPriceSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockHealthChecker is a mock implementation of HealthChecker
type MockHealthChecker struct {
	mu sync.RWMutex

	Healthy bool
	Error   error
	Calls   []MockCall
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	var err error
	if !healthy {
		err = errors.New("health check failed")
	}
	return &MockHealthChecker{
		Healthy: healthy,
		Error:   err,
		Calls:   make([]MockCall, 0),
	}
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "HealthCheck", Args: nil})
	m.mu.Unlock()

	return m.Error
}
