package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/repositories"
)

var _ repositories.LedgerRepository = (*LedgerRepo)(nil)

// LedgerRepo keeps deposit ledgers in a map keyed by lowercase address
type LedgerRepo struct {
	mu      sync.RWMutex
	ledgers map[string]*entities.DepositLedger
	now     func() time.Time
}

// NewLedgerRepo creates an empty ledger repository
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{
		ledgers: make(map[string]*entities.DepositLedger),
		now:     time.Now,
	}
}

// Get retrieves a copy of the ledger for an address, or nil when none exists
func (r *LedgerRepo) Get(ctx context.Context, address string) (*entities.DepositLedger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ledger, ok := r.ledgers[strings.ToLower(address)]
	if !ok {
		return nil, nil
	}
	return ledger.Clone(), nil
}

// Upsert creates or updates a ledger
func (r *LedgerRepo) Upsert(ctx context.Context, ledger *entities.DepositLedger) error {
	stored := ledger.Clone()
	stored.Address = strings.ToLower(ledger.Address)
	stored.UpdatedAt = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ledgers[stored.Address] = stored
	return nil
}
