package repositories

import (
	"context"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// LedgerRepository persists deposit ledgers keyed by wallet address
type LedgerRepository interface {
	// Get retrieves the ledger for an address, or nil when none exists
	Get(ctx context.Context, address string) (*entities.DepositLedger, error)

	// Upsert creates or updates a ledger
	Upsert(ctx context.Context, ledger *entities.DepositLedger) error
}
