package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/repositories"
)

// Ensure LedgerRepo implements LedgerRepository
var _ repositories.LedgerRepository = (*LedgerRepo)(nil)

// LedgerRepo implements LedgerRepository using PostgreSQL
type LedgerRepo struct {
	db *sqlx.DB
}

// NewLedgerRepo creates a new deposit ledger repository
func NewLedgerRepo(db *sqlx.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// ledgerRow stores uint256 totals as NUMERIC text
type ledgerRow struct {
	Address          string    `db:"address"`
	LastIndexedBlock int64     `db:"last_indexed_block"`
	TotalDeposited   string    `db:"total_deposited"`
	TotalWithdrawn   string    `db:"total_withdrawn"`
	TotalClaimed     string    `db:"total_claimed"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Get retrieves the ledger for an address
func (r *LedgerRepo) Get(ctx context.Context, address string) (*entities.DepositLedger, error) {
	var row ledgerRow
	query := `
		SELECT address, last_indexed_block, total_deposited::TEXT AS total_deposited,
		       total_withdrawn::TEXT AS total_withdrawn, total_claimed::TEXT AS total_claimed, updated_at
		FROM deposit_ledgers
		WHERE address = $1
	`

	if err := r.db.GetContext(ctx, &row, query, strings.ToLower(address)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deposit ledger: %w", err)
	}

	ledger := &entities.DepositLedger{
		Address:          row.Address,
		LastIndexedBlock: uint64(row.LastIndexedBlock),
		UpdatedAt:        row.UpdatedAt,
	}

	var err error
	if ledger.TotalDeposited, err = parseNumeric(row.TotalDeposited); err != nil {
		return nil, err
	}
	if ledger.TotalWithdrawn, err = parseNumeric(row.TotalWithdrawn); err != nil {
		return nil, err
	}
	if ledger.TotalClaimed, err = parseNumeric(row.TotalClaimed); err != nil {
		return nil, err
	}

	return ledger, nil
}

// Upsert creates or updates a ledger
func (r *LedgerRepo) Upsert(ctx context.Context, ledger *entities.DepositLedger) error {
	query := `
		INSERT INTO deposit_ledgers (address, last_indexed_block, total_deposited, total_withdrawn, total_claimed, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (address) DO UPDATE SET
			last_indexed_block = EXCLUDED.last_indexed_block,
			total_deposited = EXCLUDED.total_deposited,
			total_withdrawn = EXCLUDED.total_withdrawn,
			total_claimed = EXCLUDED.total_claimed,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		strings.ToLower(ledger.Address),
		int64(ledger.LastIndexedBlock),
		numericString(ledger.TotalDeposited),
		numericString(ledger.TotalWithdrawn),
		numericString(ledger.TotalClaimed),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deposit ledger: %w", err)
	}

	return nil
}

func parseNumeric(s string) (*big.Int, error) {
	// NUMERIC(78,0) renders without a fractional part
	s, _, _ = strings.Cut(s, ".")
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func numericString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
