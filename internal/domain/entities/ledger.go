package entities

import (
	"math/big"
	"time"
)

// DepositLedger tracks a wallet's cumulative farm activity up to a block
type DepositLedger struct {
	Address          string    `json:"address"`
	LastIndexedBlock uint64    `json:"last_indexed_block"`
	TotalDeposited   *big.Int  `json:"-"`
	TotalWithdrawn   *big.Int  `json:"-"`
	TotalClaimed     *big.Int  `json:"-"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewDepositLedger returns an empty ledger for an address
func NewDepositLedger(address string) *DepositLedger {
	return &DepositLedger{
		Address:        address,
		TotalDeposited: new(big.Int),
		TotalWithdrawn: new(big.Int),
		TotalClaimed:   new(big.Int),
	}
}

// Clone returns a deep copy so callers can mutate it safely
func (l *DepositLedger) Clone() *DepositLedger {
	return &DepositLedger{
		Address:          l.Address,
		LastIndexedBlock: l.LastIndexedBlock,
		TotalDeposited:   cloneInt(l.TotalDeposited),
		TotalWithdrawn:   cloneInt(l.TotalWithdrawn),
		TotalClaimed:     cloneInt(l.TotalClaimed),
		UpdatedAt:        l.UpdatedAt,
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// StakeEventKind is the type of a farm event
type StakeEventKind string

const (
	EventStaked     StakeEventKind = "Staked"
	EventWithdrawn  StakeEventKind = "Withdrawn"
	EventRewardPaid StakeEventKind = "RewardPaid"
)

// StakeEvent is a decoded farm event for one user
type StakeEvent struct {
	BlockNumber uint64
	LogIndex    uint
	TxHash      string
	Kind        StakeEventKind
	Amount      *big.Int
}
