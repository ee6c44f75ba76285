package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/repositories"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/ethereum"
)

// LedgerService extends deposit ledgers from farm event logs
type LedgerService struct {
	repo          repositories.LedgerRepository
	reader        *ethereum.Reader
	fetcher       *ethereum.EventFetcher
	farm          common.Address
	creationBlock uint64
	locks         *keyedMutex
	logger        *zap.Logger
	now           func() time.Time
}

// NewLedgerService creates a new ledger service for one farm contract
func NewLedgerService(
	repo repositories.LedgerRepository,
	reader *ethereum.Reader,
	fetcher *ethereum.EventFetcher,
	farm common.Address,
	creationBlock uint64,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{
		repo:          repo,
		reader:        reader,
		fetcher:       fetcher,
		farm:          farm,
		creationBlock: creationBlock,
		locks:         newKeyedMutex(),
		logger:        logger,
		now:           time.Now,
	}
}

// Get returns the stored ledger for an address, or nil
func (s *LedgerService) Get(ctx context.Context, address string) (*entities.DepositLedger, error) {
	ledger, err := s.repo.Get(ctx, strings.ToLower(address))
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit ledger: %w", err)
	}
	return ledger, nil
}

// Sync extends the ledger for address up to the latest block
func (s *LedgerService) Sync(ctx context.Context, address string) (*entities.DepositLedger, error) {
	current, err := s.reader.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}
	return s.SyncTo(ctx, address, current)
}

// SyncTo extends the ledger for address up to toBlock. Events are read from
// max(lastIndexedBlock+1, creationBlock) in bounded chunks and the ledger is
// persisted after every chunk, so an interrupted sync resumes where it stopped.
// Syncs for the same address are serialized.
func (s *LedgerService) SyncTo(ctx context.Context, address string, toBlock uint64) (*entities.DepositLedger, error) {
	address = strings.ToLower(address)

	unlock := s.locks.Lock(address)
	defer unlock()

	ledger, err := s.repo.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit ledger: %w", err)
	}

	fromBlock := s.creationBlock
	if ledger == nil {
		ledger = entities.NewDepositLedger(address)
	} else if ledger.LastIndexedBlock+1 > fromBlock {
		fromBlock = ledger.LastIndexedBlock + 1
	}

	if fromBlock > toBlock {
		return ledger, nil
	}

	working := ledger.Clone()
	err = s.fetcher.FetchStakeEvents(ctx, s.farm, common.HexToAddress(address), fromBlock, toBlock,
		func(r ethereum.BlockRange, events []entities.StakeEvent) error {
			next := working.Clone()
			applyEvents(next, events)
			next.LastIndexedBlock = r.To
			next.UpdatedAt = s.now().UTC()

			if err := s.repo.Upsert(ctx, next); err != nil {
				return fmt.Errorf("failed to persist deposit ledger: %w", err)
			}
			working = next
			return nil
		},
	)
	if err != nil {
		s.logger.Warn("Deposit ledger sync stopped early",
			zap.String("address", address),
			zap.Uint64("last_indexed_block", working.LastIndexedBlock),
			zap.Error(err),
		)
		return working, err
	}

	s.logger.Debug("Deposit ledger synced",
		zap.String("address", address),
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
	)

	return working, nil
}

func applyEvents(ledger *entities.DepositLedger, events []entities.StakeEvent) {
	for _, ev := range events {
		if ev.Amount == nil {
			continue
		}
		switch ev.Kind {
		case entities.EventStaked:
			ledger.TotalDeposited.Add(ledger.TotalDeposited, ev.Amount)
		case entities.EventWithdrawn:
			ledger.TotalWithdrawn.Add(ledger.TotalWithdrawn, ev.Amount)
		case entities.EventRewardPaid:
			ledger.TotalClaimed.Add(ledger.TotalClaimed, ev.Amount)
		}
	}
}
