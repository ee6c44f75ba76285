package adapters

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/application/services"
	"github.com/bimakw/yield-aggregator/internal/config"
	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/yield"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/ethereum"
)

const (
	sparkDetailsURL    = "https://app.spark.fi/farms"
	sparkStakingSymbol = "USDS"
	sparkRewardSymbol  = "SPK"
)

var _ services.ProtocolAdapter = (*SparkAdapter)(nil)

// SparkAdapter values USDS staked in the Spark rewards farm. The farm
// publishes no rate, so APR is rebuilt from the wallet's farm events.
type SparkAdapter struct {
	reader        *ethereum.Reader
	fetcher       *ethereum.EventFetcher
	ledger        *services.LedgerService
	farm          common.Address
	stakingToken  common.Address
	rewardToken   common.Address
	creationBlock uint64
	logger        *zap.Logger

	mu      sync.Mutex
	windows map[common.Address]*eventWindow
}

// eventWindow holds a wallet's farm events for blocks [from, to]
type eventWindow struct {
	from   uint64
	to     uint64
	events []entities.StakeEvent
}

// NewSparkAdapter creates a new Spark adapter. ledger may be nil.
func NewSparkAdapter(
	reader *ethereum.Reader,
	fetcher *ethereum.EventFetcher,
	ledger *services.LedgerService,
	cfg config.ProtocolsConfig,
	logger *zap.Logger,
) *SparkAdapter {
	return &SparkAdapter{
		reader:        reader,
		fetcher:       fetcher,
		ledger:        ledger,
		farm:          common.HexToAddress(cfg.SparkFarm),
		stakingToken:  common.HexToAddress(cfg.SparkStakingToken),
		rewardToken:   common.HexToAddress(cfg.SparkRewardToken),
		creationBlock: cfg.SparkFarmCreationBlock,
		logger:        logger.With(zap.String("protocol", string(entities.ProtocolSpark))),
		windows:       make(map[common.Address]*eventWindow),
	}
}

func (a *SparkAdapter) Protocol() entities.Protocol {
	return entities.ProtocolSpark
}

// FetchPositions returns at most one position: the wallet's farm stake
func (a *SparkAdapter) FetchPositions(ctx context.Context, req services.FetchRequest) []entities.Position {
	user := common.HexToAddress(req.Address)

	results := a.reader.Execute(ctx, []ethereum.Call{
		{Target: a.farm, ABI: ethereum.StakingRewardsABI, Method: "balanceOf", Args: []interface{}{user}},
		{Target: a.farm, ABI: ethereum.StakingRewardsABI, Method: "earned", Args: []interface{}{user}},
		{Target: a.stakingToken, ABI: ethereum.ERC20ABI, Method: "decimals"},
		{Target: a.stakingToken, ABI: ethereum.ERC20ABI, Method: "symbol"},
		{Target: a.rewardToken, ABI: ethereum.ERC20ABI, Method: "decimals"},
		{Target: a.rewardToken, ABI: ethereum.ERC20ABI, Method: "symbol"},
	})

	stake, ok := results[0].BigInt()
	if !ok {
		a.logger.Warn("Failed to read farm balance",
			zap.String("address", req.Address),
			zap.Error(results[0].Err),
		)
		return nil
	}
	if stake.Sign() == 0 {
		return nil
	}

	stakingDecimals := uint8Or(results[2], defaultDecimals)
	stakingSymbol := textOr(results[3], sparkStakingSymbol)
	rewardDecimals := uint8Or(results[4], defaultDecimals)
	rewardSymbol := textOr(results[5], sparkRewardSymbol)
	rewardPrice := req.Prices.USD(entities.AssetSPK)

	position := entities.Position{
		Protocol:   entities.ProtocolSpark,
		Chain:      entities.ChainEthereum,
		Address:    req.Address,
		Asset:      stakingSymbol,
		ValueUSD:   entities.NonNegativeUSD(ethereum.ToFloat(stake, stakingDecimals)),
		DetailsURL: sparkDetailsURL,
	}

	if earned, ok := results[1].BigInt(); ok && earned.Sign() > 0 {
		amount := ethereum.ToDecimal(earned, rewardDecimals)
		position.ClaimableRewards = fmt.Sprintf("%s %s", amount.StringFixed(2), rewardSymbol)
		if rewardPrice > 0 {
			position.ClaimableRewardsUSD = entities.Yield(amount.InexactFloat64() * rewardPrice)
		}
	}

	current, err := a.reader.BlockNumber(ctx)
	if err != nil {
		a.logger.Warn("Failed to get latest block", zap.Error(err))
		return []entities.Position{position}
	}

	if a.ledger != nil {
		if _, err := a.ledger.SyncTo(ctx, req.Address, current); err != nil {
			a.logger.Warn("Failed to sync deposit ledger",
				zap.String("address", req.Address),
				zap.Error(err),
			)
		}
	}

	if rewardPrice <= 0 {
		a.logger.Debug("No reward token price, skipping APR", zap.String("address", req.Address))
		return []entities.Position{position}
	}

	a.applyEventYield(ctx, &position, user, stake, current, stakingDecimals, rewardDecimals, rewardPrice)
	return []entities.Position{position}
}

// applyEventYield rebuilds 7 and 30 day APR from farm events. Events are
// fetched once for the 30 day window and reused for the 7 day one.
func (a *SparkAdapter) applyEventYield(
	ctx context.Context,
	p *entities.Position,
	user common.Address,
	stake *big.Int,
	current uint64,
	stakingDecimals, rewardDecimals uint8,
	rewardPrice float64,
) {
	chain := entities.ChainEthereum
	spb := chain.SecondsPerBlock()

	from30d := yield.ResolveBlock(current, 30, spb, a.creationBlock)
	from7d := yield.ResolveBlock(current, 7, spb, a.creationBlock)

	var events []entities.StakeEvent
	if from30d < current {
		var err error
		events, err = a.stakeEvents(ctx, user, from30d+1, current)
		if err != nil {
			a.logger.Warn("Failed to fetch farm events",
				zap.String("address", p.Address),
				zap.Error(err),
			)
			return
		}
	}

	stakeUnit := new(big.Float).SetInt(ethereum.OneUnit(stakingDecimals))
	apr := func(from uint64) *float64 {
		rewards := ethereum.ToFloat(yield.SumRewards(events, from, current), rewardDecimals) * rewardPrice
		avg, _ := new(big.Float).Quo(yield.WeightedAveragePosition(events, stake, from, current), stakeUnit).Float64()
		return entities.Yield(yield.TimeWeightedAPR(rewards, avg, current-from, chain.BlocksPerYear()))
	}

	p.APR7d = apr(from7d)
	p.APR30d = apr(from30d)
}

// stakeEvents returns the wallet's farm events for blocks [from, to]. The
// window kept from the previous call is trimmed and extended, so only blocks
// past it are queried.
func (a *SparkAdapter) stakeEvents(ctx context.Context, user common.Address, from, to uint64) ([]entities.StakeEvent, error) {
	a.mu.Lock()
	cached := a.windows[user]
	a.mu.Unlock()

	start := from
	var events []entities.StakeEvent
	if cached != nil && cached.from <= from && cached.to+1 >= from && cached.to <= to {
		events = yield.EventsInWindow(cached.events, from-1, cached.to)
		start = cached.to + 1
	}

	if start <= to {
		fresh, err := a.fetcher.CollectStakeEvents(ctx, a.farm, user, start, to)
		if err != nil {
			return nil, err
		}
		events = append(events, fresh...)
	}

	a.mu.Lock()
	a.windows[user] = &eventWindow{from: from, to: to, events: events}
	a.mu.Unlock()

	return events, nil
}

func uint8Or(res ethereum.Result, fallback uint8) uint8 {
	if v, ok := res.Uint8(); ok {
		return v
	}
	return fallback
}

func textOr(res ethereum.Result, fallback string) string {
	if v, ok := res.Text(); ok && v != "" {
		return v
	}
	return fallback
}
