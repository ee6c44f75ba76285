package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/application/services"
	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/yield"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/ethereum"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/pendle"
)

const (
	pendleDetailsURL = "https://app.pendle.finance/markets/%s?chainId=%d"
	expiryLayout     = "Jan 2, 2006"
)

var _ services.ProtocolAdapter = (*PendleAdapter)(nil)

// PendleAdapter maps the Pendle dashboard into one position per market leg.
// Rates come pre-annualized from the market data endpoint.
type PendleAdapter struct {
	client  *pendle.Client
	readers map[entities.Chain]*ethereum.Reader
	store   *services.SnapshotStore
	logger  *zap.Logger
}

// NewPendleAdapter creates a new Pendle adapter. readers is used to read
// reward token metadata and may miss chains; store may be nil.
func NewPendleAdapter(
	client *pendle.Client,
	readers map[entities.Chain]*ethereum.Reader,
	store *services.SnapshotStore,
	logger *zap.Logger,
) *PendleAdapter {
	return &PendleAdapter{
		client:  client,
		readers: readers,
		store:   store,
		logger:  logger.With(zap.String("protocol", string(entities.ProtocolPendle))),
	}
}

func (a *PendleAdapter) Protocol() entities.Protocol {
	return entities.ProtocolPendle
}

// claimSet is the reward tokens claimable on one position
type claimSet struct {
	position int
	amounts  []pendle.TokenAmount
}

type marketLeg struct {
	kind entities.LegKind
	leg  *pendle.Leg
}

// FetchPositions returns one position per non-empty leg of every open market
func (a *PendleAdapter) FetchPositions(ctx context.Context, req services.FetchRequest) []entities.Position {
	dashboard, err := a.client.GetDashboardPositions(ctx, req.Address)
	if err != nil {
		a.logger.Warn("Failed to get dashboard positions",
			zap.String("address", req.Address),
			zap.Error(err),
		)
		return nil
	}

	now := req.Cycle.Now()
	var positions []entities.Position

	for _, bucket := range dashboard.Positions {
		chain, ok := entities.ChainFromID(bucket.ChainID.Value)
		if !bucket.ChainID.Valid || !ok {
			a.logger.Debug("Skipping unsupported chain", zap.Int64("chain_id", bucket.ChainID.Value))
			continue
		}
		chainID := chain.ID()
		markets := a.activeMarkets(ctx, req.Cycle, chainID)

		var claims []claimSet
		for _, open := range bucket.OpenPositions {
			_, market, ok := pendle.ParseMarketID(open.MarketID)
			if !ok {
				a.logger.Debug("Skipping malformed market id", zap.String("market_id", open.MarketID))
				continue
			}

			legs := []marketLeg{
				{entities.LegPrincipal, open.PT},
				{entities.LegYield, open.YT},
				{entities.LegLiquidity, open.LP},
			}

			var (
				data    *pendle.MarketData
				details *pendle.MarketDetails
				loaded  bool
			)
			for _, l := range legs {
				if l.leg == nil || emptyLeg(l.leg) {
					continue
				}
				if !loaded {
					data = a.marketData(ctx, req.Cycle, chainID, market)
					details = a.marketDetails(ctx, req.Cycle, chainID, market)
					loaded = true
				}

				valuation := l.leg.Valuation.Value
				position := entities.Position{
					Protocol:   entities.ProtocolPendle,
					Chain:      chain,
					Address:    req.Address,
					Asset:      legLabel(l.kind, market, markets),
					ValueUSD:   entities.NonNegativeUSD(valuation),
					DetailsURL: fmt.Sprintf(pendleDetailsURL, market, chainID),
				}
				if details != nil {
					position.MarketProtocol = details.Protocol
				}

				if rate := legRate(l.kind, data); rate != nil {
					position.APR7d = entities.Yield(*rate)
					position.APY30d = entities.Yield(*rate)
				} else {
					key := entities.SnapshotKey(req.Address, fmt.Sprintf("%d-%s", chainID, market), string(l.kind))
					a.applySnapshotYield(ctx, &position, key, valuation, now)
				}

				positions = append(positions, position)
				if len(l.leg.ClaimTokenAmounts) > 0 {
					claims = append(claims, claimSet{position: len(positions) - 1, amounts: l.leg.ClaimTokenAmounts})
				}
			}
		}

		if len(claims) > 0 {
			a.applyClaims(ctx, chain, req.Prices, positions, claims)
		}
	}

	return positions
}

// emptyLeg reports a leg with no valuation and no balance of either kind
func emptyLeg(leg *pendle.Leg) bool {
	return leg.Valuation.Value <= 0 && leg.Balance.Int().Sign() == 0 && leg.ActiveBalance.Int().Sign() == 0
}

// legLabel builds "PT-<name> (<expiry>)" from market metadata, or
// "PT-<first 6 hex digits>" without it
func legLabel(kind entities.LegKind, market string, markets map[string]pendle.MarketMeta) string {
	if meta, ok := markets[strings.ToLower(market)]; ok {
		if expiry, err := meta.ExpiryTime(); err == nil {
			return fmt.Sprintf("%s-%s (%s)", kind.Prefix(), meta.Name, expiry.UTC().Format(expiryLayout))
		}
	}

	core := strings.TrimPrefix(strings.TrimPrefix(market, "0x"), "0X")
	if len(core) > 6 {
		core = core[:6]
	}
	return kind.Prefix() + "-" + core
}

func legRate(kind entities.LegKind, data *pendle.MarketData) *float64 {
	if data == nil {
		return nil
	}
	switch kind {
	case entities.LegPrincipal:
		return data.ImpliedApy.Ptr()
	case entities.LegYield:
		return data.YtFloatingApy.Ptr()
	case entities.LegLiquidity:
		return data.AggregatedApy.Ptr()
	}
	return nil
}

// applySnapshotYield derives yield from the leg's own valuation history when
// the market publishes no rate for it
func (a *PendleAdapter) applySnapshotYield(ctx context.Context, p *entities.Position, key string, valuation float64, now time.Time) {
	if a.store == nil {
		return
	}

	then7d, ok7 := a.store.HistoricalValue(ctx, key, nil, 7, now)
	then30d, ok30 := a.store.HistoricalValue(ctx, key, nil, 30, now)

	if valuation > 0 {
		if err := a.store.Append(ctx, key, valuation, now); err != nil {
			a.logger.Warn("Failed to record valuation", zap.String("key", key), zap.Error(err))
		}
	}

	if ok7 {
		if r, ok := yield.PeriodReturn(valuation, then7d); ok {
			p.APR7d = entities.Yield(yield.SimpleAnnualize(r, 7))
		}
	}
	if ok30 {
		if r, ok := yield.PeriodReturn(valuation, then30d); ok {
			p.APR30d = entities.Yield(yield.SimpleAnnualize(r, 30))
			if yield.CanCompound(r) {
				p.APY30d = entities.Yield(yield.CompoundAnnualize(r, 30))
			}
		}
	}
}

// applyClaims formats claimable reward tokens using on-chain decimals and
// values the ones the price map quotes
func (a *PendleAdapter) applyClaims(ctx context.Context, chain entities.Chain, prices entities.PriceMap, positions []entities.Position, claims []claimSet) {
	reader, ok := a.readers[chain]
	if !ok || reader == nil {
		a.logger.Debug("No reader for chain, skipping claimables", zap.String("chain", string(chain)))
		return
	}

	seen := make(map[common.Address]struct{})
	var tokens []common.Address
	for _, c := range claims {
		for _, amount := range c.amounts {
			token, ok := claimToken(amount.Token)
			if !ok {
				continue
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return
	}

	metadata := ethereum.FetchTokenMetadata(ctx, reader, tokens)

	for _, c := range claims {
		var (
			parts  []string
			total  = decimal.Zero
			priced bool
		)
		for _, amount := range c.amounts {
			token, ok := claimToken(amount.Token)
			if !ok || amount.Amount.Int().Sign() <= 0 {
				continue
			}
			meta, ok := metadata[token]
			if !ok {
				continue
			}

			symbol := meta.Symbol
			if symbol == "" {
				symbol = strings.ToLower(token.Hex()[:8])
			}
			human := ethereum.ToDecimal(amount.Amount.Int(), meta.Decimals)
			parts = append(parts, fmt.Sprintf("%s %s", human.StringFixed(2), symbol))

			if asset, ok := entities.AssetFromSymbol(symbol); ok {
				if price := prices.USD(asset); price > 0 {
					total = total.Add(human.Mul(decimal.NewFromFloat(price)))
					priced = true
				}
			}
		}

		if len(parts) == 0 {
			continue
		}
		positions[c.position].ClaimableRewards = strings.Join(parts, ", ")
		if priced {
			positions[c.position].ClaimableRewardsUSD = entities.Yield(total.InexactFloat64())
		}
	}
}

// claimToken extracts the token address from "<chainId>-<address>"
func claimToken(id string) (common.Address, bool) {
	_, addr, ok := pendle.ParseMarketID(id)
	if !ok || !common.IsHexAddress(addr) {
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

func (a *PendleAdapter) activeMarkets(ctx context.Context, cycle *services.Cycle, chainID int64) map[string]pendle.MarketMeta {
	markets, err := services.Memoize(cycle, fmt.Sprintf("pendle:active:%d", chainID), func() (map[string]pendle.MarketMeta, error) {
		return a.client.GetActiveMarkets(ctx, chainID)
	})
	if err != nil {
		a.logger.Debug("Active markets unavailable", zap.Int64("chain_id", chainID), zap.Error(err))
		return nil
	}
	return markets
}

func (a *PendleAdapter) marketData(ctx context.Context, cycle *services.Cycle, chainID int64, market string) *pendle.MarketData {
	data, err := services.Memoize(cycle, fmt.Sprintf("pendle:data:%d-%s", chainID, strings.ToLower(market)), func() (*pendle.MarketData, error) {
		return a.client.GetMarketData(ctx, chainID, market)
	})
	if err != nil {
		a.logger.Debug("Market data unavailable", zap.String("market", market), zap.Error(err))
		return nil
	}
	return data
}

func (a *PendleAdapter) marketDetails(ctx context.Context, cycle *services.Cycle, chainID int64, market string) *pendle.MarketDetails {
	details, err := services.Memoize(cycle, fmt.Sprintf("pendle:details:%d-%s", chainID, strings.ToLower(market)), func() (*pendle.MarketDetails, error) {
		return a.client.GetMarketDetails(ctx, chainID, market)
	})
	if err != nil {
		a.logger.Debug("Market details unavailable", zap.String("market", market), zap.Error(err))
		return nil
	}
	return details
}
