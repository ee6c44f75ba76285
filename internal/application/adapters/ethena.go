// Package adapters turns protocol-specific on-chain and REST data into
// wallet positions.
package adapters

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/application/services"
	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/yield"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/ethereum"
)

const (
	ethenaAsset      = "sUSDe"
	ethenaDetailsURL = "https://app.ethena.fi/"

	// Snapshot series holding the vault's price per share
	vaultSeries = "vault"

	defaultDecimals uint8 = 18
)

var _ services.ProtocolAdapter = (*EthenaAdapter)(nil)

// EthenaAdapter values staked USDe (the sUSDe ERC-4626 vault) and derives
// its yield from the vault's price per share over time
type EthenaAdapter struct {
	reader *ethereum.Reader
	store  *services.SnapshotStore
	vault  common.Address
	logger *zap.Logger
}

// NewEthenaAdapter creates a new Ethena adapter. store may be nil, in which
// case only archival reads are used for historical share prices.
func NewEthenaAdapter(reader *ethereum.Reader, store *services.SnapshotStore, vault string, logger *zap.Logger) *EthenaAdapter {
	return &EthenaAdapter{
		reader: reader,
		store:  store,
		vault:  common.HexToAddress(vault),
		logger: logger.With(zap.String("protocol", string(entities.ProtocolEthena))),
	}
}

func (a *EthenaAdapter) Protocol() entities.Protocol {
	return entities.ProtocolEthena
}

// FetchPositions returns at most one position: the wallet's sUSDe balance
func (a *EthenaAdapter) FetchPositions(ctx context.Context, req services.FetchRequest) []entities.Position {
	user := common.HexToAddress(req.Address)

	head := a.reader.Execute(ctx, []ethereum.Call{
		{Target: a.vault, ABI: ethereum.VaultABI, Method: "balanceOf", Args: []interface{}{user}},
		{Target: a.vault, ABI: ethereum.VaultABI, Method: "decimals"},
	})

	shares, ok := head[0].BigInt()
	if !ok {
		a.logger.Warn("Failed to read share balance",
			zap.String("address", req.Address),
			zap.Error(head[0].Err),
		)
		return nil
	}
	if shares.Sign() == 0 {
		return nil
	}

	decimals, ok := head[1].Uint8()
	if !ok {
		decimals = defaultDecimals
	}

	current, err := a.reader.BlockNumber(ctx)
	if err != nil {
		a.logger.Warn("Failed to get latest block", zap.Error(err))
		return nil
	}

	spb := entities.ChainEthereum.SecondsPerBlock()
	now := new(big.Int).SetUint64(current)
	block7d := new(big.Int).SetUint64(yield.ResolveBlock(current, 7, spb, 0))
	block30d := new(big.Int).SetUint64(yield.ResolveBlock(current, 30, spb, 0))
	one := ethereum.OneUnit(decimals)

	results := a.reader.Execute(ctx, []ethereum.Call{
		a.convertToAssets(shares, now),
		a.convertToAssets(one, now),
		a.convertToAssets(one, block7d),
		a.convertToAssets(one, block30d),
	})

	ppsNow, havePPS := floatResult(results[1], decimals)

	var value float64
	if assets, ok := results[0].BigInt(); ok {
		value = ethereum.ToFloat(assets, decimals)
	} else if havePPS {
		value = ethereum.ToFloat(shares, decimals) * ppsNow
	} else {
		a.logger.Warn("Failed to value shares",
			zap.String("address", req.Address),
			zap.Error(results[0].Err),
		)
		return nil
	}

	position := entities.Position{
		Protocol:   entities.ProtocolEthena,
		Chain:      entities.ChainEthereum,
		Address:    req.Address,
		Asset:      ethenaAsset,
		ValueUSD:   entities.NonNegativeUSD(value * req.Prices.USD(entities.AssetUSDe)),
		DetailsURL: ethenaDetailsURL,
	}

	if !havePPS {
		return []entities.Position{position}
	}

	key := entities.SnapshotKey(req.Address, a.vault.Hex(), vaultSeries)
	at := req.Cycle.Now()

	pps7d := a.historical(ctx, key, results[2], decimals, 7, at)
	pps30d := a.historical(ctx, key, results[3], decimals, 30, at)

	if a.store != nil {
		if err := a.store.Append(ctx, key, ppsNow, at); err != nil {
			a.logger.Warn("Failed to record share price", zap.Error(err))
		}
	}

	applyVaultYield(&position, ppsNow, pps7d, pps30d)
	return []entities.Position{position}
}

func (a *EthenaAdapter) convertToAssets(amount, block *big.Int) ethereum.Call {
	return ethereum.Call{
		Target: a.vault,
		ABI:    ethereum.VaultABI,
		Method: "convertToAssets",
		Args:   []interface{}{amount},
		Block:  block,
	}
}

// historical prefers the archival read and falls back to the snapshot series
func (a *EthenaAdapter) historical(ctx context.Context, key string, res ethereum.Result, decimals uint8, days float64, now time.Time) *float64 {
	onChain, ok := floatResult(res, decimals)
	if ok {
		return &onChain
	}

	a.logger.Debug("Archival read unavailable, using snapshots",
		zap.Float64("days", days),
		zap.Error(res.Err),
	)
	if a.store == nil {
		return nil
	}
	if v, ok := a.store.HistoricalValue(ctx, key, nil, days, now); ok {
		return &v
	}
	return nil
}

func floatResult(res ethereum.Result, decimals uint8) (float64, bool) {
	v, ok := res.BigInt()
	if !ok {
		return 0, false
	}
	return ethereum.ToFloat(v, decimals), true
}

// applyVaultYield sets APR7d and APR30d from simple returns and prefers the
// compounded 30 day return for APY, falling back to the 7 day one when the
// 30 day baseline is missing or its return is negative
func applyVaultYield(p *entities.Position, now float64, then7d, then30d *float64) {
	var (
		r7, r30   float64
		ok7, ok30 bool
	)
	if then7d != nil {
		r7, ok7 = yield.PeriodReturn(now, *then7d)
	}
	if then30d != nil {
		r30, ok30 = yield.PeriodReturn(now, *then30d)
	}

	if ok7 {
		p.APR7d = entities.Yield(yield.SimpleAnnualize(r7, 7))
	}
	if ok30 {
		p.APR30d = entities.Yield(yield.SimpleAnnualize(r30, 30))
	}

	switch {
	case ok30 && r30 >= 0:
		p.APY30d = entities.Yield(yield.CompoundAnnualize(r30, 30))
	case ok7 && yield.CanCompound(r7):
		p.APY30d = entities.Yield(yield.CompoundAnnualize(r7, 7))
	}
}
