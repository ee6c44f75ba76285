package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	chain "github.com/bimakw/yield-aggregator/internal/infrastructure/ethereum"
)

// Common test addresses
const (
	AliceAddress = "0x1111111111111111111111111111111111111111"
	BobAddress   = "0x2222222222222222222222222222222222222222"
	CharlieAddr  = "0x3333333333333333333333333333333333333333"

	SUSDeAddress = "0x9d39a5de30e57443bff2a8307a4256c8797a3497"
	FarmAddress  = "0x173e314c7635b45322cd8cb14f44b312e079f3af"
	SPKAddress   = "0xc20059e0317de91738d13af027dfc4a50781b066"
	USDSAddress  = "0xdc035d45d973e3ec169d2276ddab16f1e407384f"
)

// Ether returns n whole units of an 18-decimal token
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), chain.OneUnit(18))
}

// CreateTestPosition creates a test position with default values
func CreateTestPosition(opts ...PositionOption) entities.Position {
	p := entities.Position{
		Protocol:   entities.ProtocolEthena,
		Chain:      entities.ChainEthereum,
		Address:    AliceAddress,
		Asset:      "sUSDe",
		ValueUSD:   1000,
		DetailsURL: "https://app.ethena.fi/",
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p
}

type PositionOption func(*entities.Position)

func PositionWithProtocol(protocol entities.Protocol) PositionOption {
	return func(p *entities.Position) {
		p.Protocol = protocol
	}
}

func PositionWithAddress(address string) PositionOption {
	return func(p *entities.Position) {
		p.Address = address
	}
}

func PositionWithAsset(asset string) PositionOption {
	return func(p *entities.Position) {
		p.Asset = asset
	}
}

func PositionWithValue(usd float64) PositionOption {
	return func(p *entities.Position) {
		p.ValueUSD = usd
	}
}

func PositionWithAPR7d(apr float64) PositionOption {
	return func(p *entities.Position) {
		p.APR7d = &apr
	}
}

// StakeLog builds a raw farm log for user
func StakeLog(farm, user string, kind entities.StakeEventKind, amount *big.Int, block uint64, logIndex uint) types.Log {
	signature := map[entities.StakeEventKind]common.Hash{
		entities.EventStaked:     chain.StakedEventSignature,
		entities.EventWithdrawn:  chain.WithdrawnEventSignature,
		entities.EventRewardPaid: chain.RewardPaidEventSignature,
	}[kind]

	return types.Log{
		Address: common.HexToAddress(farm),
		Topics: []common.Hash{
			signature,
			common.BytesToHash(common.HexToAddress(user).Bytes()),
		},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(logIndex))),
		Index:       logIndex,
	}
}
