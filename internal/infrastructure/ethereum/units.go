package ethereum

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToDecimal converts a raw token amount into a human amount
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ToFloat converts a raw token amount into a float64 human amount
func ToFloat(raw *big.Int, decimals uint8) float64 {
	return ToDecimal(raw, decimals).InexactFloat64()
}

// OneUnit returns 10^decimals
func OneUnit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
