package entities

import "strings"

// Asset is a symbol in the fixed price oracle set
type Asset string

const (
	AssetUSDe   Asset = "usde"
	AssetBTC    Asset = "btc"
	AssetETH    Asset = "eth"
	AssetSOL    Asset = "sol"
	AssetSPK    Asset = "spk"
	AssetPendle Asset = "pendle"
)

// AllAssets lists every asset the price oracle quotes
var AllAssets = []Asset{AssetUSDe, AssetBTC, AssetETH, AssetSOL, AssetSPK, AssetPendle}

// AssetFromSymbol maps a token symbol to a quoted asset
func AssetFromSymbol(symbol string) (Asset, bool) {
	a := Asset(strings.ToLower(strings.TrimSpace(symbol)))
	for _, known := range AllAssets {
		if a == known {
			return a, true
		}
	}
	return "", false
}

// PriceMap holds USD spot prices keyed by asset
type PriceMap map[Asset]float64

// USD returns the price of an asset, or 0 when unknown
func (p PriceMap) USD(a Asset) float64 {
	if p == nil {
		return 0
	}
	return p[a]
}

// ZeroPrices returns a price map with every asset set to zero
func ZeroPrices() PriceMap {
	prices := make(PriceMap, len(AllAssets))
	for _, a := range AllAssets {
		prices[a] = 0
	}
	return prices
}
