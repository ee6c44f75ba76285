package entities

import (
	"math"
	"strings"
)

// Protocol identifies the protocol adapter that produced a position
type Protocol string

const (
	ProtocolPendle Protocol = "pendle"
	ProtocolEthena Protocol = "ethena"
	ProtocolSpark  Protocol = "spark"
	ProtocolSky    Protocol = "sky"
)

// AllProtocols lists every supported protocol in display order
var AllProtocols = []Protocol{ProtocolEthena, ProtocolPendle, ProtocolSky, ProtocolSpark}

// ParseProtocol converts a string into a known Protocol
func ParseProtocol(s string) (Protocol, bool) {
	p := Protocol(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllProtocols {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Chain identifies the EVM chain a position lives on
type Chain string

const (
	ChainEthereum    Chain = "ethereum"
	ChainArbitrum    Chain = "arbitrum"
	ChainHyperliquid Chain = "hyperliquid"
)

var chainIDs = map[Chain]int64{
	ChainEthereum:    1,
	ChainArbitrum:    42161,
	ChainHyperliquid: 999,
}

// Average block times. These drift with network conditions.
var chainBlockSeconds = map[Chain]float64{
	ChainEthereum:    12,
	ChainArbitrum:    0.25,
	ChainHyperliquid: 1,
}

// ChainFromID maps a numeric chain id to a supported Chain
func ChainFromID(id int64) (Chain, bool) {
	for chain, chainID := range chainIDs {
		if chainID == id {
			return chain, true
		}
	}
	return "", false
}

// ID returns the numeric chain id
func (c Chain) ID() int64 {
	return chainIDs[c]
}

// SecondsPerBlock returns the approximate average block time
func (c Chain) SecondsPerBlock() float64 {
	return chainBlockSeconds[c]
}

// BlocksPerYear returns the approximate number of blocks produced in 365 days
func (c Chain) BlocksPerYear() float64 {
	s := c.SecondsPerBlock()
	if s <= 0 {
		return 0
	}
	return 365 * 86400 / s
}

// LegKind is one of the claim types a Pendle market position decomposes into
type LegKind string

const (
	LegPrincipal LegKind = "pt"
	LegYield     LegKind = "yt"
	LegLiquidity LegKind = "lp"
)

// Prefix returns the label prefix used in asset names
func (k LegKind) Prefix() string {
	return strings.ToUpper(string(k))
}

// Position is one holding of one wallet in one protocol on one chain
type Position struct {
	Protocol            Protocol `json:"protocol"`
	Chain               Chain    `json:"chain"`
	Address             string   `json:"address"`
	Asset               string   `json:"asset"`
	MarketProtocol      string   `json:"market_protocol,omitempty"`
	APR7d               *float64 `json:"apr_7d,omitempty"`
	APR30d              *float64 `json:"apr_30d,omitempty"`
	APY30d              *float64 `json:"apy_30d,omitempty"`
	ValueUSD            float64  `json:"value_usd"`
	DetailsURL          string   `json:"details_url,omitempty"`
	ClaimableRewards    string   `json:"claimable_rewards,omitempty"`
	ClaimableRewardsUSD *float64 `json:"claimable_rewards_usd,omitempty"`
}

// Yield wraps a computed rate, returning nil for non-finite values
func Yield(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NonNegativeUSD clamps a valuation so that unknown or invalid values read as zero
func NonNegativeUSD(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
