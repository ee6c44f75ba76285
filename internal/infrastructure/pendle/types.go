package pendle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// FlexFloat accepts a JSON number or a numeric string. Anything else,
// including null, leaves it unset.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		f.set(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		f.set(n)
	}
	return nil
}

func (f *FlexFloat) set(n float64) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return
	}
	f.Value = n
	f.Valid = true
}

// Ptr returns the value or nil when unset
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// FlexInt accepts a JSON number or a numeric string
type FlexInt struct {
	Value int64
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var ff FlexFloat
	if err := ff.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = FlexInt{}
	if ff.Valid && ff.Value == math.Trunc(ff.Value) {
		f.Value = int64(ff.Value)
		f.Valid = true
	}
	return nil
}

// FlexBigInt accepts a decimal string, hex string or JSON number.
// Unparseable values decode as zero.
type FlexBigInt struct {
	Value *big.Int
}

func (f *FlexBigInt) UnmarshalJSON(data []byte) error {
	f.Value = new(big.Int)
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw = s
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if v, ok := new(big.Int).SetString(raw, 0); ok {
		f.Value = v
		return nil
	}
	// Numbers in exponent form, e.g. 1e+21
	if n, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		v, _ := new(big.Float).SetFloat64(math.Trunc(n)).Int(nil)
		f.Value = v
	}
	return nil
}

// Int returns the parsed value, never nil
func (f FlexBigInt) Int() *big.Int {
	if f.Value == nil {
		return new(big.Int)
	}
	return f.Value
}

// DashboardResponse is returned by the dashboard positions endpoint
type DashboardResponse struct {
	Positions []ChainPositions `json:"positions"`
}

// ChainPositions groups open positions by chain
type ChainPositions struct {
	ChainID       FlexInt        `json:"chainId"`
	OpenPositions []OpenPosition `json:"openPositions"`
}

// OpenPosition is one market position split into legs
type OpenPosition struct {
	MarketID string `json:"marketId"`
	PT       *Leg   `json:"pt"`
	YT       *Leg   `json:"yt"`
	LP       *Leg   `json:"lp"`
}

// Leg is one claim type inside a market position
type Leg struct {
	Valuation         FlexFloat     `json:"valuation"`
	Balance           FlexBigInt    `json:"balance"`
	ActiveBalance     FlexBigInt    `json:"activeBalance"`
	ClaimTokenAmounts []TokenAmount `json:"claimTokenAmounts"`
}

// TokenAmount is a claimable reward in raw units. Token is "<chainId>-<address>".
type TokenAmount struct {
	Token  string     `json:"token"`
	Amount FlexBigInt `json:"amount"`
}

// MarketData carries the pre-annualized market rates
type MarketData struct {
	ImpliedApy    FlexFloat `json:"impliedApy"`
	YtFloatingApy FlexFloat `json:"ytFloatingApy"`
	AggregatedApy FlexFloat `json:"aggregatedApy"`
}

// MarketDetails carries descriptive market fields
type MarketDetails struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
}

// MarketMeta is the active-market metadata used for labels
type MarketMeta struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Expiry  string `json:"expiry"`
}

// ExpiryTime parses the market expiry timestamp
func (m MarketMeta) ExpiryTime() (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, m.Expiry); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiry %q", m.Expiry)
}

// ParseMarketID splits "<chainId>-<address>" into its parts
func ParseMarketID(id string) (int64, string, bool) {
	chainPart, addr, ok := strings.Cut(id, "-")
	if !ok || chainPart == "" || addr == "" {
		return 0, "", false
	}
	chainID, err := strconv.ParseInt(chainPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return chainID, addr, true
}
