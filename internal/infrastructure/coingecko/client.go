// Package coingecko fetches USD spot prices from the CoinGecko simple price API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/config"
	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// AssetIDs maps each quoted asset to its CoinGecko id
var AssetIDs = map[entities.Asset]string{
	entities.AssetUSDe:   "ethena-usde",
	entities.AssetBTC:    "bitcoin",
	entities.AssetETH:    "ethereum",
	entities.AssetSOL:    "solana",
	entities.AssetSPK:    "spark",
	entities.AssetPendle: "pendle",
}

// Client is the REST client for CoinGecko
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new CoinGecko client
func NewClient(cfg config.PricesConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.CoinGeckoURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type simplePrice struct {
	USD *float64 `json:"usd"`
}

// FetchPrices returns USD prices for every quoted asset.
// Assets missing from the response are absent from the map.
func (c *Client) FetchPrices(ctx context.Context) (entities.PriceMap, error) {
	ids := make([]string, 0, len(AssetIDs))
	for _, id := range AssetIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch prices: HTTP %d", resp.StatusCode)
	}

	var raw map[string]simplePrice
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode prices: %w", err)
	}

	prices := make(entities.PriceMap, len(AssetIDs))
	for asset, id := range AssetIDs {
		if p, ok := raw[id]; ok && p.USD != nil && *p.USD >= 0 {
			prices[asset] = *p.USD
		}
	}

	c.logger.Debug("Fetched prices", zap.Int("count", len(prices)))
	return prices, nil
}
