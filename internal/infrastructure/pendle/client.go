// Package pendle is a read-only client for the Pendle v2 REST API.
package pendle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/config"
)

// ErrNotFound is returned for 404 responses
var ErrNotFound = errors.New("pendle: not found")

// Client is the REST client for the Pendle core API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Pendle API client
func NewClient(cfg config.PendleConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// GetDashboardPositions returns all open positions for a wallet
func (c *Client) GetDashboardPositions(ctx context.Context, address string) (*DashboardResponse, error) {
	path := "/v1/dashboard/positions/database/" + url.PathEscape(strings.ToLower(address))

	var resp DashboardResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get dashboard positions: %w", err)
	}
	return &resp, nil
}

// GetMarketData returns the current rates of one market
func (c *Client) GetMarketData(ctx context.Context, chainID int64, market string) (*MarketData, error) {
	path := fmt.Sprintf("/v2/%d/markets/%s/data", chainID, url.PathEscape(market))

	var resp MarketData
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get market data: %w", err)
	}
	return &resp, nil
}

// GetMarketDetails returns descriptive fields of one market
func (c *Client) GetMarketDetails(ctx context.Context, chainID int64, market string) (*MarketDetails, error) {
	path := fmt.Sprintf("/v1/%d/markets/%s", chainID, url.PathEscape(market))

	var resp MarketDetails
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get market details: %w", err)
	}
	return &resp, nil
}

// GetActiveMarkets returns the active markets of a chain keyed by lowercase address
func (c *Client) GetActiveMarkets(ctx context.Context, chainID int64) (map[string]MarketMeta, error) {
	path := fmt.Sprintf("/v1/%d/markets/active", chainID)

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get active markets: %w", err)
	}

	// The endpoint has returned both a bare array and {"markets": [...]}
	var markets []MarketMeta
	if err := json.Unmarshal(body, &markets); err != nil {
		var wrapped struct {
			Markets []MarketMeta `json:"markets"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode active markets: %w", err)
		}
		markets = wrapped.Markets
	}

	out := make(map[string]MarketMeta, len(markets))
	for _, m := range markets {
		if m.Address == "" || m.Name == "" || m.Expiry == "" {
			continue
		}
		out[strings.ToLower(m.Address)] = m
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest interface{}) error {
	body, err := c.doGet(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	c.logger.Debug("Pendle API request",
		zap.String("path", path),
		zap.Int("bytes", len(body)),
	)

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
