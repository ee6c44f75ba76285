package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/config"
	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// Backend is the subset of an EVM node the reader and log fetcher need
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

var _ Backend = (*Client)(nil)

// Client wraps the Ethereum client with retry logic and utilities
type Client struct {
	client  *ethclient.Client
	config  config.EthereumConfig
	logger  *zap.Logger
	chain   entities.Chain
	chainID *big.Int
}

// NewClient creates a new client for one chain and verifies the node serves it
func NewClient(chain entities.Chain, rpcURL string, cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s node: %w", chain, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	if chainID.Int64() != chain.ID() {
		client.Close()
		return nil, fmt.Errorf("chain ID mismatch for %s: expected %d, got %d", chain, chain.ID(), chainID.Int64())
	}

	logger.Info("Connected to EVM node",
		zap.String("chain", string(chain)),
		zap.String("rpc_url", rpcURL),
		zap.Int64("chain_id", chainID.Int64()),
	)

	return &Client{
		client:  client,
		config:  cfg,
		logger:  logger.With(zap.String("chain", string(chain))),
		chain:   chain,
		chainID: chainID,
	}, nil
}

// Close closes the client connection
func (c *Client) Close() {
	c.client.Close()
}

// Chain returns the chain this client is connected to
func (c *Client) Chain() entities.Chain {
	return c.chain
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var blockNumber uint64
	err := c.withRetry(ctx, "get latest block number", func(ctx context.Context) error {
		var err error
		blockNumber, err = c.client.BlockNumber(ctx)
		return err
	})
	return blockNumber, err
}

// CallContract executes an eth_call, optionally pinned to a block.
// Execution reverts are returned immediately without retrying.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var result []byte
	err := c.withRetry(ctx, "call contract", func(ctx context.Context) error {
		var err error
		result, err = c.client.CallContract(ctx, msg, blockNumber)
		return err
	})
	return result, err
}

// FilterLogs retrieves logs matching the filter query
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.withRetry(ctx, "get logs", func(ctx context.Context) error {
		var err error
		logs, err = c.client.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if isRevert(err) {
			return fmt.Errorf("failed to %s: %w", op, err)
		}

		c.logger.Warn("RPC request failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		if i < c.config.MaxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("failed to %s: %w", op, ctx.Err())
			case <-time.After(c.config.RetryDelay):
			}
		}
	}

	return fmt.Errorf("failed to %s after %d retries: %w", op, c.config.MaxRetries, err)
}

// isRevert reports whether err carries revert data from the node
func isRevert(err error) bool {
	var dataErr rpc.DataError
	return errors.As(err, &dataErr)
}
