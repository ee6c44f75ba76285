// Package app assembles the aggregation engine from configuration. Both the
// API server and the aggregation worker build their dependency graph here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bimakw/yield-aggregator/internal/application/adapters"
	"github.com/bimakw/yield-aggregator/internal/application/services"
	"github.com/bimakw/yield-aggregator/internal/config"
	"github.com/bimakw/yield-aggregator/internal/domain/entities"
	"github.com/bimakw/yield-aggregator/internal/domain/repositories"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/cache"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/coingecko"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/database"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/ethereum"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/memory"
	"github.com/bimakw/yield-aggregator/internal/infrastructure/pendle"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// ErrNoEthereumRPC is returned when ETH_RPC_URL is empty
var ErrNoEthereumRPC = errors.New("ethereum RPC URL is required")

// App holds the wired components shared by the binaries
type App struct {
	DB         *database.PostgresDB
	Cache      *cache.RedisCache
	Clients    map[entities.Chain]*ethereum.Client
	Prices     *services.PriceService
	Snapshots  *services.SnapshotStore
	Ledgers    *services.LedgerService
	Registry   services.Registry
	Aggregator *services.Aggregator
	Metrics    *services.AggregatorMetrics

	logger *zap.Logger
}

// New connects to every backend named in cfg and builds the adapter registry.
// The Ethereum node and the configured storage are required; secondary chains
// and Redis are skipped with a warning when unreachable.
func New(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*App, error) {
	a := &App{
		Clients: make(map[entities.Chain]*ethereum.Client),
		Metrics: services.NewAggregatorMetrics(reg),
		logger:  logger,
	}

	if cfg.Ethereum.RPCURL == "" {
		return nil, ErrNoEthereumRPC
	}

	snapshotRepo, ledgerRepo, err := a.openStorage(cfg)
	if err != nil {
		return nil, err
	}

	rpcURLs := map[entities.Chain]string{
		entities.ChainEthereum:    cfg.Ethereum.RPCURL,
		entities.ChainArbitrum:    cfg.Ethereum.ArbitrumRPCURL,
		entities.ChainHyperliquid: cfg.Ethereum.HyperEVMRPCURL,
	}
	readers := make(map[entities.Chain]*ethereum.Reader, len(rpcURLs))
	for chain, url := range rpcURLs {
		if url == "" {
			continue
		}
		client, err := ethereum.NewClient(chain, url, cfg.Ethereum, logger)
		if err != nil {
			if chain == entities.ChainEthereum {
				a.Close()
				return nil, fmt.Errorf("failed to connect to ethereum node: %w", err)
			}
			logger.Warn("Skipping chain", zap.String("chain", string(chain)), zap.Error(err))
			continue
		}
		a.Clients[chain] = client
		readers[chain] = ethereum.NewReader(
			client,
			cfg.Ethereum.MulticallAddr,
			cfg.Ethereum.CallConcurrency,
			logger,
			ethereum.WithCallCounter(a.Metrics.ChainReaderCalls),
		)
	}

	a.Cache, err = cache.NewRedisCache(cfg.Redis, cfg.API.CacheTTL, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		a.Cache = nil
	}

	a.Prices, err = services.NewPriceService(coingecko.NewClient(cfg.Prices, logger), a.Cache, cfg.Prices.TTL, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create price service: %w", err)
	}

	mainnet := a.Clients[entities.ChainEthereum]
	fetcher := ethereum.NewEventFetcher(mainnet, cfg.Ethereum.LogChunkSize, logger)

	a.Snapshots = services.NewSnapshotStore(snapshotRepo, logger)
	a.Ledgers = services.NewLedgerService(
		ledgerRepo,
		readers[entities.ChainEthereum],
		fetcher,
		common.HexToAddress(cfg.Protocols.SparkFarm),
		cfg.Protocols.SparkFarmCreationBlock,
		logger,
	)

	a.Registry = services.NewRegistry(
		adapters.NewEthenaAdapter(readers[entities.ChainEthereum], a.Snapshots, cfg.Protocols.EthenaVault, logger),
		adapters.NewPendleAdapter(pendle.NewClient(cfg.Pendle, logger), readers, a.Snapshots, logger),
		adapters.NewSparkAdapter(readers[entities.ChainEthereum], fetcher, a.Ledgers, cfg.Protocols, logger),
		adapters.NewSkyAdapter(),
	)
	a.Aggregator = services.NewAggregator(a.Registry, a.Prices, cfg.Aggregator.WorkerCount, logger, a.Metrics)

	return a, nil
}

func (a *App) openStorage(cfg *config.Config) (repositories.SnapshotRepository, repositories.LedgerRepository, error) {
	switch cfg.Storage.Driver {
	case StorageMemory:
		a.logger.Warn("Using in-memory storage, snapshots and ledgers are lost on restart")
		return memory.NewSnapshotRepo(), memory.NewLedgerRepo(), nil
	case StoragePostgres:
		db, err := database.NewPostgresDB(cfg.Database, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.DB = db
		return database.NewSnapshotRepo(db.DB()), database.NewLedgerRepo(db.DB()), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// ChainHealth reports whether the Ethereum node answers
func (a *App) ChainHealth(ctx context.Context) error {
	client, ok := a.Clients[entities.ChainEthereum]
	if !ok {
		return fmt.Errorf("no ethereum client")
	}
	_, err := client.BlockNumber(ctx)
	return err
}

// Close releases every connection held by the app
func (a *App) Close() {
	if a.Prices != nil {
		a.Prices.Close()
	}
	for _, client := range a.Clients {
		client.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.logger.Warn("Failed to close cache", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}

// SetupLogger builds the process logger from cfg
func SetupLogger(cfg config.LogConfig) *zap.Logger {
	var zapLevel zapcore.Level
	switch cfg.Level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoding := "json"
	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	return logger
}
