package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Chain RPC configuration
	Ethereum EthereumConfig

	// Protocol contract addresses
	Protocols ProtocolsConfig

	// Pendle REST API configuration
	Pendle PendleConfig

	// Price oracle configuration
	Prices PricesConfig

	// Snapshot and ledger persistence
	Storage StorageConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Aggregation worker configuration
	Aggregator AggregatorConfig

	// Logging configuration
	Log LogConfig
}

// EthereumConfig holds EVM node connection settings
type EthereumConfig struct {
	RPCURL          string        `envconfig:"ETH_RPC_URL" default:"https://eth.llamarpc.com"`
	ArbitrumRPCURL  string        `envconfig:"ARBITRUM_RPC_URL" default:"https://arb1.arbitrum.io/rpc"`
	HyperEVMRPCURL  string        `envconfig:"HYPEREVM_RPC_URL" default:"https://rpc.hyperliquid.xyz/evm"`
	RequestTimeout  time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries      int           `envconfig:"ETH_MAX_RETRIES" default:"3"`
	RetryDelay      time.Duration `envconfig:"ETH_RETRY_DELAY" default:"1s"`
	MulticallAddr   string        `envconfig:"ETH_MULTICALL_ADDRESS" default:"0xcA11bde05977b3631167028862bE2a173976CA11"`
	LogChunkSize    int           `envconfig:"ETH_LOG_CHUNK_SIZE" default:"50000"`
	CallConcurrency int           `envconfig:"ETH_CALL_CONCURRENCY" default:"8"`
}

// ProtocolsConfig holds the contracts read by the protocol adapters
type ProtocolsConfig struct {
	EthenaVault            string `envconfig:"ETHENA_SUSDE_ADDRESS" default:"0x9D39A5DE30e57443BfF2A8307A4256c8797A3497"`
	SparkFarm              string `envconfig:"SPARK_FARM_ADDRESS" default:"0x173e314C7635B45322cd8Cb14f44b312e079F3af"`
	SparkRewardToken       string `envconfig:"SPARK_SPK_ADDRESS" default:"0xc20059e0317DE91738d13af027DfC4a50781b066"`
	SparkStakingToken      string `envconfig:"SPARK_USDS_ADDRESS" default:"0xdC035D45d973E3EC169d2276DDab16f1e407384F"`
	SparkFarmCreationBlock uint64 `envconfig:"SPARK_FARM_CREATION_BLOCK" default:"22725185"`
}

// PendleConfig holds Pendle REST API settings
type PendleConfig struct {
	BaseURL string        `envconfig:"PENDLE_API_URL" default:"https://api-v2.pendle.finance/core"`
	Timeout time.Duration `envconfig:"PENDLE_TIMEOUT" default:"15s"`
}

// PricesConfig holds CoinGecko settings
type PricesConfig struct {
	CoinGeckoURL string        `envconfig:"COINGECKO_API_URL" default:"https://api.coingecko.com/api/v3"`
	TTL          time.Duration `envconfig:"PRICES_TTL" default:"5m"`
	Timeout      time.Duration `envconfig:"PRICES_TIMEOUT" default:"10s"`
}

// StorageConfig selects the backend for snapshots and deposit ledgers
type StorageConfig struct {
	Driver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"aggregator"`
	Password        string        `envconfig:"DB_PASSWORD" default:"aggregator"`
	Name            string        `envconfig:"DB_NAME" default:"yield_aggregator"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"90s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"20"`
	CacheTTL        time.Duration `envconfig:"API_CACHE_TTL" default:"2m"`
	MaxAddresses    int           `envconfig:"API_MAX_ADDRESSES" default:"20"`
}

// AggregatorConfig holds worker settings
type AggregatorConfig struct {
	MetricsPort  int           `envconfig:"AGGREGATOR_METRICS_PORT" default:"8080"`
	Schedule     string        `envconfig:"AGGREGATOR_SCHEDULE" default:"@every 5m"`
	WorkerCount  int           `envconfig:"AGGREGATOR_WORKER_COUNT" default:"8"`
	CycleTimeout time.Duration `envconfig:"AGGREGATOR_CYCLE_TIMEOUT" default:"2m"`

	// Wallets to refresh on every cycle (comma-separated addresses)
	WalletAddresses []string `envconfig:"AGGREGATOR_WALLET_ADDRESSES"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from an optional .env file and environment variables
func Load() (*Config, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
