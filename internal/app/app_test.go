package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bimakw/yield-aggregator/internal/config"
	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// newMainnetNode answers every JSON-RPC request with 0x1, which reads as
// chain id 1 and block number 1.
func newMainnetNode(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x1",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(rpcURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Storage.Driver = StorageMemory
	cfg.Ethereum.RPCURL = rpcURL
	cfg.Ethereum.RequestTimeout = time.Second
	cfg.Ethereum.CallConcurrency = 2
	cfg.Ethereum.LogChunkSize = 1000
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = 1
	cfg.Aggregator.WorkerCount = 2
	return cfg
}

func TestNew_UnknownStorageDriver(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Storage.Driver = "sqlite"

	_, err := New(cfg, prometheus.NewRegistry(), zap.NewNop())
	if err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestNew_RequiresEthereumRPC(t *testing.T) {
	cfg := testConfig("")
	cfg.Ethereum.ArbitrumRPCURL = newMainnetNode(t).URL

	a, err := New(cfg, prometheus.NewRegistry(), zap.NewNop())
	if !errors.Is(err, ErrNoEthereumRPC) {
		t.Fatalf("expected ErrNoEthereumRPC, got %v", err)
	}
	if a != nil {
		t.Error("expected no app")
	}
}

func TestNew_EthereumNodeUnreachable(t *testing.T) {
	node := newMainnetNode(t)
	url := node.URL
	node.Close()

	cfg := testConfig(url)
	cfg.Ethereum.MaxRetries = 0

	if _, err := New(cfg, prometheus.NewRegistry(), zap.NewNop()); err == nil {
		t.Fatal("expected error when the ethereum node is unreachable")
	}
}

func TestNew_MemoryStorage(t *testing.T) {
	node := newMainnetNode(t)

	a, err := New(testConfig(node.URL), prometheus.NewRegistry(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	if a.DB != nil {
		t.Error("expected no database with memory storage")
	}
	if a.Cache != nil {
		t.Error("expected cache to be skipped when Redis is unreachable")
	}
	if len(a.Clients) != 1 {
		t.Errorf("expected only the ethereum client, got %d", len(a.Clients))
	}
	for _, p := range entities.AllProtocols {
		if _, ok := a.Registry[p]; !ok {
			t.Errorf("expected adapter for %s", p)
		}
	}
	if err := a.ChainHealth(context.Background()); err != nil {
		t.Errorf("unexpected chain health error: %v", err)
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := SetupLogger(config.LogConfig{Level: tt.level, Format: "json"})
			if !logger.Core().Enabled(tt.want) {
				t.Errorf("expected %s to be enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1) {
				t.Errorf("expected %s to be disabled", tt.want-1)
			}
		})
	}
}
