package services

import (
	"context"
	"strings"

	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

// FetchRequest carries everything an adapter needs for one wallet
type FetchRequest struct {
	Address string
	Prices  entities.PriceMap
	Cycle   *Cycle
}

// ProtocolAdapter turns one wallet's holdings in one protocol into positions.
// Implementations never return errors or panic: failures are logged and
// degrade to missing fields or an empty result.
type ProtocolAdapter interface {
	Protocol() entities.Protocol
	FetchPositions(ctx context.Context, req FetchRequest) []entities.Position
}

// Registry maps each protocol to its adapter
type Registry map[entities.Protocol]ProtocolAdapter

// NewRegistry builds a registry from adapters
func NewRegistry(adapters ...ProtocolAdapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Protocol()] = a
	}
	return r
}

// Ordered returns the registered adapters in protocol display order
func (r Registry) Ordered() []ProtocolAdapter {
	out := make([]ProtocolAdapter, 0, len(r))
	for _, p := range entities.AllProtocols {
		if a, ok := r[p]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Only returns a registry restricted to the given protocols
func (r Registry) Only(protocols ...entities.Protocol) Registry {
	out := make(Registry, len(protocols))
	for _, p := range protocols {
		if a, ok := r[p]; ok {
			out[p] = a
		}
	}
	return out
}

// NormalizeAddresses lowercases, trims and deduplicates wallet addresses
func NormalizeAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
