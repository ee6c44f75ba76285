package adapters

import (
	"context"

	"github.com/bimakw/yield-aggregator/internal/application/services"
	"github.com/bimakw/yield-aggregator/internal/domain/entities"
)

var _ services.ProtocolAdapter = (*SkyAdapter)(nil)

// SkyAdapter is registered so Sky shows up in the protocol list, but it has
// no data source yet and never reports positions. Supporting it needs the
// sUSDS vault balance and the Sky Savings Rate, which is not exposed by any
// endpoint this service reads.
type SkyAdapter struct{}

// NewSkyAdapter creates a new Sky adapter
func NewSkyAdapter() *SkyAdapter {
	return &SkyAdapter{}
}

func (a *SkyAdapter) Protocol() entities.Protocol {
	return entities.ProtocolSky
}

func (a *SkyAdapter) FetchPositions(ctx context.Context, req services.FetchRequest) []entities.Position {
	return nil
}
