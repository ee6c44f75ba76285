package entities

import (
	"strings"
	"time"
)

// SnapshotEntry is one point of a locally persisted valuation or rate series
type SnapshotEntry struct {
	Key     string    `db:"position_key" json:"key"`
	TakenAt time.Time `db:"taken_at" json:"taken_at"`
	Value   float64   `db:"value" json:"value"`
}

// SnapshotKey builds the series key for an address, market and leg
func SnapshotKey(address, market, leg string) string {
	return strings.ToLower(address) + "|" + strings.ToLower(market) + "|" + strings.ToLower(leg)
}
