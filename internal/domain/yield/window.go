// Package yield holds the pure numeric pieces of yield computation:
// lookback windows, period returns, annualization and time-weighted
// reward reconstruction from staking events.
package yield

import "math"

const secondsPerDay = 86400

// ResolveBlock converts a "days ago" lookback into a block height on a chain
// producing a block every secondsPerBlock seconds. The result always lies in
// [floor, current]; a floor above current is clamped to current.
func ResolveBlock(current uint64, lookbackDays, secondsPerBlock float64, floor uint64) uint64 {
	if floor > current {
		floor = current
	}
	if secondsPerBlock <= 0 || lookbackDays <= 0 || math.IsNaN(lookbackDays) || math.IsNaN(secondsPerBlock) {
		return current
	}

	back := math.Floor(lookbackDays * secondsPerDay / secondsPerBlock)
	if math.IsInf(back, 0) || back >= float64(current) {
		return floor
	}

	target := current - uint64(back)
	if target < floor {
		return floor
	}
	return target
}
