package yield

import "math"

const daysPerYear = 365

// PeriodReturn computes now/then - 1. It reports false when the baseline is
// non-positive or either value is not finite.
func PeriodReturn(now, then float64) (float64, bool) {
	if !finite(now) || !finite(then) || then <= 0 {
		return 0, false
	}
	r := now/then - 1
	if !finite(r) {
		return 0, false
	}
	return r, true
}

// SimpleAnnualize scales a period return linearly to one year.
func SimpleAnnualize(periodReturn, days float64) float64 {
	return periodReturn * (daysPerYear / days)
}

// CompoundAnnualize compounds a period return to one year.
// Callers guarantee periodReturn > -1 and days > 0.
func CompoundAnnualize(periodReturn, days float64) float64 {
	return math.Pow(1+periodReturn, daysPerYear/days) - 1
}

// CanCompound reports whether a period return may be fed to CompoundAnnualize.
func CanCompound(periodReturn float64) bool {
	return finite(periodReturn) && periodReturn > -1
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
