package billing

import "math"

// DefaultUnitsPerCredit is the metering granularity: 1000 raw usage units
// (tokens) consume one credit.
const DefaultUnitsPerCredit int64 = 1000

// Cost converts a raw usage quantity into a whole-number credit deduction:
// ceiling division by the granularity, then the multiplier, rounded up
// again. Zero or negative units cost nothing. A multiplier <= 0 is treated
// as 1.0.
func Cost(units int64, multiplier float64) int64 {
	return CostWithGranularity(units, multiplier, DefaultUnitsPerCredit)
}

// CostWithGranularity is Cost with a configurable units-per-credit ratio.
func CostWithGranularity(units int64, multiplier float64, unitsPerCredit int64) int64 {
	if units <= 0 {
		return 0
	}
	if unitsPerCredit <= 0 {
		unitsPerCredit = DefaultUnitsPerCredit
	}
	base := (units + unitsPerCredit - 1) / unitsPerCredit
	if multiplier <= 0 || multiplier == 1.0 {
		return base
	}
	return int64(math.Ceil(float64(base) * multiplier))
}
