package scoring

import (
	"math"
	"time"
)

const hoursPerDay = 24

// Clamp bounds x to [lo, hi]. NaN maps to lo.
func Clamp(x, lo, hi float64) float64 {
	switch {
	case math.IsNaN(x), x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}

// SafeRatio returns num/den, or 0 when den is not positive or either side is
// not finite.
func SafeRatio(num, den float64) float64 {
	if den <= 0 || math.IsNaN(num) || math.IsInf(num, 0) || math.IsInf(den, 0) || math.IsNaN(den) {
		return 0
	}
	return num / den
}

// NonNegative coalesces negative counts to zero.
func NonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// ExpDecay returns base^periods with negative periods treated as zero.
func ExpDecay(base, periods float64) float64 {
	if periods < 0 || math.IsNaN(periods) {
		periods = 0
	}
	return math.Pow(base, periods)
}

// Round2 rounds to two decimals, half away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// AgeHours returns the age of createdAt at now in hours. Future timestamps
// give a negative age.
func AgeHours(createdAt, now time.Time) float64 {
	return now.Sub(createdAt).Hours()
}
