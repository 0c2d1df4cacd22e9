package risk

import (
	"math"
	"time"
)

// DefaultHalfLife is the age at which an incident counts half as much as a fresh one.
const DefaultHalfLife = 90 * 24 * time.Hour

// RecencyDecay weights an incident of the given age: 1 at age zero, halving every halfLife.
// Negative ages (timestamps in the future) count as zero. The weight never reaches zero, so an
// old incident still ranks above no incident at all.
func RecencyDecay(age, halfLife time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	w := math.Exp2(-age.Hours() / halfLife.Hours())
	if w < math.SmallestNonzeroFloat64 {
		return math.SmallestNonzeroFloat64
	}
	return w
}
