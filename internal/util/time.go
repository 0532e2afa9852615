package util

import (
	"math"
	"time"
)

// MinutesUntil reports the whole minutes from now until the deadline,
// rounding partial minutes up. A deadline in the past yields 0.
func MinutesUntil(now, until time.Time) int {
	if !until.After(now) {
		return 0
	}
	return int(math.Ceil(until.Sub(now).Minutes()))
}
