// Package safe holds checked integer conversions.
package safe

import (
	"math"
)

// IntToUint32 converts val to uint32, clamping to the range of uint32.
// Returns the converted value and a boolean indicating whether clamping occurred.
func IntToUint32(val int) (uint32, bool) {
	switch {
	case val < 0:
		return 0, true
	case uint64(val) > math.MaxUint32:
		return math.MaxUint32, true
	}
	return uint32(val), false
}

// Uint64ToUint32 converts val to uint32, clamping to math.MaxUint32 if overflow
// would occur.
// Returns the converted value and a boolean indicating whether clamping occurred.
func Uint64ToUint32(val uint64) (uint32, bool) {
	if val > math.MaxUint32 {
		return math.MaxUint32, true
	}
	return uint32(val), false
}
