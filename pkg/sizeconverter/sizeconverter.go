package sizeconverter

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

type number interface {
	constraints.Float | constraints.Integer
}

var units = []string{"B", "KB", "MB", "GB"}

// HumanReadable formats a size in bytes with the largest unit that keeps the
// value at or above one.
func HumanReadable[N number](size N) string {
	value := float64(size)
	unit := 0
	for value >= 1024 && unit < len(units)-1 {
		value /= 1024
		unit++
	}
	if math.Trunc(value) == value {
		return fmt.Sprintf("%.0f %s", value, units[unit])
	}
	return fmt.Sprintf("%.2f %s", value, units[unit])
}
