package goutil

import (
	"time"
)

func ContainsUint64(arr []uint64, i uint64) bool {
	for _, v := range arr {
		if v == i {
			return true
		}
	}
	return false
}

// StartOfDay returns midnight of t in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func DaysElapsedInMonth(t time.Time) int {
	return t.Day()
}
