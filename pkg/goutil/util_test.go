package goutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(time.Date(2026, 3, 15, 17, 42, 9, 0, time.Local))
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local), got)
}

func TestStartOfMonth(t *testing.T) {
	got := StartOfMonth(time.Date(2026, 3, 15, 17, 42, 9, 0, time.Local))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local), got)
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 31, DaysInMonth(time.Date(2026, 1, 10, 0, 0, 0, 0, time.Local)))
	assert.Equal(t, 28, DaysInMonth(time.Date(2026, 2, 10, 0, 0, 0, 0, time.Local)))
	assert.Equal(t, 29, DaysInMonth(time.Date(2028, 2, 10, 0, 0, 0, 0, time.Local)))
	assert.Equal(t, 30, DaysInMonth(time.Date(2026, 4, 10, 0, 0, 0, 0, time.Local)))
}

func TestDaysElapsedInMonth(t *testing.T) {
	assert.Equal(t, 1, DaysElapsedInMonth(time.Date(2026, 3, 1, 0, 0, 1, 0, time.Local)))
	assert.Equal(t, 15, DaysElapsedInMonth(time.Date(2026, 3, 15, 23, 0, 0, 0, time.Local)))
}
