package surgery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRescheduleTime_PreservesClock(t *testing.T) {
	current := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)
	target := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	got := RescheduleTime(current, target)

	assert.Equal(t, time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC), got)
}

func TestRescheduleTime_Idempotent(t *testing.T) {
	current := time.Date(2025, 1, 31, 8, 15, 42, 999, time.UTC)
	target := time.Date(2025, 2, 28, 17, 0, 0, 0, time.UTC)

	once := RescheduleTime(current, target)
	twice := RescheduleTime(once, target)

	assert.Equal(t, once, twice)
}

func TestRescheduleTime_TargetClockIgnored(t *testing.T) {
	current := time.Date(2024, 6, 1, 7, 45, 0, 0, time.UTC)
	// Target carries its own clock time; only its date matters.
	target := time.Date(2024, 6, 20, 23, 59, 59, 0, time.UTC)

	got := RescheduleTime(current, target)

	assert.Equal(t, 7, got.Hour())
	assert.Equal(t, 45, got.Minute())
	assert.Equal(t, 20, got.Day())
}

func TestRescheduleTime_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	current := time.Date(2024, 9, 5, 11, 0, 0, 0, loc)
	target := time.Date(2024, 9, 12, 0, 0, 0, 0, time.UTC)

	got := RescheduleTime(current, target)

	assert.Equal(t, loc, got.Location())
	assert.Equal(t, 11, got.Hour())
}
