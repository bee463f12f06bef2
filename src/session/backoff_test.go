package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesPerAttempt(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	for attempt, floor := range map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
		4: 16 * time.Second,
	} {
		d := backoffDelay(base, max, attempt)
		assert.GreaterOrEqual(t, d, floor, "attempt %d", attempt)
		assert.Less(t, d, floor+base, "attempt %d jitter bound", attempt)
	}
}

func TestBackoffCapped(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	for _, attempt := range []int{5, 6, 20, 1000} {
		d := backoffDelay(base, max, attempt)
		assert.LessOrEqual(t, d, max, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, max-base, "attempt %d stays near the cap", attempt)
	}
}

func TestBackoffDefaultsForBadInput(t *testing.T) {
	d := backoffDelay(0, 0, 0)
	assert.Greater(t, d, time.Duration(0))

	// Negative attempts behave like the first attempt.
	assert.GreaterOrEqual(t, backoffDelay(time.Second, time.Minute, -3), 2*time.Second)
}
