package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Jitter is random, so backoff delays are asserted against bounds
// [base*2^n, base*2^n*1.1] (clamped to max*1.1), never exact values.
func TestBackoffDelay_Bounds(t *testing.T) {
	base := 100 * time.Millisecond
	max := 800 * time.Millisecond

	for attempt := 0; attempt <= 6; attempt++ {
		expected := base << attempt
		if expected > max {
			expected = max
		}
		for i := 0; i < 50; i++ {
			d := backoffDelay(attempt, base, max)
			assert.GreaterOrEqual(t, d, expected, "attempt %d", attempt)
			assert.LessOrEqual(t, d, time.Duration(float64(expected)*1.1), "attempt %d", attempt)
		}
	}
}

func TestBackoffDelay_Defaults(t *testing.T) {
	d := backoffDelay(0, 0, 0)
	assert.GreaterOrEqual(t, d, DefaultBaseDelay)
	assert.LessOrEqual(t, d, time.Duration(float64(DefaultBaseDelay)*1.1))

	// Far attempts clamp to the max delay.
	d = backoffDelay(30, DefaultBaseDelay, DefaultMaxDelay)
	maxDelay := DefaultMaxDelay
	assert.GreaterOrEqual(t, d, maxDelay)
	assert.LessOrEqual(t, d, time.Duration(float64(maxDelay)*1.1))
}
