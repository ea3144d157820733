package pendingops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffMonotonicAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, backoffCap)
		prev = d
	}
	assert.Equal(t, backoffBase, Backoff(1))
	assert.Equal(t, backoffCap, Backoff(20))
}
