package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMicroBreakerOpensAfterThreshold(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, b.TryAcquire())
		b.OnFailure()
	}

	assert.False(t, b.TryAcquire(), "breaker should be open after 3 consecutive failures")
}

func TestMicroBreakerSuccessResetsCounter(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	b.TryAcquire()
	b.OnFailure()
	b.TryAcquire()
	b.OnFailure()
	b.TryAcquire()
	b.OnSuccess()

	// counter reset; two more failures should not open it
	b.TryAcquire()
	b.OnFailure()
	b.TryAcquire()
	b.OnFailure()
	assert.True(t, b.TryAcquire())
}

func TestMicroBreakerHalfOpenProbe(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)

	assert.True(t, b.TryAcquire())
	b.OnFailure()
	assert.False(t, b.TryAcquire())

	time.Sleep(20 * time.Millisecond)

	// single probe allowed, concurrent ones rejected
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	// failed probe re-opens
	b.OnFailure()
	assert.False(t, b.TryAcquire())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.TryAcquire())
	b.OnSuccess()
	assert.True(t, b.TryAcquire())
}
