package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtGivenReading(t *testing.T) {
	clock := NewManualClock(250)
	assert.Equal(t, int64(250), clock.Millis())
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClock(0)

	assert.Equal(t, int64(35), clock.Advance(35))
	assert.Equal(t, int64(70), clock.Advance(35))
	assert.Equal(t, int64(70), clock.Millis())
}

func TestManualClock_NeverMovesBackwards(t *testing.T) {
	clock := NewManualClock(100)

	clock.Advance(-50)
	assert.Equal(t, int64(100), clock.Millis())

	clock.Set(40)
	assert.Equal(t, int64(100), clock.Millis())

	clock.Set(140)
	assert.Equal(t, int64(140), clock.Millis())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(0)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Advance(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), clock.Millis())
}
