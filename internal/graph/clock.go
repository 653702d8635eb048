package graph

import "time"

// Clock supplies monotonic milliseconds to the temporal operators.
//
// Throttle and Swap read the clock at most once per compute. Tests inject a
// manual clock so sustain windows and throttle periods are deterministic.
type Clock interface {
	Millis() int64
}

// MonotonicClock reads elapsed milliseconds from the Go monotonic clock.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock creates a clock whose zero is the moment of creation.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Millis returns milliseconds elapsed since the clock was created.
func (c *MonotonicClock) Millis() int64 {
	return time.Since(c.start).Milliseconds()
}

// defaultClock is shared by temporal operators built without WithClock.
var defaultClock Clock = NewMonotonicClock()
