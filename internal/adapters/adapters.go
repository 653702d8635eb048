// Package adapters provides generic poll targets and consumers for the
// controller: rate-limited polling, logging sinks and value capture.
//
// Hardware-specific adapters live outside kabuki; anything that satisfies
// controller.Poller or controller.Consumer can be registered directly.
package adapters

import (
	"log/slog"
	"sync"

	"github.com/roach88/kabuki/internal/controller"
	"github.com/roach88/kabuki/internal/graph"
	"github.com/roach88/kabuki/internal/value"
)

// ThrottledPoller forwards Poll to an inner poller at most once per period.
// Useful for slow devices sharing a fast control loop.
type ThrottledPoller struct {
	inner  controller.Poller
	period int64
	clock  graph.Clock
	last   int64
	polled bool
}

// NewThrottledPoller wraps inner. The first Poll always goes through.
func NewThrottledPoller(inner controller.Poller, periodMillis int64, clock graph.Clock) *ThrottledPoller {
	if clock == nil {
		clock = graph.NewMonotonicClock()
	}
	return &ThrottledPoller{inner: inner, period: periodMillis, clock: clock}
}

// Poll implements controller.Poller.
func (p *ThrottledPoller) Poll() error {
	now := p.clock.Millis()
	if p.polled && now-p.last < p.period {
		return nil
	}
	p.polled = true
	p.last = now
	return p.inner.Poll()
}

// LogSink logs every delivered value at Info level.
type LogSink struct {
	name   string
	logger *slog.Logger
}

// NewLogSink creates a sink logging under the given output name.
// A nil logger uses slog.Default().
func NewLogSink(name string, logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{name: name, logger: logger}
}

// Consume implements controller.Consumer.
func (s *LogSink) Consume(v value.Value) error {
	s.logger.Info("output", "name", s.name, "value", value.Format(v))
	return nil
}

// Latest keeps the most recently delivered value.
//
// Unlike the graph itself, Latest may be read from other goroutines while the
// loop is running, which is how the remote handler and the CLI report state.
type Latest struct {
	mu    sync.RWMutex
	v     value.Value
	count int64
}

// Consume implements controller.Consumer. It never fails.
func (l *Latest) Consume(v value.Value) error {
	l.Store(v)
	return nil
}

// Store records v as the latest delivery.
func (l *Latest) Store(v value.Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.v = v
	l.count++
}

// Value returns the last delivered value and whether any was delivered.
func (l *Latest) Value() (value.Value, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v, l.count > 0
}

// Count returns the number of deliveries.
func (l *Latest) Count() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
