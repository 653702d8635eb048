// Package telemetry exports loop health and output values.
//
// Metrics are registered on a private prometheus.Registry so several
// pipelines (and tests) can coexist in one process. The Profiler plugs into
// the controller's profiling hook; the delivery consumers are wired as
// ordinary outputs.
package telemetry

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/kabuki/internal/graph"
	"github.com/roach88/kabuki/internal/value"
)

const namespace = "kabuki"

// Metrics holds the collectors exported by a running pipeline.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal     prometheus.Counter
	cyclesPerSecond prometheus.Gauge
	outputValue     *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a fresh registry, together with the
// standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Control cycles executed",
		}),
		cyclesPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycles_per_second",
			Help:      "Control cycle rate over the last profiling window",
		}),
		outputValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_value",
			Help:      "Last numeric value delivered to each output",
		}, []string{"output"}),
	}
	m.registry.MustRegister(
		m.cyclesTotal,
		m.cyclesPerSecond,
		m.outputValue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// OutputValues exposes the per-output gauge vector.
func (m *Metrics) OutputValues() *prometheus.GaugeVec {
	return m.outputValue
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Profiler counts cycles and publishes the cycle rate once per window.
//
// Tick is meant for controller.WithProfiler and, like the rest of the loop,
// must be called from a single goroutine.
type Profiler struct {
	metrics *Metrics
	clock   graph.Clock
	logger  *slog.Logger
	window  int64

	started     bool
	windowStart int64
	count       int64
	rate        float64
}

// DefaultWindowMillis is the profiling window.
const DefaultWindowMillis = 1000

// ProfilerOption configures a Profiler.
type ProfilerOption func(*Profiler)

// WithClock sets the profiler's time source.
func WithClock(c graph.Clock) ProfilerOption {
	return func(p *Profiler) {
		p.clock = c
	}
}

// WithLogger sets the logger used to report the rate.
func WithLogger(l *slog.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = l
	}
}

// WithWindow sets the minimum publishing interval in milliseconds.
func WithWindow(ms int64) ProfilerOption {
	return func(p *Profiler) {
		p.window = ms
	}
}

// NewProfiler creates a profiler publishing to m.
func (m *Metrics) NewProfiler(opts ...ProfilerOption) *Profiler {
	p := &Profiler{
		metrics: m,
		clock:   graph.NewMonotonicClock(),
		logger:  slog.Default(),
		window:  DefaultWindowMillis,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tick records one cycle. The first tick only opens the first window, so
// every window counts the ticks after its start up to and including the one
// that closes it.
func (p *Profiler) Tick() {
	now := p.clock.Millis()
	p.metrics.cyclesTotal.Inc()
	if !p.started {
		p.started = true
		p.windowStart = now
		return
	}
	p.count++

	elapsed := now - p.windowStart
	if elapsed < p.window {
		return
	}
	p.rate = float64(p.count) * 1000 / float64(elapsed)
	p.metrics.cyclesPerSecond.Set(p.rate)
	p.logger.Debug("cycle rate", "cycles_per_second", p.rate)
	p.windowStart = now
	p.count = 0
}

// Rate returns the last published rate, or 0 before the first window closes.
func (p *Profiler) Rate() float64 {
	return p.rate
}

// OutputGauge exports values delivered to one output. Numbers are exported
// as-is, booleans as 0 or 1. Other values leave the gauge unchanged.
type OutputGauge struct {
	gauge prometheus.Gauge
}

// OutputGauge returns a consumer for the named output.
func (m *Metrics) OutputGauge(output string) *OutputGauge {
	return &OutputGauge{gauge: m.outputValue.WithLabelValues(output)}
}

// Consume implements controller.Consumer.
func (g *OutputGauge) Consume(v value.Value) error {
	switch x := v.(type) {
	case value.Number:
		g.gauge.Set(float64(x))
	case value.Bool:
		if x {
			g.gauge.Set(1)
		} else {
			g.gauge.Set(0)
		}
	}
	return nil
}
