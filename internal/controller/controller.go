package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/kabuki/internal/graph"
	"github.com/roach88/kabuki/internal/value"
)

// State is the lifecycle phase of a Controller.
type State int

const (
	// StateIdle means nothing has been registered yet.
	StateIdle State = iota
	// StateReady means at least one input or output is registered.
	StateReady
	// StateRunning means Run is driving the cycle.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stats summarizes the cycles a controller has executed.
type Stats struct {
	Cycles    int64
	Failures  int64
	LastError error
}

type output struct {
	root     graph.Node
	consumer Consumer
}

// Controller owns the registered inputs and wired outputs of one graph and
// drives its reset, poll, deliver cycle.
//
// Thread-safety model:
//   - Registration happens during the build phase, before Run.
//   - Update and Run must be called from exactly one goroutine. The graph
//     is not safe for concurrent use and the controller adds no locking.
//
// INVARIANTS:
//   - inputs and outputs are append-only and keep registration order
//   - every output root is reset before any input is polled
//   - every output reads the same post-poll leaf state
type Controller struct {
	inputs  []Poller
	outputs []output
	state   State
	stats   Stats

	logger   *slog.Logger
	profiler func()
	period   time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used by Run. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithProfiler installs a hook called once per Run iteration.
func WithProfiler(fn func()) Option {
	return func(c *Controller) {
		c.profiler = fn
	}
}

// WithPeriod paces Run to at most one cycle per d.
// Zero (the default) runs cycles back to back.
func WithPeriod(d time.Duration) Option {
	return func(c *Controller) {
		c.period = d
	}
}

// New creates an idle Controller.
func New(opts ...Option) *Controller {
	c := &Controller{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterPollInput adds p to the inputs polled each cycle.
// p must have the poll capability; see Poller.
func (c *Controller) RegisterPollInput(p any) error {
	poller, err := asPoller(p)
	if err != nil {
		return err
	}
	c.inputs = append(c.inputs, poller)
	c.markReady()
	return nil
}

// WireOutput delivers root's value to consumer each cycle.
// consumer must have the consume capability; see Consumer.
func (c *Controller) WireOutput(root graph.Node, consumer any) error {
	if root == nil {
		return graph.NewConstructionError(graph.ErrCodeWireError, "wire", "output root is nil")
	}
	cons, err := asConsumer(consumer)
	if err != nil {
		return err
	}
	c.outputs = append(c.outputs, output{root: root, consumer: cons})
	c.markReady()
	return nil
}

// Input creates and registers an input from supplier.
//
//   - A supplier function becomes a FunctionInput.
//   - A ValueSource becomes a ValueInput.
//   - Anything with the poll capability is registered as-is.
//
// The returned node reads 0 until the first Update. For a bare poller that
// is not itself a node, the returned node is nil.
func (c *Controller) Input(supplier any) (graph.Node, error) {
	switch s := supplier.(type) {
	case func() any, func() (any, error), func() value.Value, func() (value.Value, error):
		in, err := NewFunctionInput(s)
		if err != nil {
			return nil, err
		}
		c.inputs = append(c.inputs, in)
		c.markReady()
		return in, nil
	case ValueSource:
		in := NewValueInput(s)
		c.inputs = append(c.inputs, in)
		c.markReady()
		return in, nil
	}

	if err := c.RegisterPollInput(supplier); err != nil {
		return nil, err
	}
	if n, ok := supplier.(graph.Node); ok {
		return n, nil
	}
	return nil, nil
}

func (c *Controller) markReady() {
	if c.state == StateIdle {
		c.state = StateReady
	}
}

// State returns the lifecycle phase.
func (c *Controller) State() State {
	return c.state
}

// Stats returns counters for the cycles executed so far.
func (c *Controller) Stats() Stats {
	return c.stats
}

// Update runs one cycle:
//
//  1. reset every output root
//  2. poll every input, in registration order
//  3. read every output root and deliver it, in registration order
//
// A poll failure aborts the cycle before any delivery. A failing output
// skips only its own delivery; the remaining outputs are still delivered and
// the failures are joined into the returned error.
func (c *Controller) Update() error {
	c.stats.Cycles++

	for _, o := range c.outputs {
		o.root.Reset()
	}

	for i, in := range c.inputs {
		if err := in.Poll(); err != nil {
			return c.fail(fmt.Errorf("poll input %d: %w", i, err))
		}
	}

	var errs []error
	for i, o := range c.outputs {
		v, err := o.root.Value()
		if err != nil {
			errs = append(errs, fmt.Errorf("output %d: %w", i, err))
			continue
		}
		if err := o.consumer.Consume(v); err != nil {
			errs = append(errs, fmt.Errorf("deliver output %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return c.fail(errors.Join(errs...))
	}
	return nil
}

func (c *Controller) fail(err error) error {
	c.stats.Failures++
	c.stats.LastError = err
	return err
}

// Step fires the profiling hook and runs one Update. Run calls it once per
// iteration; a supervisor that swaps controllers between cycles calls it
// directly.
func (c *Controller) Step() error {
	if c.profiler != nil {
		c.profiler()
	}
	return c.Update()
}

// Period returns the pacing set with WithPeriod.
func (c *Controller) Period() time.Duration {
	return c.period
}

// Run calls Update repeatedly until ctx is cancelled.
//
// ERROR HANDLING: a failed cycle is logged and the loop continues with the
// next cycle. Temporal operators depend on being sampled regularly, so a
// single bad reading must not stop the loop.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller starting",
		"inputs", len(c.inputs),
		"outputs", len(c.outputs),
		"period", c.period,
	)
	c.state = StateRunning
	defer func() { c.state = StateReady }()

	var tick <-chan time.Time
	if c.period > 0 {
		ticker := time.NewTicker(c.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("controller stopping: context cancelled", "cycles", c.stats.Cycles)
			return ctx.Err()
		default:
		}

		if err := c.Step(); err != nil {
			c.logger.Error("cycle failed", "error", err, "cycle", c.stats.Cycles)
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				c.logger.Info("controller stopping: context cancelled", "cycles", c.stats.Cycles)
				return ctx.Err()
			case <-tick:
			}
		}
	}
}
