// Package reload keeps a pipeline running while its definition changes.
//
// A Supervisor owns the control loop. Reloads are requested from any
// goroutine (the file watcher, a signal handler) but always executed on the
// loop goroutine between two cycles, so the old graph is never touched
// while the new one is being built and shared collaborators such as the
// remote registry see a single owner.
//
// Topology is never patched: a reload builds a complete new pipeline and
// drops the old one. A failed build keeps the old pipeline running.
package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/kabuki/internal/builder"
)

// ErrNotStarted is returned by Run when Start has not produced a pipeline.
var ErrNotStarted = errors.New("supervisor not started")

// BuildFunc compiles and builds a fresh pipeline.
type BuildFunc func(ctx context.Context) (*builder.Pipeline, error)

// Stats reports reload activity.
type Stats struct {
	Reloads  int64
	Failures int64
}

// Supervisor runs the active pipeline and swaps it on reload.
//
// Thread-safety model:
//   - Request, Active, Stats: safe from any goroutine
//   - Start, Reload, Run: loop goroutine only
type Supervisor struct {
	build    BuildFunc
	active   atomic.Pointer[builder.Pipeline]
	requests chan string
	logger   *slog.Logger
	debounce time.Duration

	reloads  atomic.Int64
	failures atomic.Int64
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithDebounce sets how long Watch waits for file events to settle.
func WithDebounce(d time.Duration) Option {
	return func(s *Supervisor) {
		s.debounce = d
	}
}

// DefaultDebounce is the default quiet period before a watched change
// triggers a reload.
const DefaultDebounce = 200 * time.Millisecond

// New creates a Supervisor. Call Start before Run.
func New(build BuildFunc, opts ...Option) *Supervisor {
	s := &Supervisor{
		build:    build,
		requests: make(chan string, 1),
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the first pipeline. Unlike a reload, a failure here is
// returned: there is nothing to keep running.
func (s *Supervisor) Start(ctx context.Context) error {
	p, err := s.build(ctx)
	if err != nil {
		return fmt.Errorf("initial build: %w", err)
	}
	s.active.Store(p)
	s.logger.Info("pipeline started",
		"pipeline", p.Definition.Name,
		"session", p.SessionID(),
	)
	return nil
}

// Active returns the running pipeline, or nil before Start.
func (s *Supervisor) Active() *builder.Pipeline {
	return s.active.Load()
}

// Stats returns reload counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		Reloads:  s.reloads.Load(),
		Failures: s.failures.Load(),
	}
}

// Request asks the loop to reload before its next cycle. Requests made
// while one is pending are coalesced; false is returned for those.
func (s *Supervisor) Request(reason string) bool {
	select {
	case s.requests <- reason:
		return true
	default:
		return false
	}
}

// Reload builds a new pipeline and swaps it in. On failure the active
// pipeline is kept and the error returned.
func (s *Supervisor) Reload(ctx context.Context) error {
	p, err := s.build(ctx)
	if err != nil {
		s.failures.Add(1)
		return err
	}
	old := s.active.Swap(p)
	s.reloads.Add(1)

	attrs := []any{
		"pipeline", p.Definition.Name,
		"session", p.SessionID(),
	}
	if old != nil {
		attrs = append(attrs, "previous_cycles", old.Controller.Stats().Cycles)
	}
	s.logger.Info("pipeline reloaded", attrs...)
	return nil
}

func (s *Supervisor) handle(ctx context.Context, reason string) {
	s.logger.Info("reload requested", "reason", reason)
	if err := s.Reload(ctx); err != nil {
		s.logger.Error("reload failed, keeping the running pipeline", "error", err)
	}
}

// Run steps the active pipeline until ctx is cancelled, applying reload
// requests between cycles. Failed cycles are logged and the loop continues.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.active.Load() == nil {
		return ErrNotStarted
	}
	s.logger.Info("supervisor starting")

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
		period time.Duration = -1
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		p := s.active.Load()

		// the period may change with a reload
		if d := p.Controller.Period(); d != period {
			period = d
			if ticker != nil {
				ticker.Stop()
				ticker, tick = nil, nil
			}
			if d > 0 {
				ticker = time.NewTicker(d)
				tick = ticker.C
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopping: context cancelled", "reloads", s.reloads.Load())
			return ctx.Err()
		case reason := <-s.requests:
			s.handle(ctx, reason)
			continue
		default:
		}

		if err := p.Controller.Step(); err != nil {
			s.logger.Error("cycle failed", "error", err, "cycle", p.Controller.Stats().Cycles)
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				s.logger.Info("supervisor stopping: context cancelled", "reloads", s.reloads.Load())
				return ctx.Err()
			case reason := <-s.requests:
				s.handle(ctx, reason)
			case <-tick:
			}
		}
	}
}
