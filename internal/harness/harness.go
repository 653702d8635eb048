package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/kabuki/internal/builder"
	"github.com/roach88/kabuki/internal/compiler"
	"github.com/roach88/kabuki/internal/pipeline"
	"github.com/roach88/kabuki/internal/store"
	"github.com/roach88/kabuki/internal/telemetry"
	"github.com/roach88/kabuki/internal/testutil"
	"github.com/roach88/kabuki/internal/value"
)

// Tolerance is the absolute difference under which two numbers compare
// equal in expectations and assertions.
const Tolerance = 1e-9

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	pipelineDir string
	logger      *slog.Logger
}

// WithPipelineDir sets the pipeline directory used by scenarios that do not
// name one.
func WithPipelineDir(dir string) Option {
	return func(c *runConfig) { c.pipelineDir = dir }
}

// WithLogger sets the logger handed to the pipeline. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Harness executes one scenario against one built pipeline.
type Harness struct {
	scenario *Scenario
	pipeline *builder.Pipeline
	clock    *testutil.ManualClock
	remotes  map[string]string // source name -> channel key
	cycle    int64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a freshly built pipeline with its own manual
// clock and in-memory store. Failed expectations are reported in the
// result; an error is returned only when the scenario cannot run at all.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dir := scenario.Pipeline
	if dir == "" {
		dir = cfg.pipelineDir
	}
	if dir == "" {
		return nil, fmt.Errorf("scenario %s: no pipeline directory", scenario.Name)
	}

	def, err := compiler.Load(dir, scenario.PipelineName)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	def = offline(def)

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	clock := testutil.NewManualClock(0)
	p, err := builder.Build(ctx, def,
		builder.WithLogger(cfg.logger),
		builder.WithClock(clock),
		builder.WithStore(st, testutil.NewFixedSessionGenerator("scenario-"+scenario.Name)),
		builder.WithMetrics(telemetry.NewMetrics()),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		scenario: scenario,
		pipeline: p,
		clock:    clock,
		remotes:  make(map[string]string),
	}
	for i, src := range def.RemoteSources() {
		h.remotes[src.Name] = strconv.Itoa(i)
	}

	result := NewResult()
	result.Pipeline = def.Name
	for i, step := range scenario.Steps {
		if err := h.executeStep(i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	result.Cycles = h.cycle

	for _, out := range def.Outputs {
		if v, ok := p.Latest(out.Name); ok {
			result.Final[out.Name] = v
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// offline returns def with influx outputs delivered to a log sink instead.
func offline(def *pipeline.Definition) *pipeline.Definition {
	if !def.UsesSink(pipeline.SinkInflux) {
		return def
	}
	cp := *def
	cp.Outputs = make([]pipeline.Output, len(def.Outputs))
	for i, out := range def.Outputs {
		if out.Sink == pipeline.SinkInflux {
			out.Sink = pipeline.SinkLog
		}
		cp.Outputs[i] = out
	}
	return &cp
}

// executeStep applies a step's inputs, runs its cycles and checks its
// expectations.
func (h *Harness) executeStep(index int, step Step, result *Result) error {
	if err := h.applySet(step.Set); err != nil {
		return err
	}
	if err := h.applyRemote(step.Remote); err != nil {
		return err
	}

	for n := 0; n < step.Cycles(); n++ {
		h.clock.Advance(step.AdvanceMillis)
		err := h.runCycle(result)
		switch {
		case err != nil && !step.ExpectError:
			result.AddError(fmt.Sprintf("step %d: cycle %d failed: %v", index, h.cycle, err))
		case err == nil && step.ExpectError:
			result.AddError(fmt.Sprintf("step %d: cycle %d: expected an error, cycle succeeded", index, h.cycle))
		}
	}

	for _, output := range sortedKeys(step.Expect) {
		want, err := value.FromAny(step.Expect[output])
		if err != nil {
			return fmt.Errorf("expect %s: %w", output, err)
		}
		got, ok := h.pipeline.Latest(output)
		if !ok {
			result.AddError(fmt.Sprintf("step %d: output %s: expected %s, nothing delivered",
				index, output, value.Format(want)))
			continue
		}
		if !value.ApproxEqual(want, got, Tolerance) {
			result.AddError(fmt.Sprintf("step %d: output %s: expected %s, got %s",
				index, output, value.Format(want), value.Format(got)))
		}
	}
	return nil
}

// runCycle runs one Update and records every output that received a value.
func (h *Harness) runCycle(result *Result) error {
	outputs := h.pipeline.Definition.Outputs
	before := make([]int64, len(outputs))
	for i, out := range outputs {
		before[i] = h.pipeline.Deliveries(out.Name)
	}

	h.cycle++
	err := h.pipeline.Controller.Update()

	now := h.clock.Millis()
	for i, out := range outputs {
		if h.pipeline.Deliveries(out.Name) == before[i] {
			continue
		}
		v, _ := h.pipeline.Latest(out.Name)
		result.Trace = append(result.Trace, TraceEvent{
			Cycle:  h.cycle,
			Millis: now,
			Output: out.Name,
			Value:  v,
		})
	}
	return err
}

func (h *Harness) applySet(set map[string]any) error {
	for _, name := range sortedKeys(set) {
		op, ok := h.pipeline.Constant(name)
		if !ok {
			return fmt.Errorf("set %s: not a constant source", name)
		}
		if err := op.Set(set[name]); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// applyRemote sends the values through the remote protocol, exactly as a
// slider client would.
func (h *Harness) applyRemote(remote map[string]any) error {
	if len(remote) == 0 {
		return nil
	}
	update := value.Object{}
	for _, name := range sortedKeys(remote) {
		raw := remote[name]
		key, ok := h.remotes[name]
		if !ok {
			return fmt.Errorf("remote %s: not a remote source", name)
		}
		v, err := value.FromAny(raw)
		if err != nil {
			return fmt.Errorf("remote %s: %w", name, err)
		}
		update[key] = v
	}
	line, err := value.MarshalCanonical(update)
	if err != nil {
		return fmt.Errorf("encode remote values: %w", err)
	}
	if !h.pipeline.Serial.Submit(string(line), nil) {
		return fmt.Errorf("remote inbox full")
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
