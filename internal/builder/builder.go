// Package builder turns a pipeline.Definition into a running graph: one
// operator per node, adapters for sources and sinks, and a controller that
// drives them.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/kabuki/internal/adapters"
	"github.com/roach88/kabuki/internal/compiler"
	"github.com/roach88/kabuki/internal/controller"
	"github.com/roach88/kabuki/internal/graph"
	"github.com/roach88/kabuki/internal/pipeline"
	"github.com/roach88/kabuki/internal/remote"
	"github.com/roach88/kabuki/internal/store"
	"github.com/roach88/kabuki/internal/telemetry"
	"github.com/roach88/kabuki/internal/value"
)

// ErrMissingDependency is returned when an output uses a sink whose backend
// was not supplied.
var ErrMissingDependency = errors.New("missing dependency")

// Pipeline is a built, ready-to-run graph.
type Pipeline struct {
	Definition *pipeline.Definition
	Controller *controller.Controller
	Serial     *remote.Serial

	// Recorder is set when any output uses the record sink.
	Recorder *store.Recorder
	// Profiler is set when metrics are enabled.
	Profiler *telemetry.Profiler

	nodes     map[string]graph.Node
	constants map[string]*graph.Operand
	latest    map[string]*adapters.Latest
}

// Node returns the built node or source named name.
func (p *Pipeline) Node(name string) (graph.Node, bool) {
	n, ok := p.nodes[name]
	return n, ok
}

// Constant returns the operand backing a constant source, for tests and
// scenario steps that change it between cycles.
func (p *Pipeline) Constant(name string) (*graph.Operand, bool) {
	op, ok := p.constants[name]
	return op, ok
}

// Latest returns the last value delivered to the named output.
func (p *Pipeline) Latest(output string) (value.Value, bool) {
	l, ok := p.latest[output]
	if !ok {
		return nil, false
	}
	return l.Value()
}

// Deliveries returns how many values the named output has received.
func (p *Pipeline) Deliveries(output string) int64 {
	l, ok := p.latest[output]
	if !ok {
		return 0
	}
	return l.Count()
}

// SessionID returns the recording session id, or "" when not recording.
func (p *Pipeline) SessionID() string {
	if p.Recorder == nil {
		return ""
	}
	return p.Recorder.Session().ID
}

type config struct {
	logger     *slog.Logger
	clock      graph.Clock
	period     time.Duration
	hasPeriod  bool
	serial     *remote.Serial
	store      *store.Store
	sessionIDs store.SessionIDGenerator
	metrics    *telemetry.Metrics
	influx     *telemetry.Influx
}

// Option configures Build.
type Option func(*config)

// WithLogger sets the logger for the controller, log sinks and debug nodes.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock sets the clock of every temporal operator and the profiler.
func WithClock(clock graph.Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithPeriod overrides the pipeline's period_ms.
func WithPeriod(d time.Duration) Option {
	return func(c *config) {
		c.period = d
		c.hasPeriod = true
	}
}

// WithSerial reuses an existing remote registry, so connected clients keep
// working across reloads. The new channels replace the old ones only when
// the build succeeds.
func WithSerial(s *remote.Serial) Option {
	return func(c *config) { c.serial = s }
}

// WithStore enables the record sink.
func WithStore(s *store.Store, ids store.SessionIDGenerator) Option {
	return func(c *config) {
		c.store = s
		c.sessionIDs = ids
	}
}

// WithMetrics enables the metrics sink and installs a cycle profiler.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithInflux enables the influx sink.
func WithInflux(i *telemetry.Influx) Option {
	return func(c *config) { c.influx = i }
}

// Build validates def and constructs its graph and controller.
func Build(ctx context.Context, def *pipeline.Definition, opts ...Option) (*Pipeline, error) {
	cfg := &config{
		logger: slog.Default(),
		clock:  graph.NewMonotonicClock(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := check(def); err != nil {
		return nil, err
	}

	b := &build{
		cfg:      cfg,
		def:      def,
		building: make(map[string]bool),
		p: &Pipeline{
			Definition: def,
			nodes:      make(map[string]graph.Node),
			constants:  make(map[string]*graph.Operand),
			latest:     make(map[string]*adapters.Latest),
		},
	}
	if err := b.run(ctx); err != nil {
		return nil, fmt.Errorf("build pipeline %s: %w", def.Name, err)
	}
	b.channels.Commit()
	return b.p, nil
}

// check rejects definitions the compiler would reject, so Build never sees
// a reference cycle.
func check(def *pipeline.Definition) error {
	var errs []error
	for _, ve := range compiler.Validate(def) {
		errs = append(errs, ve)
	}
	for _, ce := range compiler.AnalyzeCycles(def) {
		errs = append(errs, ce)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid pipeline %s: %w", def.Name, errors.Join(errs...))
	}
	return nil
}

type build struct {
	cfg      *config
	def      *pipeline.Definition
	p        *Pipeline
	building map[string]bool

	// committed to the shared Serial only once the whole build succeeded
	channels *remote.Registration
}

func (b *build) run(ctx context.Context) error {
	cfg := b.cfg

	period := time.Duration(b.def.PeriodMillis) * time.Millisecond
	if cfg.hasPeriod {
		period = cfg.period
	}
	copts := []controller.Option{
		controller.WithLogger(cfg.logger),
		controller.WithPeriod(period),
	}
	if cfg.metrics != nil {
		b.p.Profiler = cfg.metrics.NewProfiler(
			telemetry.WithClock(cfg.clock),
			telemetry.WithLogger(cfg.logger),
		)
		copts = append(copts, controller.WithProfiler(b.p.Profiler.Tick))
	}
	c := controller.New(copts...)
	b.p.Controller = c

	serial := cfg.serial
	if serial == nil {
		serial = remote.NewSerial(remote.WithLogger(cfg.logger))
	}
	b.p.Serial = serial
	b.channels = serial.Begin()
	if err := c.RegisterPollInput(serial); err != nil {
		return err
	}

	if b.def.UsesSink(pipeline.SinkRecord) {
		if cfg.store == nil {
			return fmt.Errorf("record sink: %w: store", ErrMissingDependency)
		}
		rec, err := cfg.store.NewRecorder(ctx, b.def.Name, cfg.sessionIDs, nil)
		if err != nil {
			return err
		}
		b.p.Recorder = rec
		if err := c.RegisterPollInput(rec); err != nil {
			return err
		}
	}

	// Sources first, in declaration order, so remote keys follow it.
	for _, src := range b.def.Sources {
		n, err := b.source(src)
		if err != nil {
			return fmt.Errorf("source %s: %w", src.Name, err)
		}
		b.p.nodes[src.Name] = n
	}

	for _, node := range b.def.Nodes {
		if _, err := b.resolve(node.Name); err != nil {
			return err
		}
	}

	for _, out := range b.def.Outputs {
		root, err := b.resolve(out.Node)
		if err != nil {
			return err
		}
		sink, err := b.sink(out)
		if err != nil {
			return fmt.Errorf("output %s: %w", out.Name, err)
		}
		latest := &adapters.Latest{}
		b.p.latest[out.Name] = latest
		if err := c.WireOutput(root, tee{latest, sink}); err != nil {
			return fmt.Errorf("output %s: %w", out.Name, err)
		}
	}

	return nil
}

func (b *build) source(src pipeline.Source) (graph.Node, error) {
	switch src.Kind {
	case pipeline.SourceConstant:
		op, err := graph.NewOperand(src.Value)
		if err != nil {
			return nil, err
		}
		b.p.constants[src.Name] = op
		return op, nil
	case pipeline.SourceRemote:
		return b.channels.Channel(src.Label, src.Value, src.Min, src.Max)
	case pipeline.SourceCycler:
		return graph.NewCycler(src.Length, src.Delta, src.Initial), nil
	}
	return nil, fmt.Errorf("unknown source kind %q", src.Kind)
}

// resolve returns the node named name, building it and its dependencies
// on first use. Shared references resolve to the same node.
func (b *build) resolve(name string) (graph.Node, error) {
	if n, ok := b.p.nodes[name]; ok {
		return n, nil
	}
	_, node := b.def.Lookup(name)
	if node == nil {
		return nil, fmt.Errorf("unknown reference %q", name)
	}
	if b.building[name] {
		return nil, fmt.Errorf("reference cycle through %q", name)
	}
	b.building[name] = true
	defer delete(b.building, name)

	args := make([]any, len(node.Args))
	for i, arg := range node.Args {
		if !arg.IsRef() {
			args[i] = arg.Literal
			continue
		}
		child, err := b.resolve(arg.Ref)
		if err != nil {
			return nil, err
		}
		args[i] = child
	}

	n, err := b.operator(*node, args)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", name, err)
	}
	b.p.nodes[name] = n
	return n, nil
}

func (b *build) operator(node pipeline.Node, args []any) (graph.Node, error) {
	kind, ok := graph.ParseKind(node.Op)
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", node.Op)
	}
	clock := graph.WithClock(b.cfg.clock)

	switch kind {
	case graph.KindMap:
		return graph.From(args[0]).Map(args[1], args[2], args[3], args[4], node.Constrain).Node()
	case graph.KindThrottle:
		return graph.NewThrottle(args[0], node.PeriodMillis, clock)
	case graph.KindReduceNoise:
		return graph.NewReduceNoise(args[0], node.Band)
	case graph.KindSwap:
		opts := []graph.Option{clock}
		if node.HasSustain {
			opts = append(opts, graph.WithSustain(node.SustainMillis))
		}
		return graph.NewSwap(args[0], args[1], args[2], opts...)
	case graph.KindChannel:
		return graph.NewChannel(args[0], node.Length, node.Keys)
	case graph.KindDebug:
		return graph.NewDebug(args[0], node.Label, graph.WithLogger(b.cfg.logger))
	}
	return graph.New(kind, args...)
}

func (b *build) sink(out pipeline.Output) (controller.Consumer, error) {
	cfg := b.cfg
	switch out.Sink {
	case pipeline.SinkLog:
		return adapters.NewLogSink(out.Name, cfg.logger), nil
	case pipeline.SinkRecord:
		return b.p.Recorder.Output(out.Name), nil
	case pipeline.SinkMetrics:
		if cfg.metrics == nil {
			return nil, fmt.Errorf("metrics sink: %w: metrics registry", ErrMissingDependency)
		}
		return cfg.metrics.OutputGauge(out.Name), nil
	case pipeline.SinkInflux:
		if cfg.influx == nil {
			return nil, fmt.Errorf("influx sink: %w: influx client", ErrMissingDependency)
		}
		return cfg.influx.Sink(out.Name), nil
	}
	return nil, fmt.Errorf("unknown sink %q", out.Sink)
}

// tee keeps the latest value for inspection before delivering to the sink.
type tee struct {
	latest *adapters.Latest
	sink   controller.Consumer
}

func (t tee) Consume(v value.Value) error {
	t.latest.Store(v)
	return t.sink.Consume(v)
}
