package graph

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/kabuki/internal/value"
)

// Option configures an operator at construction.
type Option func(*Operator)

// WithClock overrides the time source of a temporal operator.
func WithClock(c Clock) Option {
	return func(o *Operator) {
		o.clock = c
	}
}

// WithSustain keeps a swap on its alternate path for at least ms
// milliseconds after control leaves the main path.
func WithSustain(ms int64) Option {
	return func(o *Operator) {
		o.sustain = ms
		o.hasSustain = true
	}
}

// WithLogger sets the logger used by debug operators.
func WithLogger(l *slog.Logger) Option {
	return func(o *Operator) {
		o.logger = l
	}
}

func (o *Operator) apply(opts []Option) *Operator {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New builds a stateless operator. Each argument is either a Node or a
// literal, which is wrapped into an immutable leaf.
//
//	sum, err := graph.New(graph.KindAdd, speed, 2)
func New(kind Kind, args ...any) (*Operator, error) {
	arity := kind.Arity()
	if arity < 0 {
		return nil, NewConstructionError(ErrCodeUnsupportedKind, kind.String(),
			"kind has a dedicated constructor")
	}
	if len(args) != arity {
		return nil, NewConstructionError(ErrCodeBadArity, kind.String(),
			"expected %d arguments, got %d", arity, len(args))
	}
	children, err := wrapAll(kind.String(), args)
	if err != nil {
		return nil, err
	}
	return newOperator(kind, children), nil
}

// NewThrottle limits how often v is re-sampled: the throttle keeps its
// cached value across resets until periodMillis have passed since the
// last sample.
func NewThrottle(v any, periodMillis int64, opts ...Option) (*Operator, error) {
	child, err := wrap(KindThrottle.String(), v)
	if err != nil {
		return nil, err
	}
	if periodMillis < 0 {
		return nil, NewConstructionError(ErrCodeBadLiteral, KindThrottle.String(),
			"period must be non-negative, got %d", periodMillis)
	}
	o := newOperator(KindThrottle, []Node{child})
	o.period = periodMillis
	return o.apply(opts), nil
}

// NewReduceNoise filters reversals smaller than band.
func NewReduceNoise(v any, band float64) (*Operator, error) {
	child, err := wrap(KindReduceNoise.String(), v)
	if err != nil {
		return nil, err
	}
	o := newOperator(KindReduceNoise, []Node{child})
	o.band = band
	return o, nil
}

// NewSwap selects a while control is null, false or zero, and b otherwise.
// Use WithSustain to hold b for a minimum time.
func NewSwap(control, a, b any, opts ...Option) (*Operator, error) {
	children, err := wrapAll(KindSwap.String(), []any{control, a, b})
	if err != nil {
		return nil, err
	}
	return newOperator(KindSwap, children).apply(opts), nil
}

// NewCycler builds a position accumulator that advances by delta per
// compute, starting from initial.
func NewCycler(length, delta, initial float64) *Operator {
	o := newOperator(KindCycler, nil)
	o.length = length
	o.delta = delta
	o.position = initial
	return o
}

// NewChannel interpolates keyframes at position. Every keyframe must be an
// (x, y) pair; the list is treated as cyclic over [0, length).
func NewChannel(position any, length float64, keys [][]float64) (*Operator, error) {
	if len(keys) == 0 {
		return nil, NewConstructionError(ErrCodeKeysEmpty, KindChannel.String(),
			"at least one keyframe is required")
	}
	frames := make([]keyframe, len(keys))
	for i, k := range keys {
		if len(k) != 2 {
			return nil, NewConstructionError(ErrCodeInvalidKeyShape, KindChannel.String(),
				"keyframe %d has %d elements, want 2", i, len(k))
		}
		frames[i] = keyframe{x: k[0], y: k[1]}
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].x < frames[j].x })

	child, err := wrap(KindChannel.String(), position)
	if err != nil {
		return nil, err
	}
	o := newOperator(KindChannel, []Node{child})
	o.length = length
	o.keys = frames
	return o, nil
}

// NewDictSource reads key from a shared mapping. mapping is a value.Object
// or a Node that yields one. A map[string]any is accepted but converted into
// a private copy, so writes made by the caller afterwards are not seen.
//
// If the key is missing, def is written into the mapping and returned. A nil
// def is written as null, so the key shows up in channel descriptions.
func NewDictSource(key string, mapping any, def any) (*Operator, error) {
	child, err := wrap(KindDictSource.String(), mapping)
	if err != nil {
		return nil, err
	}
	dv, err := value.FromAny(def)
	if err != nil {
		return nil, &Error{
			Category: CategoryConstruction,
			Code:     ErrCodeBadLiteral,
			Op:       KindDictSource.String(),
			Message:  "unsupported default",
			Err:      err,
		}
	}
	o := newOperator(KindDictSource, []Node{child})
	o.key = key
	o.def = dv
	return o, nil
}

// NewDebug logs label and the value of v each time it is computed and
// passes the value through.
func NewDebug(v any, label string, opts ...Option) (*Operator, error) {
	child, err := wrap(KindDebug.String(), v)
	if err != nil {
		return nil, err
	}
	o := newOperator(KindDebug, []Node{child})
	o.label = label
	return o.apply(opts), nil
}

// NewFunc builds an operator whose compute is fn applied to the values of
// args. name appears in logs and errors.
func NewFunc(name string, fn ComputeFunc, args ...any) (*Operator, error) {
	if fn == nil {
		return nil, NewConstructionError(ErrCodeBadLiteral, KindFunc.String(), "nil compute function for %q", name)
	}
	children, err := wrapAll(KindFunc.String(), args)
	if err != nil {
		return nil, err
	}
	o := newOperator(KindFunc, children)
	o.label = name
	o.fn = fn
	return o, nil
}

// String describes the operator for logs.
func (o *Operator) String() string {
	if o.label != "" {
		return fmt.Sprintf("%s(%s)", o.kind, o.label)
	}
	return o.kind.String()
}
