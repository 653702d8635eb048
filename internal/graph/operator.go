package graph

import (
	"fmt"
	"log/slog"

	"github.com/roach88/kabuki/internal/value"
)

// Kind tags the computation an Operator performs.
type Kind uint8

const (
	KindAdd Kind = iota + 1
	KindSub
	KindMul
	KindDiv
	KindNeg
	KindAbs
	KindGreaterThan
	KindLessThan
	KindGreaterOrEqual
	KindLessOrEqual
	KindFilterAbove
	KindFilterBelow
	KindFilterBetween
	KindRetainBetween
	KindConstrain
	KindMap
	KindThrottle
	KindReduceNoise
	KindSwap
	KindCycler
	KindChannel
	KindDictSource
	KindDebug
	KindFunc
)

var kindNames = map[Kind]string{
	KindAdd:            "add",
	KindSub:            "sub",
	KindMul:            "mul",
	KindDiv:            "div",
	KindNeg:            "neg",
	KindAbs:            "abs",
	KindGreaterThan:    "gt",
	KindLessThan:       "lt",
	KindGreaterOrEqual: "ge",
	KindLessOrEqual:    "le",
	KindFilterAbove:    "filter_above",
	KindFilterBelow:    "filter_below",
	KindFilterBetween:  "filter_between",
	KindRetainBetween:  "retain_between",
	KindConstrain:      "constrain",
	KindMap:            "map",
	KindThrottle:       "throttle",
	KindReduceNoise:    "reduce_noise",
	KindSwap:           "swap",
	KindCycler:         "cycler",
	KindChannel:        "channel",
	KindDictSource:     "dict_source",
	KindDebug:          "debug",
	KindFunc:           "func",
}

// statelessArity is the child count of every kind New accepts.
var statelessArity = map[Kind]int{
	KindAdd:            2,
	KindSub:            2,
	KindMul:            2,
	KindDiv:            2,
	KindNeg:            1,
	KindAbs:            1,
	KindGreaterThan:    2,
	KindLessThan:       2,
	KindGreaterOrEqual: 2,
	KindLessOrEqual:    2,
	KindFilterAbove:    2,
	KindFilterBelow:    2,
	KindFilterBetween:  3,
	KindRetainBetween:  3,
	KindConstrain:      3,
	KindMap:            5,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Stateless reports whether k has no state outside its cache.
// Stateless kinds are built with New; the rest have dedicated constructors.
func (k Kind) Stateless() bool {
	_, ok := statelessArity[k]
	return ok
}

// Arity returns the child count of a stateless kind, or -1.
func (k Kind) Arity() int {
	if n, ok := statelessArity[k]; ok {
		return n
	}
	return -1
}

// ParseKind resolves an operator name such as "filter_above".
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// ComputeFunc is the body of a KindFunc operator. It receives the current
// values of the operator's children in order.
type ComputeFunc func(args []value.Value) (value.Value, error)

// Operator is an interior node computing a memoized value from its children.
//
// Every operator kind shares this one type. Kind selects the computation;
// the remaining fields hold construction parameters and the state of the
// temporal kinds. Temporal state persists across Reset and advances only
// when compute actually runs, which is why a value must be computed at most
// once per reset.
type Operator struct {
	kind     Kind
	children []Node

	cached bool
	cache  value.Value

	clock  Clock
	logger *slog.Logger
	label  string
	fn     ComputeFunc

	// throttle
	period     int64
	lastSample int64

	// reduce_noise
	band       float64
	trendValue float64
	trendDir   direction
	seeded     bool

	// swap
	sustain    int64
	hasSustain bool
	wasMain    bool
	armed      bool
	deadline   int64

	// cycler and channel
	length   float64
	delta    float64
	position float64
	keys     []keyframe

	// dict_source
	key string
	def value.Value
}

func newOperator(kind Kind, children []Node) *Operator {
	return &Operator{
		kind:     kind,
		children: children,
		clock:    defaultClock,
		logger:   slog.Default(),
		wasMain:  true,
	}
}

// Kind returns the operator's computation tag.
func (o *Operator) Kind() Kind {
	return o.kind
}

// Children returns the operator's child nodes in order.
func (o *Operator) Children() []Node {
	return o.children
}

// Value returns the cached value, computing it first if the cache is empty.
// Errors are returned to the caller and never cached.
func (o *Operator) Value() (value.Value, error) {
	if o.cached {
		return o.cache, nil
	}
	v, err := o.compute()
	if err != nil {
		return nil, err
	}
	o.cache = v
	o.cached = true
	return v, nil
}

// Reset clears the cache and resets every child.
//
// A throttle swallows the reset while its period since the last sample has
// not elapsed, keeping its cached value and leaving its subtree untouched.
func (o *Operator) Reset() {
	if o.kind == KindThrottle && o.cached && o.clock.Millis()-o.lastSample < o.period {
		return
	}
	o.cached = false
	o.cache = nil
	for _, c := range o.children {
		c.Reset()
	}
}

func (o *Operator) compute() (value.Value, error) {
	switch o.kind {
	case KindThrottle:
		return o.computeThrottle()
	case KindReduceNoise:
		return o.computeReduceNoise()
	case KindSwap:
		return o.computeSwap()
	case KindCycler:
		return o.computeCycler(), nil
	case KindChannel:
		return o.computeChannel()
	case KindDictSource:
		return o.computeDictSource()
	}

	args, err := o.childValues()
	if err != nil {
		return nil, err
	}

	switch o.kind {
	case KindDebug:
		o.logger.Info(o.label, "value", value.Format(args[0]))
		return args[0], nil
	case KindFunc:
		return o.fn(args)
	default:
		return computeStateless(o.kind, args)
	}
}

func (o *Operator) childValues() ([]value.Value, error) {
	args := make([]value.Value, len(o.children))
	for i, c := range o.children {
		v, err := c.Value()
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
