package graph

// Expr is a fluent builder over graph nodes.
//
// Each method returns a new Expr wrapping the operator it built, with the
// receiver as the first child. The first construction error is sticky: every
// later call is a no-op and Node returns that error.
//
//	root, err := graph.From(speed).Mul(2).Constrain(0, 100).Node()
type Expr struct {
	node Node
	err  error
}

// From starts an expression at x, which is a Node or a literal.
func From(x any) Expr {
	n, err := wrap("from", x)
	return Expr{node: n, err: err}
}

// Node returns the built node or the first construction error.
func (e Expr) Node() (Node, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.node, nil
}

// Err returns the first construction error, if any.
func (e Expr) Err() error {
	return e.err
}

func (e Expr) then(build func() (*Operator, error)) Expr {
	if e.err != nil {
		return e
	}
	op, err := build()
	if err != nil {
		return Expr{err: err}
	}
	return Expr{node: op}
}

func (e Expr) op(kind Kind, args ...any) Expr {
	return e.then(func() (*Operator, error) {
		return New(kind, append([]any{e.node}, args...)...)
	})
}

func (e Expr) Add(x any) Expr            { return e.op(KindAdd, x) }
func (e Expr) Sub(x any) Expr            { return e.op(KindSub, x) }
func (e Expr) Mul(x any) Expr            { return e.op(KindMul, x) }
func (e Expr) Div(x any) Expr            { return e.op(KindDiv, x) }
func (e Expr) Neg() Expr                 { return e.op(KindNeg) }
func (e Expr) Abs() Expr                 { return e.op(KindAbs) }
func (e Expr) GreaterThan(x any) Expr    { return e.op(KindGreaterThan, x) }
func (e Expr) LessThan(x any) Expr       { return e.op(KindLessThan, x) }
func (e Expr) GreaterOrEqual(x any) Expr { return e.op(KindGreaterOrEqual, x) }
func (e Expr) LessOrEqual(x any) Expr    { return e.op(KindLessOrEqual, x) }
func (e Expr) FilterAbove(limit any) Expr {
	return e.op(KindFilterAbove, limit)
}
func (e Expr) FilterBelow(limit any) Expr {
	return e.op(KindFilterBelow, limit)
}
func (e Expr) FilterBetween(lo, hi any) Expr {
	return e.op(KindFilterBetween, lo, hi)
}
func (e Expr) RetainBetween(lo, hi any) Expr {
	return e.op(KindRetainBetween, lo, hi)
}
func (e Expr) Constrain(b1, b2 any) Expr {
	return e.op(KindConstrain, b1, b2)
}

// Map linearly rescales from [inLo, inHi] to [outLo, outHi]. When constrain
// is set the result is clamped to the output range; the clamp shares the
// outLo and outHi nodes with the map.
func (e Expr) Map(inLo, inHi, outLo, outHi any, constrain bool) Expr {
	if e.err != nil {
		return e
	}
	lo, err := wrap(KindMap.String(), outLo)
	if err != nil {
		return Expr{err: err}
	}
	hi, err := wrap(KindMap.String(), outHi)
	if err != nil {
		return Expr{err: err}
	}
	m := e.op(KindMap, inLo, inHi, lo, hi)
	if !constrain {
		return m
	}
	return m.op(KindConstrain, lo, hi)
}

func (e Expr) Throttle(periodMillis int64, opts ...Option) Expr {
	return e.then(func() (*Operator, error) { return NewThrottle(e.node, periodMillis, opts...) })
}

func (e Expr) ReduceNoise(band float64) Expr {
	return e.then(func() (*Operator, error) { return NewReduceNoise(e.node, band) })
}

// Swap uses the receiver as control.
func (e Expr) Swap(a, b any, opts ...Option) Expr {
	return e.then(func() (*Operator, error) { return NewSwap(e.node, a, b, opts...) })
}

// Channel uses the receiver as position.
func (e Expr) Channel(length float64, keys [][]float64) Expr {
	return e.then(func() (*Operator, error) { return NewChannel(e.node, length, keys) })
}

func (e Expr) Debug(label string, opts ...Option) Expr {
	return e.then(func() (*Operator, error) { return NewDebug(e.node, label, opts...) })
}
