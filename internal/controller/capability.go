package controller

import (
	"fmt"

	"github.com/roach88/kabuki/internal/graph"
	"github.com/roach88/kabuki/internal/value"
)

// Poller is polled once per cycle, before any output is read.
// It is expected to update the leaf operands it is responsible for.
type Poller interface {
	Poll() error
}

// Consumer receives the value of a wired output once per cycle.
type Consumer interface {
	Consume(v value.Value) error
}

// ValueSource is read once per poll by a ValueInput.
type ValueSource interface {
	Current() value.Value
}

// ValueSetter receives output values by assignment. *graph.Operand
// implements it, so an output can feed a leaf of another graph.
type ValueSetter interface {
	SetValue(v value.Value)
}

// PollerFunc adapts a function to Poller.
type PollerFunc func() error

// Poll calls f.
func (f PollerFunc) Poll() error { return f() }

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(v value.Value) error

// Consume calls f.
func (f ConsumerFunc) Consume(v value.Value) error { return f(v) }

// asPoller detects the poll capability of p.
//
// Accepted shapes: Poller, a type with Poll() and no result, func() error
// and func().
func asPoller(p any) (Poller, error) {
	switch v := p.(type) {
	case Poller:
		return v, nil
	case interface{ Poll() }:
		return PollerFunc(func() error { v.Poll(); return nil }), nil
	case func() error:
		return PollerFunc(v), nil
	case func():
		return PollerFunc(func() error { v(); return nil }), nil
	}
	return nil, graph.NewAdapterError(graph.ErrCodeNotPollable, "poll",
		"%s has no Poll method and is not a function", describe(p))
}

// asConsumer detects the consume capability of c.
//
// Accepted shapes: Consumer, a type with Consume(value.Value) and no result,
// ValueSetter, func(value.Value) error and func(value.Value).
func asConsumer(c any) (Consumer, error) {
	switch v := c.(type) {
	case Consumer:
		return v, nil
	case interface{ Consume(value.Value) }:
		return ConsumerFunc(func(x value.Value) error { v.Consume(x); return nil }), nil
	case ValueSetter:
		return ConsumerFunc(func(x value.Value) error { v.SetValue(x); return nil }), nil
	case func(value.Value) error:
		return ConsumerFunc(v), nil
	case func(value.Value):
		return ConsumerFunc(func(x value.Value) error { v(x); return nil }), nil
	}
	return nil, graph.NewConstructionError(graph.ErrCodeWireError, "wire",
		"%s has no Consume method and is not a function", describe(c))
}

func describe(x any) string {
	if x == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", x)
}
