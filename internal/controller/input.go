package controller

import (
	"fmt"

	"github.com/roach88/kabuki/internal/graph"
	"github.com/roach88/kabuki/internal/value"
)

// FunctionInput is a leaf whose value is fetched from a function on every
// poll. Until the first poll it reads 0.
type FunctionInput struct {
	*graph.Operand
	fetch func() (value.Value, error)
}

// NewFunctionInput wraps fn, which must be one of func() value.Value,
// func() (value.Value, error), func() any or func() (any, error).
func NewFunctionInput(fn any) (*FunctionInput, error) {
	var fetch func() (value.Value, error)
	switch f := fn.(type) {
	case func() value.Value:
		fetch = func() (value.Value, error) { return f(), nil }
	case func() (value.Value, error):
		fetch = f
	case func() any:
		fetch = func() (value.Value, error) { return value.FromAny(f()) }
	case func() (any, error):
		fetch = func() (value.Value, error) {
			x, err := f()
			if err != nil {
				return nil, err
			}
			return value.FromAny(x)
		}
	default:
		return nil, graph.NewAdapterError(graph.ErrCodeNotPollable, "function_input",
			"%s is not a supported supplier function", describe(fn))
	}
	return &FunctionInput{Operand: graph.MustOperand(0), fetch: fetch}, nil
}

// Poll stores the function's current result. A null result is an error;
// the previous value is kept.
func (in *FunctionInput) Poll() error {
	v, err := in.fetch()
	if err != nil {
		return fmt.Errorf("function input: %w", err)
	}
	if v == nil {
		v = value.Null{}
	}
	if _, isNull := v.(value.Null); isNull {
		return graph.NewAdapterError(graph.ErrCodeMissingValue, "function_input",
			"input function must return a value")
	}
	in.SetValue(v)
	return nil
}

// ValueInput is a leaf copying a ValueSource on every poll.
// Until the first poll it reads 0.
type ValueInput struct {
	*graph.Operand
	src ValueSource
}

// NewValueInput wraps src.
func NewValueInput(src ValueSource) *ValueInput {
	return &ValueInput{Operand: graph.MustOperand(0), src: src}
}

// Poll copies the source's current value.
func (in *ValueInput) Poll() error {
	in.SetValue(in.src.Current())
	return nil
}
