package graph

import (
	"github.com/roach88/kabuki/internal/value"
)

// Node is any value-bearing element of a graph.
//
// Value returns the node's current value, computing and caching it if
// necessary. Reset invalidates the cache and cascades to every child.
// Reset must be idempotent; shared children are reset once per parent
// that reaches them.
type Node interface {
	Value() (value.Value, error)
	Reset()
}

// Operand is a leaf holding a mutable literal.
//
// Adapters call Set between cycles. The new value is only observed by
// operators above it after their next Reset.
type Operand struct {
	v value.Value
}

// NewOperand creates a leaf holding x.
func NewOperand(x any) (*Operand, error) {
	v, err := value.FromAny(x)
	if err != nil {
		return nil, &Error{
			Category: CategoryConstruction,
			Code:     ErrCodeBadLiteral,
			Op:       "operand",
			Message:  "unsupported literal",
			Err:      err,
		}
	}
	return &Operand{v: v}, nil
}

// MustOperand is like NewOperand but panics on an unsupported literal.
// Intended for package-level graphs and tests with known-good literals.
func MustOperand(x any) *Operand {
	o, err := NewOperand(x)
	if err != nil {
		panic(err)
	}
	return o
}

// Value returns the stored literal.
func (o *Operand) Value() (value.Value, error) {
	return o.v, nil
}

// Reset is a no-op for leaves.
func (o *Operand) Reset() {}

// Set replaces the stored literal.
func (o *Operand) Set(x any) error {
	v, err := value.FromAny(x)
	if err != nil {
		return &Error{
			Category: CategoryConstruction,
			Code:     ErrCodeBadLiteral,
			Op:       "operand",
			Message:  "unsupported literal",
			Err:      err,
		}
	}
	o.v = v
	return nil
}

// SetValue replaces the stored literal with an already-converted value.
func (o *Operand) SetValue(v value.Value) {
	if v == nil {
		v = value.Null{}
	}
	o.v = v
}

// literal is the immutable leaf produced when a constructor argument is
// a plain Go value rather than a Node.
type literal struct {
	v value.Value
}

func (l literal) Value() (value.Value, error) { return l.v, nil }
func (l literal) Reset()                      {}

// wrap converts a constructor argument into a Node.
func wrap(op string, x any) (Node, error) {
	switch n := x.(type) {
	case Node:
		return n, nil
	case Expr:
		return n.Node()
	}
	v, err := value.FromAny(x)
	if err != nil {
		return nil, &Error{
			Category: CategoryConstruction,
			Code:     ErrCodeBadLiteral,
			Op:       op,
			Message:  "argument is neither a node nor a supported literal",
			Err:      err,
		}
	}
	return literal{v: v}, nil
}

func wrapAll(op string, args []any) ([]Node, error) {
	nodes := make([]Node, len(args))
	for i, a := range args {
		n, err := wrap(op, a)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}
