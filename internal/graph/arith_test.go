package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kabuki/internal/value"
)

func TestStatelessOperators(t *testing.T) {
	tests := []struct {
		name     string
		expr     Expr
		expected value.Value
	}{
		{"add", From(1.25).Add(2.5).Add(0.25), value.Number(4)},
		{"add literal", From(MustOperand(5)).Add(2), value.Number(7)},
		{"add strings", From("hello ").Add("world"), value.String("hello world")},
		{"sub is ordered", From(10).Sub(4), value.Number(6)},
		{"mul", From(5).Mul(2), value.Number(10)},
		{"div is ordered", From(1).Div(4), value.Number(0.25)},
		{"div by zero is zero", From(2).Div(0), value.Number(0)},
		{"neg number", From(1.5).Neg(), value.Number(-1.5)},
		{"neg true", From(true).Neg(), value.Bool(false)},
		{"neg false", From(false).Neg(), value.Bool(true)},
		{"abs", From(-2.5).Abs(), value.Number(2.5)},
		{"gt", From(3).GreaterThan(2), value.Bool(true)},
		{"lt", From(3).LessThan(2), value.Bool(false)},
		{"ge equal", From(2).GreaterOrEqual(2), value.Bool(true)},
		{"le equal", From(2).LessOrEqual(2), value.Bool(true)},
		{"lt strings", From("a").LessThan("b"), value.Bool(true)},

		{"filter_above below limit", From(3).FilterAbove(7), value.Number(3)},
		{"filter_above above limit", From(7).FilterAbove(3), value.Number(0)},
		{"filter_above equal", From(3).FilterAbove(3), value.Number(0)},
		{"filter_below above limit", From(7).FilterBelow(3), value.Number(7)},
		{"filter_below below limit", From(3).FilterBelow(7), value.Number(0)},
		{"filter_below equal", From(3).FilterBelow(3), value.Number(0)},

		{"filter_between inside", From(3).FilterBetween(2, 4), value.Number(0)},
		{"filter_between below", From(2).FilterBetween(3, 5), value.Number(2)},
		{"filter_between above", From(7).FilterBetween(3, 5), value.Number(7)},
		{"filter_between lower edge", From(3).FilterBetween(3, 5), value.Number(0)},
		{"filter_between upper edge", From(5).FilterBetween(3, 5), value.Number(0)},

		{"retain_between inside", From(3).RetainBetween(2, 4), value.Number(3)},
		{"retain_between below", From(2).RetainBetween(3, 5), value.Number(0)},
		{"retain_between above", From(7).RetainBetween(3, 5), value.Number(0)},
		{"retain_between lower edge", From(3).RetainBetween(3, 5), value.Number(3)},
		{"retain_between upper edge", From(5).RetainBetween(3, 5), value.Number(5)},

		{"constrain inside", From(3).Constrain(2, 4), value.Number(3)},
		{"constrain below", From(2).Constrain(3, 5), value.Number(3)},
		{"constrain above", From(7).Constrain(3, 5), value.Number(5)},
		{"constrain reversed inside", From(3).Constrain(4, 2), value.Number(3)},
		{"constrain reversed below", From(2).Constrain(5, 3), value.Number(3)},
		{"constrain reversed above", From(7).Constrain(5, 3), value.Number(5)},

		{"map forward", From(2).Map(0, 10, 0, 100, true), value.Number(20)},
		{"map reverse", From(2).Map(0, 10, 100, 0, true), value.Number(80)},
		{"map above constrained", From(22).Map(10, 20, 20, 100, true), value.Number(100)},
		{"map below constrained", From(8).Map(10, 20, 20, 100, true), value.Number(20)},
		{"map above unconstrained", From(22).Map(10, 20, 20, 100, false), value.Number(116)},
		{"map below unconstrained", From(8).Map(10, 20, 20, 100, false), value.Number(4)},
		{"map fraction", From(0.8).Map(0, 1, 800, 1500, true), value.Number(1360)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := mustNode(t, tt.expr)
			assert.True(t, value.ApproxEqual(tt.expected, valueOf(t, n), 1e-9),
				"expected %v, got %v", tt.expected, valueOf(t, n))
		})
	}
}

func TestPrecedence(t *testing.T) {
	n1, n2, n3, n4 := MustOperand(1), MustOperand(2), MustOperand(3), MustOperand(4)

	op := mustNode(t, From(n1).Add(From(n2).Div(n3)).Add(From(n4).Mul(n2)))
	assert.InDelta(t, 9.666, float64(valueOf(t, op).(value.Number)), 0.01)

	op = mustNode(t, From(n1).Add(n2).Div(From(n3).Add(n4)).Mul(n2))
	assert.InDelta(t, 0.857, float64(valueOf(t, op).(value.Number)), 0.01)
}

func TestDivByZeroIsAlwaysZero(t *testing.T) {
	for _, x := range []float64{-5, 0, 0.001, 42, 1e300} {
		n := mustNode(t, From(x).Div(0))
		assert.Equal(t, value.Number(0), valueOf(t, n))
	}
}

func TestMapEmptyInputRangeFails(t *testing.T) {
	n := mustNode(t, From(5).Map(3, 3, 0, 100, false))
	_, err := n.Value()
	require.Error(t, err)
	assert.True(t, IsComputeError(err))
	assert.True(t, HasCode(err, ErrCodeDivisionByZero))
}

func TestConstrainIsOrderIndependent(t *testing.T) {
	bounds := []float64{-3, 0, 2.5, 7}
	for _, v := range []float64{-10, -3, 0, 1, 2.5, 6.9, 7, 100} {
		for _, b1 := range bounds {
			for _, b2 := range bounds {
				forward := valueOf(t, mustNode(t, From(v).Constrain(b1, b2)))
				reversed := valueOf(t, mustNode(t, From(v).Constrain(b2, b1)))
				assert.Equal(t, forward, reversed, "v=%v b1=%v b2=%v", v, b1, b2)
			}
		}
	}
}

func TestConstrainedMapSharesBoundNodes(t *testing.T) {
	lo, hi := MustOperand(20), MustOperand(100)
	n := mustNode(t, From(22).Map(10, 20, lo, hi, true))
	assert.Equal(t, value.Number(100), valueOf(t, n))

	op := n.(*Operator)
	require.Equal(t, KindConstrain, op.Kind())
	inner := op.Children()[0].(*Operator)
	require.Equal(t, KindMap, inner.Kind())
	assert.Same(t, lo, op.Children()[1])
	assert.Same(t, lo, inner.Children()[3])
	assert.Same(t, hi, op.Children()[2])
}

func TestUndefinedOperations(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
	}{
		{"add string and number", From("a").Add(1)},
		{"sub strings", From("a").Sub("b")},
		{"neg string", From("a").Neg()},
		{"abs bool", From(true).Abs()},
		{"compare mixed", From(1).GreaterThan("1")},
		{"compare bools", From(true).LessThan(false)},
		{"filter null", From(nil).FilterAbove(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mustNode(t, tt.expr).Value()
			require.Error(t, err)
			assert.True(t, IsComputeError(err))
			assert.True(t, HasCode(err, ErrCodeUndefinedOperation))
		})
	}
}

func TestComputeErrorPropagatesThroughParents(t *testing.T) {
	n := mustNode(t, From("a").Neg().Add(1).Mul(2))
	_, err := n.Value()
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeUndefinedOperation))
	assert.Contains(t, err.Error(), "neg")
}
