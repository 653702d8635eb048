package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kabuki/internal/value"
)

// valueOf reads a node and fails the test on error.
func valueOf(t *testing.T, n Node) value.Value {
	t.Helper()
	v, err := n.Value()
	require.NoError(t, err)
	return v
}

func mustNode(t *testing.T, e Expr) Node {
	t.Helper()
	n, err := e.Node()
	require.NoError(t, err)
	return n
}

// countingOperator returns an operator that counts how often it computes.
func countingOperator(t *testing.T, count *int) *Operator {
	t.Helper()
	op, err := NewFunc("count", func([]value.Value) (value.Value, error) {
		*count++
		return value.Number(1), nil
	})
	require.NoError(t, err)
	return op
}

func TestOperator_ComputesOncePerReset(t *testing.T) {
	var count int
	op := countingOperator(t, &count)
	assert.Equal(t, 0, count)

	valueOf(t, op)
	assert.Equal(t, 1, count)
	valueOf(t, op)
	assert.Equal(t, 1, count)

	op.Reset()
	assert.Equal(t, 1, count)

	valueOf(t, op)
	valueOf(t, op)
	assert.Equal(t, 2, count)
}

func TestOperator_LeafChangeSeenOnlyAfterReset(t *testing.T) {
	n1 := MustOperand(1.5)
	n2 := MustOperand(3.75)

	op, err := New(KindAdd, n1, n2)
	require.NoError(t, err)
	assert.Equal(t, value.Number(5.25), valueOf(t, op))

	require.NoError(t, n1.Set(1.75))
	assert.Equal(t, value.Number(5.25), valueOf(t, op), "cached")

	op.Reset()
	assert.Equal(t, value.Number(5.5), valueOf(t, op))
}

func TestOperator_ResetReachesEveryDescendant(t *testing.T) {
	leaves := []*Operand{MustOperand(10), MustOperand(20), MustOperand(30), MustOperand(40), MustOperand(50)}

	sum, err := NewFunc("sum", func(args []value.Value) (value.Value, error) {
		var total value.Number
		for _, a := range args {
			total += a.(value.Number)
		}
		return total, nil
	}, leaves[0], leaves[1], leaves[2], leaves[3], leaves[4])
	require.NoError(t, err)
	root := mustNode(t, From(sum).Add(0))

	assert.Equal(t, value.Number(150), valueOf(t, root))
	for i, leaf := range leaves {
		before := valueOf(t, root)
		require.NoError(t, leaf.Set(float64((i+1)*10+1)))
		assert.Equal(t, before, valueOf(t, root), "leaf %d change visible before reset", i)
		root.Reset()
		assert.Equal(t, before.(value.Number)+1, valueOf(t, root))
	}
}

func TestOperator_DiamondComputesSharedChildOnce(t *testing.T) {
	var count int
	shared := countingOperator(t, &count)

	left := mustNode(t, From(shared).Add(1))
	right := mustNode(t, From(shared).Mul(3))
	root, err := New(KindAdd, left, right)
	require.NoError(t, err)

	assert.Equal(t, value.Number(5), valueOf(t, root))
	assert.Equal(t, 1, count)

	// reset reaches shared twice; it must still compute once
	root.Reset()
	root.Reset()
	assert.Equal(t, value.Number(5), valueOf(t, root))
	assert.Equal(t, 2, count)
}

func TestOperator_ErrorsAreNotCached(t *testing.T) {
	fail := true
	op, err := NewFunc("flaky", func([]value.Value) (value.Value, error) {
		if fail {
			return nil, NewComputeError(ErrCodeUndefinedOperation, "flaky", "not yet")
		}
		return value.String("ok"), nil
	})
	require.NoError(t, err)

	_, err = op.Value()
	require.Error(t, err)

	fail = false
	assert.Equal(t, value.String("ok"), valueOf(t, op))
}

func TestNew_BadArity(t *testing.T) {
	_, err := New(KindAdd, 1)
	require.Error(t, err)
	assert.True(t, IsConstructionError(err))
	assert.True(t, HasCode(err, ErrCodeBadArity))
}

func TestNew_RejectsTemporalKinds(t *testing.T) {
	_, err := New(KindThrottle, 1, 100)
	assert.True(t, HasCode(err, ErrCodeUnsupportedKind))
}

func TestNew_BadLiteral(t *testing.T) {
	_, err := New(KindAdd, 1, []string{"x"})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeBadLiteral))
}

func TestParseKind(t *testing.T) {
	for k, name := range kindNames {
		got, ok := ParseKind(name)
		require.True(t, ok, name)
		assert.Equal(t, k, got)
		assert.Equal(t, name, k.String())
	}

	_, ok := ParseKind("modulo")
	assert.False(t, ok)
	assert.Equal(t, "Kind(200)", Kind(200).String())
}

func TestKind_Arity(t *testing.T) {
	assert.Equal(t, 2, KindAdd.Arity())
	assert.Equal(t, 5, KindMap.Arity())
	assert.Equal(t, -1, KindSwap.Arity())
	assert.True(t, KindConstrain.Stateless())
	assert.False(t, KindCycler.Stateless())
}

func TestOperand_SetValueNil(t *testing.T) {
	o := MustOperand(3)
	o.SetValue(nil)
	assert.Equal(t, value.Null{}, valueOf(t, o))
}

func TestOperand_RejectsUnsupported(t *testing.T) {
	_, err := NewOperand(struct{}{})
	assert.True(t, HasCode(err, ErrCodeBadLiteral))

	o := MustOperand(1)
	assert.True(t, HasCode(o.Set(make(chan int)), ErrCodeBadLiteral))
	assert.Equal(t, value.Number(1), valueOf(t, o))
}

func TestErrorMessage(t *testing.T) {
	err := NewComputeError(ErrCodeDivisionByZero, "map", "input range is empty")
	assert.Equal(t, "COMPUTE/DIVISION_BY_ZERO: map: input range is empty", err.Error())

	wrapped := &Error{Category: CategoryAdapter, Code: ErrCodeNotPollable, Message: "no poll", Err: assert.AnError}
	assert.Contains(t, wrapped.Error(), assert.AnError.Error())
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.True(t, IsAdapterError(wrapped))
	assert.False(t, IsComputeError(wrapped))
}
