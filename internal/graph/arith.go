package graph

import (
	"math"

	"github.com/roach88/kabuki/internal/value"
)

// computeStateless evaluates the arithmetic, comparison and range kinds.
// args has exactly kind.Arity() entries.
func computeStateless(kind Kind, args []value.Value) (value.Value, error) {
	switch kind {
	case KindAdd:
		return add(args[0], args[1])
	case KindNeg:
		return neg(args[0])
	case KindGreaterThan, KindLessThan, KindGreaterOrEqual, KindLessOrEqual:
		return compare(kind, args[0], args[1])
	}

	nums, err := numbers(kind, args)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindSub:
		return value.Number(nums[0] - nums[1]), nil
	case KindMul:
		return value.Number(nums[0] * nums[1]), nil
	case KindDiv:
		if nums[1] == 0 {
			return value.Number(0), nil
		}
		return value.Number(nums[0] / nums[1]), nil
	case KindAbs:
		return value.Number(math.Abs(nums[0])), nil
	case KindFilterAbove:
		if nums[0] < nums[1] {
			return value.Number(nums[0]), nil
		}
		return value.Number(0), nil
	case KindFilterBelow:
		if nums[0] > nums[1] {
			return value.Number(nums[0]), nil
		}
		return value.Number(0), nil
	case KindFilterBetween:
		if nums[1] <= nums[0] && nums[0] <= nums[2] {
			return value.Number(0), nil
		}
		return value.Number(nums[0]), nil
	case KindRetainBetween:
		if nums[1] <= nums[0] && nums[0] <= nums[2] {
			return value.Number(nums[0]), nil
		}
		return value.Number(0), nil
	case KindConstrain:
		lo, hi := math.Min(nums[1], nums[2]), math.Max(nums[1], nums[2])
		return value.Number(math.Min(math.Max(nums[0], lo), hi)), nil
	case KindMap:
		v, inLo, inHi, outLo, outHi := nums[0], nums[1], nums[2], nums[3], nums[4]
		if inHi == inLo {
			return nil, NewComputeError(ErrCodeDivisionByZero, kind.String(),
				"input range is empty (in_lo == in_hi == %v)", inLo)
		}
		return value.Number(outLo + (outHi-outLo)*(v-inLo)/(inHi-inLo)), nil
	}

	return nil, NewComputeError(ErrCodeUndefinedOperation, kind.String(), "not a stateless operator")
}

// numbers extracts float64s from args, failing on the first non-number.
func numbers(kind Kind, args []value.Value) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		n, ok := a.(value.Number)
		if !ok {
			return nil, NewComputeError(ErrCodeUndefinedOperation, kind.String(),
				"argument %d: expected number, got %s", i, typeName(a))
		}
		out[i] = float64(n)
	}
	return out, nil
}

func add(a, b value.Value) (value.Value, error) {
	switch av := a.(type) {
	case value.Number:
		if bv, ok := b.(value.Number); ok {
			return av + bv, nil
		}
	case value.String:
		if bv, ok := b.(value.String); ok {
			return av + bv, nil
		}
	}
	return nil, NewComputeError(ErrCodeUndefinedOperation, KindAdd.String(),
		"cannot add %s and %s", typeName(a), typeName(b))
}

func neg(a value.Value) (value.Value, error) {
	switch av := a.(type) {
	case value.Bool:
		return !av, nil
	case value.Number:
		return -av, nil
	}
	return nil, NewComputeError(ErrCodeUndefinedOperation, KindNeg.String(),
		"cannot negate %s", typeName(a))
}

// compare orders two numbers or two strings.
func compare(kind Kind, a, b value.Value) (value.Value, error) {
	var c int
	switch av := a.(type) {
	case value.Number:
		bv, ok := b.(value.Number)
		if !ok {
			return nil, mismatched(kind, a, b)
		}
		switch {
		case av < bv:
			c = -1
		case av > bv:
			c = 1
		}
	case value.String:
		bv, ok := b.(value.String)
		if !ok {
			return nil, mismatched(kind, a, b)
		}
		switch {
		case av < bv:
			c = -1
		case av > bv:
			c = 1
		}
	default:
		return nil, mismatched(kind, a, b)
	}

	switch kind {
	case KindGreaterThan:
		return value.Bool(c > 0), nil
	case KindLessThan:
		return value.Bool(c < 0), nil
	case KindGreaterOrEqual:
		return value.Bool(c >= 0), nil
	default:
		return value.Bool(c <= 0), nil
	}
}

func mismatched(kind Kind, a, b value.Value) error {
	return NewComputeError(ErrCodeUndefinedOperation, kind.String(),
		"cannot compare %s and %s", typeName(a), typeName(b))
}

func typeName(v value.Value) string {
	if v == nil {
		return "null"
	}
	return v.Type()
}
