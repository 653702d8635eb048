package graph

import (
	"math"
	"sort"

	"github.com/roach88/kabuki/internal/value"
)

// direction is the last accepted trend of a reduce_noise operator.
type direction int8

const (
	dirUnknown direction = iota
	dirUp
	dirDown
)

type keyframe struct {
	x, y float64
}

// computeThrottle samples its child and records when it did so.
// Reset consults lastSample to decide whether to let the next sample through.
func (o *Operator) computeThrottle() (value.Value, error) {
	o.lastSample = o.clock.Millis()
	return o.children[0].Value()
}

// computeReduceNoise is a one-sided hysteresis filter.
//
// Movement in the current trend direction is always accepted. A reversal is
// accepted only when it moves at least band away from the last accepted
// value. The first compute seeds the trend; the first movement after that
// sets the direction unconditionally.
func (o *Operator) computeReduceNoise() (value.Value, error) {
	v, err := o.children[0].Value()
	if err != nil {
		return nil, err
	}
	n, ok := v.(value.Number)
	if !ok {
		return nil, NewComputeError(ErrCodeUndefinedOperation, o.kind.String(),
			"expected number, got %s", typeName(v))
	}
	current := float64(n)

	if !o.seeded {
		o.trendValue = current
		o.seeded = true
		return n, nil
	}

	diff := current - o.trendValue
	dir := dirUp
	if diff < 0 {
		dir = dirDown
	}

	if o.trendDir != dirUnknown && dir != o.trendDir && math.Abs(diff) < o.band {
		return value.Number(o.trendValue), nil
	}

	o.trendValue = current
	o.trendDir = dir
	return n, nil
}

// computeSwap selects child a while control is on the main path and b
// otherwise. With a sustain window, leaving the main path arms a deadline
// during which b stays selected regardless of control.
//
// Only the selected branch is evaluated.
func (o *Operator) computeSwap() (value.Value, error) {
	c, err := o.children[0].Value()
	if err != nil {
		return nil, err
	}
	main := value.IsMainPath(c)

	if o.hasSustain {
		now := o.clock.Millis()
		if o.wasMain && !main {
			o.armed = true
			o.deadline = now + o.sustain
		}
		if o.armed {
			if now < o.deadline {
				main = false
			} else {
				o.armed = false
			}
		}
	}
	o.wasMain = value.IsMainPath(c)

	if main {
		return o.children[1].Value()
	}
	return o.children[2].Value()
}

// computeCycler advances the position by delta. Overflow past length wraps
// to exactly 0; underflow below 0 wraps to exactly length.
func (o *Operator) computeCycler() value.Value {
	o.position += o.delta
	if o.position > o.length {
		o.position = 0
	} else if o.position < 0 {
		o.position = o.length
	}
	return value.Number(o.position)
}

// computeChannel interpolates the keyframes at the child position, treating
// the keyframe list as cyclic over [0, length).
func (o *Operator) computeChannel() (value.Value, error) {
	v, err := o.children[0].Value()
	if err != nil {
		return nil, err
	}
	n, ok := v.(value.Number)
	if !ok {
		return nil, NewComputeError(ErrCodeUndefinedOperation, o.kind.String(),
			"position: expected number, got %s", typeName(v))
	}
	pos := float64(n)

	first, last := o.keys[0], o.keys[len(o.keys)-1]

	// index of the first keyframe strictly to the right of pos
	i := sort.Search(len(o.keys), func(i int) bool { return o.keys[i].x > pos })

	var left, right keyframe
	switch i {
	case 0:
		left = keyframe{x: last.x - o.length, y: last.y}
		right = first
	case len(o.keys):
		left = last
		right = keyframe{x: first.x + o.length, y: first.y}
	default:
		left, right = o.keys[i-1], o.keys[i]
	}

	span := right.x - left.x
	if span == 0 {
		return value.Number(left.y), nil
	}
	return value.Number(left.y + (right.y-left.y)*(pos-left.x)/span), nil
}

// computeDictSource reads key from the shared mapping. A missing key gets
// the default written back into the mapping.
func (o *Operator) computeDictSource() (value.Value, error) {
	m, err := o.children[0].Value()
	if err != nil {
		return nil, err
	}
	obj, ok := m.(value.Object)
	if !ok {
		return nil, NewComputeError(ErrCodeUndefinedOperation, o.kind.String(),
			"mapping: expected object, got %s", typeName(m))
	}
	if v, found := obj[o.key]; found {
		return v, nil
	}
	obj[o.key] = o.def
	return o.def, nil
}
