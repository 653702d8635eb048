package value

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface representing the scalar types a node can produce.
type Value interface {
	value() // Sealed - only the types in this file implement it

	// Type returns the type name used in error messages ("null", "number", ...).
	Type() string
}

// Null is the absence marker. The swap operator treats it as the main path.
type Null struct{}

func (Null) value() {}

// Type implements Value.
func (Null) Type() string { return "null" }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (Null) String() string { return "null" }

// Number is a numeric value. Integers and floats share this representation.
type Number float64

func (Number) value() {}

// Type implements Value.
func (Number) Type() string { return "number" }

func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'g', -1, 64)
}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Type implements Value.
func (Bool) Type() string { return "bool" }

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// String is a sequence-like value; "add" concatenates two Strings.
type String string

func (String) value() {}

// Type implements Value.
func (String) Type() string { return "string" }

// Object is a string-keyed mapping of values with reference semantics.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Type implements Value.
func (Object) Type() string { return "object" }

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Merge copies every entry of other into obj, overwriting existing keys.
func (obj Object) Merge(other Object) {
	for k, v := range other {
		obj[k] = v
	}
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
// Go's default string comparison uses UTF-8 which produces a different order
// for characters outside the BMP.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	for i := 0; i < min(len(a16), len(b16)); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// FromAny converts a Go literal into a Value.
//
// Supported inputs: nil, Value, bool, string, every built-in integer and
// float type, map[string]any and map[string]Value. Anything else is an error.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int8:
		return Number(val), nil
	case int16:
		return Number(val), nil
	case int32:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint:
		return Number(val), nil
	case uint8:
		return Number(val), nil
	case uint16:
		return Number(val), nil
	case uint32:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case map[string]Value:
		return Object(val), nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported literal type: %T", v)
	}
}

// ToAny converts a Value back into plain Go data (nil, float64, bool,
// string, map[string]any). Used at YAML and logging boundaries.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case String:
		return string(val)
	case Object:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = ToAny(elem)
		}
		return m
	default:
		return nil
	}
}

// Equal reports whether a and b hold the same type and content.
// Numbers compare with ==, so NaN is never equal to itself.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		switch b.(type) {
		case nil, Null:
			return true
		}
		return false
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, found := bv[k]
			if !found || !Equal(elem, other) {
				return false
			}
		}
		return true
	}
	return false
}

// ApproxEqual is like Equal but tolerates an absolute difference of eps
// between two Numbers.
func ApproxEqual(a, b Value, eps float64) bool {
	an, aok := a.(Number)
	bn, bok := b.(Number)
	if aok && bok {
		return math.Abs(float64(an)-float64(bn)) <= eps
	}
	return Equal(a, b)
}

// IsMainPath reports whether v selects the main path of a swap:
// the absence marker, false, or numeric zero.
func IsMainPath(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return true
	case Bool:
		return !bool(val)
	case Number:
		return val == 0
	}
	return false
}

// Format renders a value for logs and text output.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case Number:
		return val.String()
	case Bool:
		return val.String()
	case String:
		return strconv.Quote(string(val))
	default:
		b, err := MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
