package store

import (
	"fmt"

	"github.com/roach88/kabuki/internal/value"
)

// marshalValue converts a delivered value to canonical JSON TEXT.
func marshalValue(v value.Value) (string, error) {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses stored JSON TEXT back into a Value.
func unmarshalValue(data string) (value.Value, error) {
	v, err := value.ParseJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
