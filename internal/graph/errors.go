package graph

import (
	"errors"
	"fmt"
)

// Error represents a failure detected while building or evaluating a graph,
// or while binding adapters to it.
//
// Errors fall into three categories:
//   - CONSTRUCTION: bad arity, unsupported literal, malformed keyframes.
//     A node that fails construction never enters a graph.
//   - COMPUTE: an operation undefined for the operand types, or a map with
//     a zero-width input range. Propagated from Value() unchanged.
//   - ADAPTER: a poll target or consumer lacking the required capability,
//     or an input adapter that produced no value.
type Error struct {
	// Category is the error family.
	Category Category

	// Code identifies the specific failure.
	Code ErrorCode

	// Op is the operator kind or adapter involved ("map", "channel", "poll").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Category groups error codes.
type Category string

const (
	CategoryConstruction Category = "CONSTRUCTION"
	CategoryCompute      Category = "COMPUTE"
	CategoryAdapter      Category = "ADAPTER"
)

// ErrorCode categorizes graph errors.
type ErrorCode string

const (
	// ErrCodeBadArity indicates an operator received the wrong number of children.
	ErrCodeBadArity ErrorCode = "BAD_ARITY"

	// ErrCodeBadLiteral indicates a constructor argument is neither a Node
	// nor a supported literal type.
	ErrCodeBadLiteral ErrorCode = "BAD_LITERAL"

	// ErrCodeUnsupportedKind indicates New was called with a kind that
	// has its own constructor.
	ErrCodeUnsupportedKind ErrorCode = "UNSUPPORTED_KIND"

	// ErrCodeKeysEmpty indicates a channel was built without keyframes.
	ErrCodeKeysEmpty ErrorCode = "KEYS_EMPTY"

	// ErrCodeInvalidKeyShape indicates a keyframe is not an (x, y) pair.
	ErrCodeInvalidKeyShape ErrorCode = "INVALID_KEY_SHAPE"

	// ErrCodeUndefinedOperation indicates an operation is not defined for
	// the operand types.
	ErrCodeUndefinedOperation ErrorCode = "UNDEFINED_OPERATION"

	// ErrCodeDivisionByZero indicates a map with inLo == inHi.
	ErrCodeDivisionByZero ErrorCode = "DIVISION_BY_ZERO"

	// ErrCodeNotPollable indicates a registered input has no poll capability.
	ErrCodeNotPollable ErrorCode = "NOT_POLLABLE"

	// ErrCodeWireError indicates a wired consumer has no consume capability.
	ErrCodeWireError ErrorCode = "WIRE_ERROR"

	// ErrCodeMissingValue indicates an input adapter produced no value.
	ErrCodeMissingValue ErrorCode = "MISSING_VALUE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s/%s: %s", e.Category, e.Code, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s/%s: %s: %s", e.Category, e.Code, e.Op, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsConstructionError returns true if err is (or wraps) a construction error.
func IsConstructionError(err error) bool {
	return hasCategory(err, CategoryConstruction)
}

// IsComputeError returns true if err is (or wraps) a compute error.
func IsComputeError(err error) bool {
	return hasCategory(err, CategoryCompute)
}

// IsAdapterError returns true if err is (or wraps) an adapter error.
func IsAdapterError(err error) bool {
	return hasCategory(err, CategoryAdapter)
}

// HasCode returns true if err is (or wraps) a graph Error with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code ErrorCode) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

func hasCategory(err error, c Category) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Category == c
	}
	return false
}

// NewConstructionError creates a CONSTRUCTION error.
func NewConstructionError(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Category: CategoryConstruction, Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewComputeError creates a COMPUTE error.
func NewComputeError(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Category: CategoryCompute, Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewAdapterError creates an ADAPTER error.
func NewAdapterError(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Category: CategoryAdapter, Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}
