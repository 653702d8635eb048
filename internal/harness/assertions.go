package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/kabuki/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes the output's trace to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Output   string        // Output the assertion is about, if any
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []value.Value // Values delivered to Output
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Output != "" {
		fmt.Fprintf(&buf, "\nTrace of %s:\n", e.Output)
		for i, v := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, value.Format(v))
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result, a)
	case AssertTraceOrder:
		return assertTraceOrder(result, a)
	case AssertTraceCount:
		return assertTraceCount(result, a)
	case AssertFinalState:
		return assertFinalState(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertTraceContains checks that the output was delivered the value at
// least once.
func assertTraceContains(result *Result, a Assertion) error {
	want, err := value.FromAny(a.Value)
	if err != nil {
		return fmt.Errorf("trace_contains: %w", err)
	}
	trace := result.OutputTrace(a.Output)
	for _, v := range trace {
		if value.ApproxEqual(want, v, Tolerance) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Output:   a.Output,
		Expected: fmt.Sprintf("%s delivered to %s", value.Format(want), a.Output),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the values appear in the output's trace in
// the given order. Other values may appear in between.
func assertTraceOrder(result *Result, a Assertion) error {
	want := make([]value.Value, len(a.Values))
	for i, raw := range a.Values {
		v, err := value.FromAny(raw)
		if err != nil {
			return fmt.Errorf("trace_order: values[%d]: %w", i, err)
		}
		want[i] = v
	}

	trace := result.OutputTrace(a.Output)
	next := 0
	for _, v := range trace {
		if next < len(want) && value.ApproxEqual(want[next], v, Tolerance) {
			next++
		}
	}
	if next == len(want) {
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceOrder,
		Output:   a.Output,
		Expected: fmt.Sprintf("values in order: %s", formatValues(want)),
		Actual:   fmt.Sprintf("matched %d of %d, missing %s", next, len(want), value.Format(want[next])),
		Trace:    trace,
	}
}

// assertTraceCount checks that the output was delivered the value exactly
// Count times.
func assertTraceCount(result *Result, a Assertion) error {
	want, err := value.FromAny(a.Value)
	if err != nil {
		return fmt.Errorf("trace_count: %w", err)
	}
	trace := result.OutputTrace(a.Output)
	count := 0
	for _, v := range trace {
		if value.ApproxEqual(want, v, Tolerance) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Output:   a.Output,
		Expected: fmt.Sprintf("%s delivered %d times", value.Format(want), a.Count),
		Actual:   fmt.Sprintf("delivered %d times", count),
		Trace:    trace,
	}
}

// assertFinalState compares the listed outputs' last values, reporting a
// structural diff on mismatch.
func assertFinalState(result *Result, a Assertion) error {
	want := make(map[string]any, len(a.Expect))
	got := make(map[string]any, len(a.Expect))
	for output, raw := range a.Expect {
		v, err := value.FromAny(raw)
		if err != nil {
			return fmt.Errorf("final_state: %s: %w", output, err)
		}
		want[output] = value.ToAny(v)
		if final, ok := result.Final[output]; ok {
			got[output] = value.ToAny(final)
		}
	}

	diff := cmp.Diff(want, got, approxFloats)
	if diff == "" {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: "final values to match",
		Actual:   fmt.Sprintf("diff (-want +got):\n%s", diff),
	}
}

// approxFloats compares numbers within Tolerance.
var approxFloats = cmp.Comparer(func(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance
})

func formatValues(vs []value.Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = value.Format(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// DiffTraces returns a human-readable diff between two traces, or "" when
// they match.
func DiffTraces(want, got []TraceEvent) string {
	return cmp.Diff(want, got, cmp.Comparer(func(a, b value.Value) bool {
		return value.ApproxEqual(a, b, Tolerance)
	}))
}
