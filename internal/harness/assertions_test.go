package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kabuki/internal/value"
)

func traceResult(outputs map[string][]float64) *Result {
	r := NewResult()
	cycle := int64(0)
	for _, name := range sortedOutputNames(outputs) {
		for _, v := range outputs[name] {
			cycle++
			r.Trace = append(r.Trace, TraceEvent{Cycle: cycle, Output: name, Value: value.Number(v)})
			r.Final[name] = value.Number(v)
		}
	}
	return r
}

func sortedOutputNames(m map[string][]float64) []string {
	keys := make(map[string]any, len(m))
	for k := range m {
		keys[k] = nil
	}
	return sortedKeys(keys)
}

func TestAssertTraceContains(t *testing.T) {
	r := traceResult(map[string][]float64{"y": {1, 2, 3}})

	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertTraceContains, Output: "y", Value: 2}))
	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertTraceContains, Output: "y", Value: 2.0000000001}))

	err := evaluateAssertion(r, Assertion{Type: AssertTraceContains, Output: "y", Value: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in trace")
	assert.Contains(t, err.Error(), "Trace of y:")
	assert.Contains(t, err.Error(), "[3] 3")
}

func TestAssertTraceOrder(t *testing.T) {
	r := traceResult(map[string][]float64{"y": {1, 5, 2, 5, 3}})

	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertTraceOrder, Output: "y", Values: []any{1, 2, 3}}))
	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertTraceOrder, Output: "y", Values: []any{5, 5}}))

	err := evaluateAssertion(r, Assertion{Type: AssertTraceOrder, Output: "y", Values: []any{3, 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matched 1 of 2, missing 1")
}

func TestAssertTraceCount(t *testing.T) {
	r := traceResult(map[string][]float64{"y": {1, 1, 2}, "z": {1}})

	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertTraceCount, Output: "y", Value: 1, Count: 2}))
	assert.NoError(t, evaluateAssertion(r, Assertion{Type: AssertTraceCount, Output: "y", Value: 9, Count: 0}))

	err := evaluateAssertion(r, Assertion{Type: AssertTraceCount, Output: "z", Value: 1, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivered 1 times")
}

func TestAssertFinalState(t *testing.T) {
	r := traceResult(map[string][]float64{"y": {1, 4}, "z": {0.5}})

	assert.NoError(t, evaluateAssertion(r, Assertion{
		Type:   AssertFinalState,
		Expect: map[string]any{"y": 4, "z": 0.5},
	}))

	err := evaluateAssertion(r, Assertion{
		Type:   AssertFinalState,
		Expect: map[string]any{"y": 3, "missing": true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diff (-want +got)")
	assert.Contains(t, err.Error(), "missing")
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	r := traceResult(map[string][]float64{"y": {1}})
	failures := EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceContains, Output: "y", Value: 1},
		{Type: AssertTraceContains, Output: "y", Value: 2},
		{Type: "bogus"},
	})
	require.Len(t, failures, 2)
	assert.Contains(t, failures[1], "unknown assertion type")
}

func TestDiffTraces(t *testing.T) {
	a := []TraceEvent{{Cycle: 1, Output: "y", Value: value.Number(1)}}
	b := []TraceEvent{{Cycle: 1, Output: "y", Value: value.Number(1 + 1e-12)}}
	c := []TraceEvent{{Cycle: 1, Output: "y", Value: value.Bool(true)}}

	assert.Empty(t, DiffTraces(a, b))
	assert.NotEmpty(t, DiffTraces(a, c))
}
