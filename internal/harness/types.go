package harness

import (
	"github.com/roach88/kabuki/internal/value"
)

// TraceEvent is one value delivered to one output.
type TraceEvent struct {
	Cycle  int64       `json:"cycle"`
	Millis int64       `json:"t"`
	Output string      `json:"output"`
	Value  value.Value `json:"value"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Pipeline is the name of the pipeline that ran.
	Pipeline string `json:"pipeline"`

	// Cycles is the number of cycles executed.
	Cycles int64 `json:"cycles"`

	// Trace holds every delivery in cycle order, then output order.
	Trace []TraceEvent `json:"trace"`

	// Final maps each output to the last value delivered to it.
	Final map[string]value.Value `json:"final"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Final:  make(map[string]value.Value),
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// OutputTrace returns the values delivered to output, in order.
func (r *Result) OutputTrace(output string) []value.Value {
	var out []value.Value
	for _, e := range r.Trace {
		if e.Output == output {
			out = append(out, e.Value)
		}
	}
	return out
}
