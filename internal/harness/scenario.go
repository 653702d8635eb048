package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a cycle-by-cycle test of one pipeline.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Pipeline is the directory holding the pipeline's .cue files. May be
	// left empty when the runner supplies one with WithPipelineDir.
	Pipeline string `yaml:"pipeline,omitempty"`

	// PipelineName selects a pipeline when the directory declares several.
	PipelineName string `yaml:"pipeline_name,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against the whole trace after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step changes inputs, runs cycles and checks outputs.
type Step struct {
	// Set assigns constant sources before the first cycle of the step.
	Set map[string]any `yaml:"set,omitempty"`

	// Remote sends values for remote sources, keyed by source name. They
	// are applied by the poll of the step's first cycle.
	Remote map[string]any `yaml:"remote,omitempty"`

	// AdvanceMillis moves the clock forward before each cycle.
	AdvanceMillis int64 `yaml:"advance_ms,omitempty"`

	// Repeat is the number of cycles to run. Zero means one.
	Repeat int `yaml:"repeat,omitempty"`

	// Expect maps output names to the value delivered by the last cycle.
	Expect map[string]any `yaml:"expect,omitempty"`

	// ExpectError requires every cycle of the step to report an error.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Cycles returns how many cycles the step runs.
func (s Step) Cycles() int {
	if s.Repeat <= 0 {
		return 1
	}
	return s.Repeat
}

// Assertion is a check over the complete trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Output names the output checked by trace assertions.
	Output string `yaml:"output,omitempty"`

	// Value is the delivered value (trace_contains, trace_count).
	Value any `yaml:"value,omitempty"`

	// Values is the expected order (trace_order).
	Values []any `yaml:"values,omitempty"`

	// Count is the expected number of deliveries of Value (trace_count).
	Count int `yaml:"count,omitempty"`

	// Expect maps outputs to their final values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative pipeline path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "expects:" for "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Pipeline != "" && !filepath.IsAbs(scenario.Pipeline) && basePath != "" {
		scenario.Pipeline = filepath.Join(basePath, scenario.Pipeline)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.AdvanceMillis < 0 {
			return fmt.Errorf("step %d: advance_ms must be >= 0, got %d", i, step.AdvanceMillis)
		}
		if step.Repeat < 0 {
			return fmt.Errorf("step %d: repeat must be >= 0, got %d", i, step.Repeat)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}

	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Output == "" {
			return fmt.Errorf("trace_contains requires 'output' field")
		}
	case AssertTraceOrder:
		if a.Output == "" {
			return fmt.Errorf("trace_order requires 'output' field")
		}
		if len(a.Values) == 0 {
			return fmt.Errorf("trace_order requires non-empty 'values' field")
		}
	case AssertTraceCount:
		if a.Output == "" {
			return fmt.Errorf("trace_count requires 'output' field")
		}
		if a.Count < 0 {
			return fmt.Errorf("trace_count requires non-negative 'count' field")
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("final_state requires 'expect' field")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
