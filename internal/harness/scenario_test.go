package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, `
name: basic
description: one cycle
pipeline: pipelines/basic
pipeline_name: basic
steps:
  - set: {x: 2}
    remote: {gain: 0.5}
    advance_ms: 20
    repeat: 3
    expect: {y: 4}
  - expect_error: true
assertions:
  - type: trace_contains
    output: y
    value: 4
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "basic", s.Name)
	assert.Equal(t, "pipelines/basic", s.Pipeline, "not resolved without a base path")
	assert.Equal(t, "basic", s.PipelineName)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, 3, s.Steps[0].Cycles())
	assert.Equal(t, 1, s.Steps[1].Cycles())
	assert.Equal(t, int64(20), s.Steps[0].AdvanceMillis)
	assert.Equal(t, 2, s.Steps[0].Set["x"])
	assert.Equal(t, 0.5, s.Steps[0].Remote["gain"])
	assert.True(t, s.Steps[1].ExpectError)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertTraceContains, s.Assertions[0].Type)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	path := writeScenario(t, "name: a\ndescription: b\npipeline: p\nsteps: [{}]\n")

	s, err := LoadScenarioWithBasePath(path, "/base")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/base", "p"), s.Pipeline)

	path = writeScenario(t, "name: a\ndescription: b\npipeline: /abs/p\nsteps: [{}]\n")
	s, err = LoadScenarioWithBasePath(path, "/base")
	require.NoError(t, err)
	assert.Equal(t, "/abs/p", s.Pipeline)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, "name: a\ndescription: b\nsteps:\n  - expects: {y: 1}\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "description: b\nsteps: [{}]\n", "name is required"},
		{"no description", "name: a\nsteps: [{}]\n", "description is required"},
		{"no steps", "name: a\ndescription: b\n", "steps list is required"},
		{"negative advance", "name: a\ndescription: b\nsteps: [{advance_ms: -1}]\n", "advance_ms must be >= 0"},
		{"negative repeat", "name: a\ndescription: b\nsteps: [{repeat: -2}]\n", "repeat must be >= 0"},
		{"assertion without type", "name: a\ndescription: b\nsteps: [{}]\nassertions: [{output: y}]\n", "type is required"},
		{"unknown assertion", "name: a\ndescription: b\nsteps: [{}]\nassertions: [{type: trace_sum}]\n", "unknown assertion type"},
		{"order without values", "name: a\ndescription: b\nsteps: [{}]\nassertions: [{type: trace_order, output: y}]\n", "non-empty 'values'"},
		{"contains without output", "name: a\ndescription: b\nsteps: [{}]\nassertions: [{type: trace_contains, value: 1}]\n", "requires 'output'"},
		{"final without expect", "name: a\ndescription: b\nsteps: [{}]\nassertions: [{type: final_state}]\n", "requires 'expect'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
