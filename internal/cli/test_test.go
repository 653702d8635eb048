package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gainScenario = `
name: gain_basic
description: the output follows the constant and the remote gain
steps:
  - expect: {y: 6}
  - set: {x: 4}
    remote: {k: 0.5}
    advance_ms: 10
    expect: {y: 2}
assertions:
  - type: trace_order
    output: y
    values: [6, 2]
`

const wrongScenario = `
name: gain_wrong
description: expects a value the pipeline never delivers
steps:
  - expect: {y: 7}
`

const gainGolden = `{"pipeline":"gain","scenario":"gain_basic"}
{"cycle":1,"output":"y","t":0,"value":6}
{"cycle":2,"output":"y","t":10,"value":2}
`

type testCommandResult struct {
	out    string
	errOut string
	err    error
}

func executeTest(t *testing.T, format string, verbose bool, args ...string) testCommandResult {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format, Verbose: verbose})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return testCommandResult{out: out.String(), errOut: errOut.String(), err: err}
}

// scenarioDirs returns a pipeline directory and a scenarios directory
// holding the given files.
func scenarioDirs(t *testing.T, scenarios map[string]string) (string, string) {
	t.Helper()
	pipelines := writePipelineDir(t, gainPipeline)
	dir := filepath.Join(t.TempDir(), "scenarios")
	for name, content := range scenarios {
		writeFile(t, filepath.Join(dir, name), content)
	}
	return pipelines, dir
}

func TestTestCommandPasses(t *testing.T) {
	pipelines, scenarios := scenarioDirs(t, map[string]string{"gain_basic.yaml": gainScenario})

	r := executeTest(t, "text", false, pipelines, scenarios)
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "✓ gain_basic")
	assert.Contains(t, r.out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, r.out, "✓ All scenarios passed")
}

func TestTestCommandFailure(t *testing.T) {
	pipelines, scenarios := scenarioDirs(t, map[string]string{
		"gain_basic.yaml": gainScenario,
		"gain_wrong.yaml": wrongScenario,
	})

	r := executeTest(t, "text", false, pipelines, scenarios)
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
	assert.Contains(t, r.out, "✗ gain_wrong")
	assert.Contains(t, r.out, "step 0: output y: expected 7, got 6")
	assert.Contains(t, r.out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandJSON(t *testing.T) {
	pipelines, scenarios := scenarioDirs(t, map[string]string{
		"gain_basic.yaml": gainScenario,
		"gain_wrong.yaml": wrongScenario,
	})

	r := executeTest(t, "json", false, pipelines, scenarios)
	require.Error(t, r.err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)

	byName := map[string]ScenarioResult{}
	for _, s := range resp.Data.Scenarios {
		byName[s.Name] = s
	}
	assert.True(t, byName["gain_basic"].Pass)
	assert.Equal(t, int64(2), byName["gain_basic"].Cycles)
	assert.False(t, byName["gain_wrong"].Pass)
	assert.NotEmpty(t, byName["gain_wrong"].Errors)
}

func TestTestCommandFilter(t *testing.T) {
	pipelines, scenarios := scenarioDirs(t, map[string]string{
		"gain_basic.yaml": gainScenario,
		"gain_wrong.yaml": wrongScenario,
	})

	r := executeTest(t, "text", false, pipelines, scenarios, "--filter", "*_basic")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.NotContains(t, r.out, "gain_wrong")
}

func TestTestCommandInvalidFilter(t *testing.T) {
	pipelines, scenarios := scenarioDirs(t, map[string]string{"gain_basic.yaml": gainScenario})

	r := executeTest(t, "text", false, pipelines, scenarios, "--filter", "[")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}

func TestTestCommandGolden(t *testing.T) {
	pipelines, scenarios := scenarioDirs(t, map[string]string{"gain_basic.yaml": gainScenario})
	goldenPath := filepath.Join(scenarios, "golden", "gain_basic.golden")

	r := executeTest(t, "text", false, pipelines, scenarios, "--update")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "✓ gain_basic (golden updated)")

	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Equal(t, gainGolden, string(data))

	r = executeTest(t, "text", false, pipelines, scenarios)
	require.NoError(t, r.err, "a matching golden file passes")

	stale := `{"pipeline":"gain","scenario":"gain_basic"}
{"cycle":1,"output":"y","t":0,"value":5}
`
	require.NoError(t, os.WriteFile(goldenPath, []byte(stale), 0o644))

	r = executeTest(t, "text", true, pipelines, scenarios)
	require.Error(t, r.err)
	assert.Contains(t, r.out, "trace does not match golden file")
	assert.Contains(t, r.errOut, "golden diff (-want +got)")
	assert.Contains(t, r.errOut, "value")
}

func TestTestCommandScenarioPipelinePath(t *testing.T) {
	pipelines := writePipelineDir(t, gainPipeline)
	scenarios := filepath.Join(filepath.Dir(pipelines), "scenarios")
	writeFile(t, filepath.Join(scenarios, "gain_basic.yaml"), gainScenario+"pipeline: ../pipelines\n")

	// the pipeline directory argument is unused when the scenario names one
	r := executeTest(t, "text", false, t.TempDir(), scenarios)
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "✓ gain_basic")
}

func TestTestCommandLoadError(t *testing.T) {
	pipelines, scenarios := scenarioDirs(t, map[string]string{"broken.yaml": "name: broken\nsteps: []\n"})

	r := executeTest(t, "text", false, pipelines, scenarios)
	require.Error(t, r.err)
	assert.Contains(t, r.out, "✗ broken.yaml")
	assert.Contains(t, r.out, "failed to load scenario")
}

func TestTestCommandNoScenarios(t *testing.T) {
	pipelines := writePipelineDir(t, gainPipeline)

	r := executeTest(t, "text", false, pipelines, t.TempDir())
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "No scenarios found.")
}

func TestTestCommandMissingDirectories(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")

	r := executeTest(t, "text", false, missing, t.TempDir())
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
	assert.Contains(t, r.err.Error(), "pipeline directory not found")

	r = executeTest(t, "text", false, t.TempDir(), missing)
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "scenarios directory not found")
}

func TestFindScenarioFilesSkipsGolden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "")
	writeFile(t, filepath.Join(dir, "nested", "b.yml"), "")
	writeFile(t, filepath.Join(dir, "golden", "c.yaml"), "")
	writeFile(t, filepath.Join(dir, "notes.txt"), "")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "nested", "b.yml"),
	}, files)
}
