package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// gainPipeline multiplies a constant by a remote gain and records the result.
const gainPipeline = `
package demo

pipeline: gain: {
	period_ms: 10
	sources: {
		x: {kind: "constant", value: 2}
		k: {kind: "remote", label: "Gain", default: 3, min: 0, max: 10}
	}
	nodes: {
		y: {op: "mul", args: ["x", "k"]}
	}
	outputs: [{node: "y", sink: "record"}]
}
`

// brokenPipeline references a name that is never declared.
const brokenPipeline = `
package demo

pipeline: broken: {
	sources: {
		x: {kind: "constant", value: 1}
	}
	nodes: {
		y: {op: "mul", args: ["x", "missing"]}
	}
	outputs: [{node: "y"}]
}
`

// writePipelineDir writes name.cue holding content into a fresh directory.
func writePipelineDir(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "pipelines")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.cue"), []byte(content), 0o644))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
