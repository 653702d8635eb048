package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/kabuki/internal/pipeline"
	"github.com/roach88/kabuki/internal/value"
)

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func lit(f float64) pipeline.Arg { return pipeline.LiteralArg(value.Number(f)) }

func TestValidate(t *testing.T) {
	base := func() *pipeline.Definition {
		return &pipeline.Definition{
			Name:    "p",
			Sources: []pipeline.Source{{Name: "x", Kind: pipeline.SourceConstant, Value: value.Number(1)}},
			Nodes:   []pipeline.Node{{Name: "n", Op: "neg", Args: []pipeline.Arg{pipeline.RefArg("x")}}},
			Outputs: []pipeline.Output{{Name: "n", Node: "n", Sink: pipeline.SinkLog}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*pipeline.Definition)
		want   []string
	}{
		{
			name:   "valid",
			mutate: func(*pipeline.Definition) {},
			want:   []string{},
		},
		{
			name:   "negative period",
			mutate: func(d *pipeline.Definition) { d.PeriodMillis = -1 },
			want:   []string{ErrInvalidPipeline},
		},
		{
			name:   "unknown op",
			mutate: func(d *pipeline.Definition) { d.Nodes[0].Op = "sqrt" },
			want:   []string{ErrUnknownOp},
		},
		{
			name:   "source kinds are not node ops",
			mutate: func(d *pipeline.Definition) { d.Nodes[0].Op = "dict_source" },
			want:   []string{ErrUnknownOp},
		},
		{
			name:   "arity",
			mutate: func(d *pipeline.Definition) { d.Nodes[0].Args = append(d.Nodes[0].Args, lit(2)) },
			want:   []string{ErrArity},
		},
		{
			name:   "unknown reference",
			mutate: func(d *pipeline.Definition) { d.Nodes[0].Args[0] = pipeline.RefArg("y") },
			want:   []string{ErrUnknownReference},
		},
		{
			name:   "unknown output node",
			mutate: func(d *pipeline.Definition) { d.Outputs[0].Node = "zzz" },
			want:   []string{ErrUnknownReference},
		},
		{
			name:   "duplicate name",
			mutate: func(d *pipeline.Definition) { d.Nodes[0].Name = "x"; d.Outputs[0].Node = "x" },
			want:   []string{ErrDuplicateName},
		},
		{
			name: "duplicate output name",
			mutate: func(d *pipeline.Definition) {
				d.Outputs = append(d.Outputs, pipeline.Output{Name: "n", Node: "x", Sink: pipeline.SinkLog})
			},
			want: []string{ErrDuplicateName},
		},
		{
			name:   "unknown sink",
			mutate: func(d *pipeline.Definition) { d.Outputs[0].Sink = "kafka" },
			want:   []string{ErrUnknownSink},
		},
		{
			name:   "unknown source kind",
			mutate: func(d *pipeline.Definition) { d.Sources[0].Kind = "gps" },
			want:   []string{ErrUnknownSourceKind},
		},
		{
			name:   "cycler length",
			mutate: func(d *pipeline.Definition) { d.Sources[0] = pipeline.Source{Name: "x", Kind: pipeline.SourceCycler} },
			want:   []string{ErrInvalidParameter},
		},
		{
			name: "remote range",
			mutate: func(d *pipeline.Definition) {
				d.Sources[0] = pipeline.Source{Name: "x", Kind: pipeline.SourceRemote, Min: 5, Max: 1}
			},
			want: []string{ErrInvalidParameter},
		},
		{
			name: "throttle period",
			mutate: func(d *pipeline.Definition) {
				d.Nodes[0].Op = "throttle"
			},
			want: []string{ErrInvalidParameter},
		},
		{
			name: "channel keys",
			mutate: func(d *pipeline.Definition) {
				d.Nodes[0].Op = "channel"
				d.Nodes[0].Length = 4
			},
			want: []string{ErrKeysEmpty},
		},
		{
			name: "channel key shape",
			mutate: func(d *pipeline.Definition) {
				d.Nodes[0].Op = "channel"
				d.Nodes[0].Length = 4
				d.Nodes[0].Keys = [][]float64{{0, 1}, {2}}
			},
			want: []string{ErrInvalidKeyShape},
		},
		{
			name: "swap arity and sustain",
			mutate: func(d *pipeline.Definition) {
				d.Nodes[0].Op = "swap"
				d.Nodes[0].HasSustain = true
				d.Nodes[0].SustainMillis = -5
			},
			want: []string{ErrArity, ErrInvalidParameter},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			assert.Equal(t, tt.want, codes(Validate(d)))
		})
	}
}

func TestOpArity(t *testing.T) {
	n, ok := OpArity("map")
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	n, ok = OpArity("swap")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = OpArity("cycler")
	assert.False(t, ok)
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "nodes.n.op", Message: "unknown operator \"x\"", Code: ErrUnknownOp}
	assert.Equal(t, `[E201] nodes.n.op: unknown operator "x"`, err.Error())
}
