package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kabuki/internal/pipeline"
	"github.com/roach88/kabuki/internal/value"
)

// CompilePipeline parses a CUE value into a pipeline.Definition.
//
// The CUE value should be the pipeline struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`pipeline: rover: { ... }`)
//	def, err := CompilePipeline(v.LookupPath(cue.ParsePath("pipeline.rover")))
func CompilePipeline(v cue.Value) (*pipeline.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &pipeline.Definition{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = labels[len(labels)-1].String()
	}

	period, err := optionalInt(v, "period_ms", 0)
	if err != nil {
		return nil, err
	}
	def.PeriodMillis = period

	def.Sources, err = parseSources(v)
	if err != nil {
		return nil, err
	}

	def.Nodes, err = parseNodes(v)
	if err != nil {
		return nil, err
	}

	def.Outputs, err = parseOutputs(v)
	if err != nil {
		return nil, err
	}
	if len(def.Outputs) == 0 {
		return nil, &CompileError{
			Field:   "outputs",
			Message: "at least one output is required",
			Pos:     v.Pos(),
		}
	}

	return def, nil
}

// parseSources reads sources in declaration order.
func parseSources(v cue.Value) ([]pipeline.Source, error) {
	var sources []pipeline.Source

	sourcesVal := v.LookupPath(cue.ParsePath("sources"))
	if !sourcesVal.Exists() {
		return sources, nil
	}

	iter, err := sourcesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		sv := iter.Value()
		src := pipeline.Source{Name: iter.Label()}

		kind, err := requiredString(sv, "kind")
		if err != nil {
			return nil, err
		}
		src.Kind = pipeline.SourceKind(kind)

		switch src.Kind {
		case pipeline.SourceConstant:
			src.Value, err = optionalValue(sv, "value", value.Number(0))
		case pipeline.SourceRemote:
			src.Value, err = optionalValue(sv, "default", value.Null{})
			if err == nil {
				src.Label, err = optionalString(sv, "label", src.Name)
			}
			if err == nil {
				src.Min, err = optionalFloat(sv, "min", 0)
			}
			if err == nil {
				src.Max, err = optionalFloat(sv, "max", 1)
			}
		case pipeline.SourceCycler:
			src.Length, err = requiredFloat(sv, "length")
			if err == nil {
				src.Delta, err = optionalFloat(sv, "delta", 1)
			}
			if err == nil {
				src.Initial, err = optionalFloat(sv, "initial", 0)
			}
		}
		if err != nil {
			return nil, err
		}

		sources = append(sources, src)
	}

	return sources, nil
}

// parseNodes reads operator nodes in declaration order.
func parseNodes(v cue.Value) ([]pipeline.Node, error) {
	var nodes []pipeline.Node

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if !nodesVal.Exists() {
		return nodes, nil
	}

	iter, err := nodesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		node, err := parseNode(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

func parseNode(name string, nv cue.Value) (pipeline.Node, error) {
	node := pipeline.Node{Name: name}

	op, err := requiredString(nv, "op")
	if err != nil {
		return node, err
	}
	node.Op = op

	argsVal := nv.LookupPath(cue.ParsePath("args"))
	if argsVal.Exists() {
		list, err := argsVal.List()
		if err != nil {
			return node, formatCUEError(err)
		}
		for list.Next() {
			arg, err := parseArg(list.Value())
			if err != nil {
				return node, err
			}
			node.Args = append(node.Args, arg)
		}
	}

	if node.Constrain, err = optionalBool(nv, "constrain", true); err != nil {
		return node, err
	}
	if node.PeriodMillis, err = optionalInt(nv, "period_ms", 0); err != nil {
		return node, err
	}
	if node.Band, err = optionalFloat(nv, "band", 0); err != nil {
		return node, err
	}
	if node.Length, err = optionalFloat(nv, "length", 0); err != nil {
		return node, err
	}
	if node.Label, err = optionalString(nv, "label", name); err != nil {
		return node, err
	}

	sustain := nv.LookupPath(cue.ParsePath("sustain_ms"))
	if sustain.Exists() {
		ms, err := sustain.Int64()
		if err != nil {
			return node, formatCUEError(err)
		}
		node.SustainMillis = ms
		node.HasSustain = true
	}

	keysVal := nv.LookupPath(cue.ParsePath("keys"))
	if keysVal.Exists() {
		node.Keys, err = parseKeys(keysVal)
		if err != nil {
			return node, err
		}
	}

	return node, nil
}

// parseArg reads one operator argument:
//   - a string names a source or node
//   - a number, bool or null is a literal
//   - {lit: <value>} is a literal, used for string literals
func parseArg(v cue.Value) (pipeline.Arg, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return pipeline.Arg{}, formatCUEError(err)
		}
		return pipeline.RefArg(s), nil
	case cue.StructKind:
		lit := v.LookupPath(cue.ParsePath("lit"))
		if !lit.Exists() {
			return pipeline.Arg{}, &CompileError{
				Field:   "args",
				Message: "object arguments must have a lit field",
				Pos:     v.Pos(),
			}
		}
		lv, err := scalar(lit)
		if err != nil {
			return pipeline.Arg{}, err
		}
		return pipeline.LiteralArg(lv), nil
	default:
		lv, err := scalar(v)
		if err != nil {
			return pipeline.Arg{}, err
		}
		return pipeline.LiteralArg(lv), nil
	}
}

// parseKeys reads channel keyframes. Shape errors beyond "list of lists of
// numbers" are left to Validate so they carry an error code.
func parseKeys(v cue.Value) ([][]float64, error) {
	keys := [][]float64{}
	outer, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for outer.Next() {
		inner, err := outer.Value().List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var key []float64
		for inner.Next() {
			f, err := inner.Value().Float64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			key = append(key, f)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// parseOutputs reads the output list.
func parseOutputs(v cue.Value) ([]pipeline.Output, error) {
	var outputs []pipeline.Output

	outputsVal := v.LookupPath(cue.ParsePath("outputs"))
	if !outputsVal.Exists() {
		return outputs, nil
	}

	list, err := outputsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for list.Next() {
		ov := list.Value()
		node, err := requiredString(ov, "node")
		if err != nil {
			return nil, err
		}
		sink, err := optionalString(ov, "sink", string(pipeline.SinkLog))
		if err != nil {
			return nil, err
		}
		name, err := optionalString(ov, "name", node)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, pipeline.Output{
			Name: name,
			Node: node,
			Sink: pipeline.SinkKind(sink),
		})
	}

	return outputs, nil
}

// scalar converts a concrete CUE scalar into a Value.
func scalar(v cue.Value) (value.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return value.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Bool(b), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Number(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.String(s), nil
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredFloat(v cue.Value, field string) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return f, nil
}

func optionalFloat(v cue.Value, field string, def float64) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return f, nil
}

func optionalInt(v cue.Value, field string, def int64) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

func optionalBool(v cue.Value, field string, def bool) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalValue(v cue.Value, field string, def value.Value) (value.Value, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	return scalar(fv)
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
