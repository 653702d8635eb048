package compiler

import (
	"fmt"

	"github.com/roach88/kabuki/internal/graph"
	"github.com/roach88/kabuki/internal/pipeline"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidPipeline   = "E200" // bad pipeline-level setting
	ErrUnknownOp         = "E201" // unknown or non-declarable operator
	ErrUnknownReference  = "E202" // argument or output names nothing
	ErrArity             = "E203" // wrong argument count for operator
	ErrKeysEmpty         = "E204" // channel without keyframes
	ErrInvalidKeyShape   = "E205" // keyframe is not an (x, y) pair
	ErrDuplicateName     = "E206" // name used by two sources/nodes/outputs
	ErrUnknownSink       = "E207" // unknown sink kind
	ErrUnknownSourceKind = "E208" // unknown source kind
	ErrInvalidParameter  = "E209" // out-of-range operator or source parameter
	ErrReferenceCycle    = "E210" // nodes reference each other in a cycle
)

// ValidationError represents a pipeline validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// nodeArity is the argument count of operators with dedicated constructors.
var nodeArity = map[graph.Kind]int{
	graph.KindThrottle:    1,
	graph.KindReduceNoise: 1,
	graph.KindSwap:        3,
	graph.KindChannel:     1,
	graph.KindDebug:       1,
}

// OpArity returns the argument count of a declarable operator.
func OpArity(op string) (int, bool) {
	k, ok := graph.ParseKind(op)
	if !ok {
		return 0, false
	}
	if k.Stateless() {
		return k.Arity(), true
	}
	n, ok := nodeArity[k]
	return n, ok
}

// Validate checks a compiled pipeline. Returns all errors found (does not
// fail-fast). Reference cycles are reported separately by AnalyzeCycles.
func Validate(def *pipeline.Definition) []ValidationError {
	var errs []ValidationError

	// E200: period must not be negative
	if def.PeriodMillis < 0 {
		errs = append(errs, ValidationError{
			Field:   "period_ms",
			Message: fmt.Sprintf("period must be >= 0, got %d", def.PeriodMillis),
			Code:    ErrInvalidPipeline,
		})
	}

	names := make(map[string]bool)

	for _, src := range def.Sources {
		field := "sources." + src.Name

		// E206: duplicate name
		if names[src.Name] {
			errs = append(errs, duplicate(field, src.Name))
		}
		names[src.Name] = true

		switch src.Kind {
		case pipeline.SourceConstant:
		case pipeline.SourceRemote:
			// E209: inverted range
			if src.Min > src.Max {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("min %v is greater than max %v", src.Min, src.Max),
					Code:    ErrInvalidParameter,
				})
			}
		case pipeline.SourceCycler:
			// E209: cycler needs a positive length
			if src.Length <= 0 {
				errs = append(errs, ValidationError{
					Field:   field + ".length",
					Message: fmt.Sprintf("length must be > 0, got %v", src.Length),
					Code:    ErrInvalidParameter,
				})
			}
		default:
			// E208: unknown source kind
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("unknown source kind %q, must be \"constant\", \"remote\" or \"cycler\"", src.Kind),
				Code:    ErrUnknownSourceKind,
			})
		}
	}

	for _, node := range def.Nodes {
		if names[node.Name] {
			errs = append(errs, duplicate("nodes."+node.Name, node.Name))
		}
		names[node.Name] = true
	}

	for _, node := range def.Nodes {
		errs = append(errs, validateNode(node, names)...)
	}

	outputNames := make(map[string]bool)
	for i, out := range def.Outputs {
		field := fmt.Sprintf("outputs[%d]", i)

		// E202: output must name a source or node
		if !names[out.Node] {
			errs = append(errs, ValidationError{
				Field:   field + ".node",
				Message: fmt.Sprintf("unknown reference %q", out.Node),
				Code:    ErrUnknownReference,
			})
		}

		// E207: unknown sink
		switch out.Sink {
		case pipeline.SinkLog, pipeline.SinkRecord, pipeline.SinkMetrics, pipeline.SinkInflux:
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".sink",
				Message: fmt.Sprintf("unknown sink %q, must be \"log\", \"record\", \"metrics\" or \"influx\"", out.Sink),
				Code:    ErrUnknownSink,
			})
		}

		// E206: output names identify deliveries in traces
		if outputNames[out.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate output name: %q", out.Name),
				Code:    ErrDuplicateName,
			})
		}
		outputNames[out.Name] = true
	}

	return errs
}

func validateNode(node pipeline.Node, names map[string]bool) []ValidationError {
	var errs []ValidationError
	field := "nodes." + node.Name

	// E201: operator must exist and be declarable as a node
	arity, ok := OpArity(node.Op)
	if !ok {
		return append(errs, ValidationError{
			Field:   field + ".op",
			Message: fmt.Sprintf("unknown operator %q", node.Op),
			Code:    ErrUnknownOp,
		})
	}

	// E203: argument count
	if len(node.Args) != arity {
		errs = append(errs, ValidationError{
			Field:   field + ".args",
			Message: fmt.Sprintf("%s takes %d arguments, got %d", node.Op, arity, len(node.Args)),
			Code:    ErrArity,
		})
	}

	// E202: references must resolve
	for i, arg := range node.Args {
		if arg.IsRef() && !names[arg.Ref] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.args[%d]", field, i),
				Message: fmt.Sprintf("unknown reference %q", arg.Ref),
				Code:    ErrUnknownReference,
			})
		}
	}

	kind, _ := graph.ParseKind(node.Op)
	switch kind {
	case graph.KindThrottle:
		if node.PeriodMillis <= 0 {
			errs = append(errs, parameter(field+".period_ms", "period must be > 0, got %d", node.PeriodMillis))
		}
	case graph.KindReduceNoise:
		if node.Band < 0 {
			errs = append(errs, parameter(field+".band", "band must be >= 0, got %v", node.Band))
		}
	case graph.KindSwap:
		if node.HasSustain && node.SustainMillis < 0 {
			errs = append(errs, parameter(field+".sustain_ms", "sustain must be >= 0, got %d", node.SustainMillis))
		}
	case graph.KindChannel:
		if node.Length <= 0 {
			errs = append(errs, parameter(field+".length", "length must be > 0, got %v", node.Length))
		}
		// E204: keyframes required
		if len(node.Keys) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".keys",
				Message: "channel requires at least one keyframe",
				Code:    ErrKeysEmpty,
			})
		}
		// E205: each keyframe is (x, y)
		for i, key := range node.Keys {
			if len(key) != 2 {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.keys[%d]", field, i),
					Message: fmt.Sprintf("keyframe must be an [x, y] pair, got %d values", len(key)),
					Code:    ErrInvalidKeyShape,
				})
			}
		}
	}

	return errs
}

func duplicate(field, name string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("duplicate name: %q", name),
		Code:    ErrDuplicateName,
	}
}

func parameter(field, format string, args ...any) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    ErrInvalidParameter,
	}
}
