// Package pipeline defines the declarative form of a kabuki graph.
//
// A Definition is what the compiler produces from CUE and what the builder
// turns into operators and a controller. It is plain data: no graph nodes,
// no I/O.
package pipeline

import (
	"github.com/roach88/kabuki/internal/value"
)

// SourceKind selects how a leaf value is produced.
type SourceKind string

const (
	// SourceConstant is a mutable operand holding Value.
	SourceConstant SourceKind = "constant"
	// SourceRemote is a remote-control channel with Label, Min, Max.
	SourceRemote SourceKind = "remote"
	// SourceCycler is a wrapping position counter.
	SourceCycler SourceKind = "cycler"
)

// SinkKind selects where an output's value is delivered.
type SinkKind string

const (
	SinkLog     SinkKind = "log"
	SinkRecord  SinkKind = "record"
	SinkMetrics SinkKind = "metrics"
	SinkInflux  SinkKind = "influx"
)

// Definition is one compiled pipeline.
type Definition struct {
	Name         string
	PeriodMillis int64
	Sources      []Source
	Nodes        []Node
	Outputs      []Output
}

// Source is a named leaf.
type Source struct {
	Name string
	Kind SourceKind

	// constant: initial value. remote: default; Null until a client sends one.
	Value value.Value

	// remote
	Label string
	Min   float64
	Max   float64

	// cycler
	Length  float64
	Delta   float64
	Initial float64
}

// Arg is an operator argument: either a reference to a source or node by
// name, or a literal.
type Arg struct {
	Ref     string
	Literal value.Value
}

// IsRef reports whether the argument names another source or node.
func (a Arg) IsRef() bool {
	return a.Ref != ""
}

// RefArg builds a reference argument.
func RefArg(name string) Arg {
	return Arg{Ref: name}
}

// LiteralArg builds a literal argument.
func LiteralArg(v value.Value) Arg {
	return Arg{Literal: v}
}

// Node is a named operator.
type Node struct {
	Name string
	Op   string
	Args []Arg

	// map: clamp the result to the output range. The compiler sets it
	// unless the definition says constrain: false.
	Constrain bool
	// throttle
	PeriodMillis int64
	// reduce_noise
	Band float64
	// swap
	SustainMillis int64
	HasSustain    bool
	// channel
	Length float64
	Keys   [][]float64
	// debug
	Label string
}

// Output wires a node or source to a sink.
type Output struct {
	Name string
	Node string
	Sink SinkKind
}

// Lookup returns the source or node named name.
func (d *Definition) Lookup(name string) (src *Source, node *Node) {
	for i := range d.Sources {
		if d.Sources[i].Name == name {
			return &d.Sources[i], nil
		}
	}
	for i := range d.Nodes {
		if d.Nodes[i].Name == name {
			return nil, &d.Nodes[i]
		}
	}
	return nil, nil
}

// RemoteSources returns the remote sources in declaration order, which is
// also the order their channel keys are assigned in.
func (d *Definition) RemoteSources() []Source {
	var out []Source
	for _, s := range d.Sources {
		if s.Kind == SourceRemote {
			out = append(out, s)
		}
	}
	return out
}

// UsesSink reports whether any output is delivered to kind.
func (d *Definition) UsesSink(kind SinkKind) bool {
	for _, o := range d.Outputs {
		if o.Sink == kind {
			return true
		}
	}
	return false
}
