// Package compiler turns CUE pipeline declarations into pipeline.Definition
// values and checks them before anything is built.
//
// Compilation happens in three passes:
//
//  1. CompilePipeline reads the CUE structure (shape and types, with source
//     positions in errors)
//  2. Validate checks names, references, operators and parameters (E2xx codes)
//  3. AnalyzeCycles rejects reference cycles; the graph must be a DAG
//
// CompileDir runs all three over every pipeline in a directory.
package compiler
