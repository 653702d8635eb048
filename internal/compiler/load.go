package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kabuki/internal/pipeline"
)

// Load error codes (E001-E099), shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeCompile     = "E007" // Pipeline structure error
)

// LoadError represents an error that occurred while loading a directory.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Problem is one reason a pipeline cannot be built.
type Problem struct {
	Pipeline string `json:"pipeline"`
	Code     string `json:"code"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

func (p Problem) Error() string {
	if p.Field != "" {
		return fmt.Sprintf("%s: [%s] %s: %s", p.Pipeline, p.Code, p.Field, p.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", p.Pipeline, p.Code, p.Message)
}

// Result is the outcome of compiling a pipeline directory.
type Result struct {
	Definitions []pipeline.Definition
	Files       []string
	Problems    []Problem
}

// OK reports whether every pipeline compiled and validated.
func (r *Result) OK() bool {
	return len(r.Problems) == 0
}

// Err joins the problems into one error, or returns nil.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.Problems))
	for i, p := range r.Problems {
		errs[i] = p
	}
	return errors.Join(errs...)
}

// Find returns the named definition.
func (r *Result) Find(name string) (*pipeline.Definition, bool) {
	for i := range r.Definitions {
		if r.Definitions[i].Name == name {
			return &r.Definitions[i], true
		}
	}
	return nil, false
}

// CompileDir loads every .cue file in dir as one CUE instance and compiles,
// validates and cycle-checks each entry under "pipeline:".
//
// The returned error is a *LoadError for problems reading the directory.
// Problems inside individual pipelines are collected in Result.Problems and
// only pipelines without problems are included in Result.Definitions.
func CompileDir(dir string) (*Result, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("pipeline directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing pipeline directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	root := ctx.BuildInstance(inst)
	if err := root.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	result, err := CompileValue(root)
	if err != nil {
		return nil, err
	}
	result.Files = files
	return result, nil
}

// CompileValue compiles every pipeline under the "pipeline:" field of root.
func CompileValue(root cue.Value) (*Result, error) {
	pipelinesVal := root.LookupPath(cue.ParsePath("pipeline"))
	if !pipelinesVal.Exists() {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: "no pipelines found: expected a top-level pipeline field"}
	}

	iter, err := pipelinesVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating pipelines: %v", err)}
	}

	result := &Result{}
	for iter.Next() {
		name := iter.Label()
		problems := checkPipeline(name, iter.Value(), result)
		result.Problems = append(result.Problems, problems...)
	}

	if len(result.Definitions) == 0 && len(result.Problems) == 0 {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: "no pipelines found"}
	}
	return result, nil
}

func checkPipeline(name string, v cue.Value, result *Result) []Problem {
	def, err := CompilePipeline(v)
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) {
			return []Problem{{Pipeline: name, Code: ErrCodeCompile, Field: ce.Field, Message: err.Error()}}
		}
		return []Problem{{Pipeline: name, Code: ErrCodeCompile, Message: err.Error()}}
	}

	var problems []Problem
	for _, ve := range Validate(def) {
		problems = append(problems, Problem{Pipeline: name, Code: ve.Code, Field: ve.Field, Message: ve.Message})
	}
	for _, ce := range AnalyzeCycles(def) {
		problems = append(problems, Problem{Pipeline: name, Code: ErrReferenceCycle, Message: ce.Message})
	}
	if len(problems) == 0 {
		result.Definitions = append(result.Definitions, *def)
	}
	return problems
}

// Load compiles dir and returns the named pipeline. An empty name selects
// the only pipeline in the directory.
func Load(dir, name string) (*pipeline.Definition, error) {
	result, err := CompileDir(dir)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		if len(result.Definitions) != 1 {
			return nil, fmt.Errorf("%s defines %d pipelines, choose one by name", dir, len(result.Definitions))
		}
		return &result.Definitions[0], nil
	}
	def, ok := result.Find(name)
	if !ok {
		return nil, fmt.Errorf("pipeline %q not found in %s", name, dir)
	}
	return def, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
