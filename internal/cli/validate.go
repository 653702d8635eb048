package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kabuki/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool               `json:"valid"`
	Files     int                `json:"files"`
	Pipelines []string           `json:"pipelines"`
	Errors    []compiler.Problem `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pipeline-dir>",
		Short: "Validate pipeline definitions",
		Long: `Validate the CUE pipeline definitions in a directory.

Compiles every pipeline, checks operator names, argument counts,
references, parameters and reference cycles, and reports every
problem found. Nothing is built or run.

Exit codes:
  0 - All pipelines valid
  1 - One or more pipelines have problems
  2 - Command error (missing directory, CUE syntax error, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, err := compiler.CompileDir(dir)
	if err != nil {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, compiler.ErrCodeGeneric, err.Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", len(result.Files), dir)
	names := make([]string, 0, len(result.Definitions))
	for _, def := range result.Definitions {
		formatter.VerboseLog("Validated pipeline: %s (%d sources, %d nodes, %d outputs)",
			def.Name, len(def.Sources), len(def.Nodes), len(def.Outputs))
		names = append(names, def.Name)
	}

	if !result.OK() {
		return outputValidationErrors(formatter, result, names)
	}
	return outputValidateSuccess(formatter, result, names)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result *compiler.Result, names []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:     true,
			Files:     len(result.Files),
			Pipelines: names,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d pipeline(s) valid\n", len(names))
	return nil
}

// outputValidateError outputs a load error. Load errors are command errors.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every pipeline problem.
func outputValidationErrors(formatter *OutputFormatter, result *compiler.Result, names []string) error {
	problems := result.Problems
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:     false,
				Files:     len(result.Files),
				Pipelines: names,
				Errors:    problems,
			},
			Error: &CLIError{
				Code:    problems[0].Code,
				Message: problems[0].Message,
			},
		}
		if err := formatter.Respond(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, p := range problems {
		if p.Field != "" {
			fmt.Fprintf(formatter.Writer, "%s (%s)\n", p.Pipeline, p.Field)
		} else {
			fmt.Fprintln(formatter.Writer, p.Pipeline)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", p.Code, p.Message)
	}
	return failure
}
