package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/beanplan/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Entities int                     `json:"entities"`
	Errors   []ValidationIssue       `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
}

// ValidationIssue is one problem with a model, with its source line when
// known.
type ValidationIssue struct {
	compiler.ValidationError
	Line int `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [model]",
		Short: "Validate entity definitions",
		Long: `Validate CUE entity definitions.

Compiles every entity, checks the entities against each other (tables, id
properties, association targets and link columns) and reports mandatory
reference cycles as warnings. All problems are reported, not just the first.

The model defaults to the model setting of the config file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := rootOpts.modelPath(args)
			if err != nil {
				return err
			}
			return runValidate(rootOpts, model, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, modelPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadModel(modelPath, LoadModeCollectAll)

	// Handle load errors (path not found, no files, CUE errors)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, modelPath)
	for _, d := range loadResult.Descriptors {
		formatter.VerboseLog("Validating entity: %s", d.Name)
	}

	var issues []ValidationIssue
	for _, err := range loadErrors {
		issues = append(issues, issueFromLoadError(err))
	}
	for _, v := range compiler.Validate(loadResult.Descriptors) {
		issues = append(issues, ValidationIssue{ValidationError: v})
	}

	result := ValidationResult{
		Valid:    len(issues) == 0,
		Entities: len(loadResult.Descriptors),
		Errors:   issues,
		Warnings: compiler.AnalyzeCycles(loadResult.Descriptors),
	}
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func issueFromLoadError(err error) ValidationIssue {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		return ValidationIssue{ValidationError: compiler.ValidationError{
			Field: "load", Message: err.Error(), Code: ErrCodeGeneric,
		}}
	}
	issue := ValidationIssue{ValidationError: compiler.ValidationError{
		Field: "load", Message: loadErr.Message, Code: loadErr.Code,
	}}
	if loadErr.Pos.IsValid() {
		issue.Line = loadErr.Pos.Line()
	}
	return issue
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	formatter.Pass("Model valid: %d entities", result.Entities)
	printCycleWarnings(formatter, result.Warnings)
	return nil
}

func printCycleWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	for _, w := range warnings {
		formatter.Warn("%s", w.Message)
	}
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation problem.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		err := formatter.Encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			},
		})
		if err != nil {
			return err
		}
		return failure
	}

	formatter.Fail("Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range result.Errors {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", issue.Code, issue.Field, issue.Message)
	}
	printCycleWarnings(formatter, result.Warnings)

	// Validation failures = exit code 1
	return failure
}
