package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/beanplan/internal/compiler"
	"github.com/roach88/beanplan/internal/meta"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled entity descriptors.
type CompilationResult struct {
	Entities []*meta.Descriptor `json:"entities"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	EntityCount       int
	TotalProperties   int
	TotalAssociations int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [model]",
		Short: "Compile CUE entity definitions to descriptors",
		Long: `Compile CUE entity definitions to the descriptors the planner reads.

Every entity is compiled and checked; all errors are reported. With --output
the descriptors are written as JSON.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := rootOpts.modelPath(args)
			if err != nil {
				return err
			}
			return runCompile(opts, model, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, modelPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// Use shared loader with collect-all mode
	loadResult, loadErrors := LoadModel(modelPath, LoadModeCollectAll)

	// Handle load errors (path not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, modelPath)
	for _, d := range loadResult.Descriptors {
		formatter.VerboseLog("Compiling entity: %s", d.Name)
	}

	// Cross-entity checks only make sense once every entity compiled
	if len(loadErrors) == 0 {
		for _, v := range compiler.Validate(loadResult.Descriptors) {
			loadErrors = append(loadErrors, &LoadError{Code: v.Code, Message: fmt.Sprintf("%s: %s", v.Field, v.Message)})
		}
	}
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{Entities: loadResult.Descriptors}
	stats := calculateStats(result)

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeDescriptorsToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{EntityCount: len(result.Entities)}
	for _, d := range result.Entities {
		stats.TotalProperties += len(d.Props)
		stats.TotalAssociations += len(d.Assocs)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	formatter.Pass("Compiled %d entities (%d properties, %d associations)",
		stats.EntityCount, stats.TotalProperties, stats.TotalAssociations)
	fmt.Fprintln(formatter.Writer)

	for _, d := range result.Entities {
		table := d.Table
		if d.Embeddable {
			table = "embeddable"
		}
		fmt.Fprintf(formatter.Writer, "  %s (%s): %d properties, %d associations\n",
			d.Name, table, len(d.Props), len(d.Assocs))
		for _, a := range d.Assocs {
			fmt.Fprintf(formatter.Writer, "    %s: %s → %s\n", a.Name, a.Kind, a.Target)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote descriptors to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	failure := NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		err := formatter.Encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		})
		if err != nil {
			return err
		}
		return failure
	}

	formatter.Fail("Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return failure
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field, ErrCodeGeneric), compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeDescriptorsToFile writes the compiled descriptors as indented JSON.
func writeDescriptorsToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling descriptors: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
