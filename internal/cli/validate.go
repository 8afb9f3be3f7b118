package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pipekit/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.ValidationError `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate specs without writing IR",
		Long: `Validate CUE component and pipeline declarations without writing output.

Reports every compile error, schema error and binding diagnostic found.
Binding warnings (W13x) are listed but only fail validation with --strict
(default from PIPEKIT_STRICT).

Exit codes:
  0 - Specs are valid
  1 - Validation found errors
  2 - Command error (directory missing, CUE does not load)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat binding warnings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	strict, err := resolveStrict(cmd, opts.Strict)
	if err != nil {
		return err
	}

	loadResult, loadErrors := compiler.LoadSpecs(specsDir, compiler.LoadModeCollectAll)
	if loadResult == nil {
		code, message := loadErrorParts(loadErrors[0])
		_ = formatter.Error(code, message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	// Blocks that failed to compile are missing from the result, so
	// cross-reference checks would only add noise.
	if len(loadErrors) > 0 {
		return outputValidationErrors(formatter, ValidationResult{Errors: loadDiagnostics(loadErrors)})
	}

	failing, warnings := splitDiagnostics(compiler.Validate(loadResult.Components, loadResult.Pipelines), strict)
	if len(failing) > 0 {
		return outputValidationErrors(formatter, ValidationResult{Errors: failing, Warnings: warnings})
	}

	return outputValidateSuccess(formatter, ValidationResult{Valid: true, Warnings: warnings})
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ All specs valid")
	if len(result.Warnings) > 0 {
		fmt.Fprintln(formatter.Writer)
		printWarnings(formatter, result.Warnings)
	}
	return nil
}

// outputValidationErrors reports a failed validation (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	printDiagnostics(formatter, errs)
	printWarnings(formatter, result.Warnings)

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// loadErrorParts returns the code and message of a load error.
func loadErrorParts(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return compiler.LoadCodeGeneric, err.Error()
}

// loadDiagnostics converts load errors to validation errors so compile and
// validate report both the same way.
func loadDiagnostics(errs []error) []compiler.ValidationError {
	out := make([]compiler.ValidationError, 0, len(errs))
	for _, err := range errs {
		var loadErr *compiler.LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, compiler.ValidationError{Field: "load", Message: err.Error(), Code: compiler.LoadCodeGeneric})
			continue
		}
		d := compiler.ValidationError{Field: loadErr.Block, Message: loadErr.Message, Code: loadErr.Code}
		if d.Field == "" {
			d.Field = "load"
		}
		if loadErr.Pos.IsValid() {
			d.Line = loadErr.Pos.Line()
		}
		out = append(out, d)
	}
	return out
}

// splitDiagnostics separates the diagnostics that fail from the warnings
// that are only reported.
func splitDiagnostics(diags []compiler.ValidationError, strict bool) (failing, warnings []compiler.ValidationError) {
	failing = compiler.Failing(diags, strict)
	if strict {
		return failing, nil
	}
	for _, d := range diags {
		if d.IsWarning() {
			warnings = append(warnings, d)
		}
	}
	return failing, warnings
}

func printDiagnostics(formatter *OutputFormatter, errs []compiler.ValidationError) {
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", e.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
}

func printWarnings(formatter *OutputFormatter, warnings []compiler.ValidationError) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(formatter.Writer, "Warnings (%d):\n", len(warnings))
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", w.Code, w.Field, w.Message)
	}
	fmt.Fprintln(formatter.Writer)
}

// encodeDiagnostics writes an error response listing every diagnostic.
func encodeDiagnostics(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	response := CLIResponse{
		Status: "error",
		Error: &CLIError{
			Code:    errs[0].Code,
			Message: errs[0].Message,
		},
		Data: errs,
	}
	encoder := json.NewEncoder(formatter.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}
