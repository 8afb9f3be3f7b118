package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pipekit/internal/compiler"
	"github.com/roach88/pipekit/internal/ir"
)

// ErrCodeWriteFailed is reported when the compiled IR cannot be written.
const ErrCodeWriteFailed = "E007"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
	Strict bool   // binding warnings fail compilation
}

// CompilationResult holds the compiled components and pipelines.
type CompilationResult struct {
	IRVersion  string             `json:"ir_version"`
	Components []ir.ComponentSpec `json:"components"`
	Pipelines  []ir.PipelineSpec  `json:"pipelines"`
}

// compileOutput is the JSON payload of a successful compile.
type compileOutput struct {
	*CompilationResult
	Warnings []compiler.ValidationError `json:"warnings,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE specs to IR",
		Long: `Compile CUE component and pipeline declarations to IR.

The compiler loads the CUE package in the directory, compiles every
component and pipeline block, and validates the result: schema errors,
dangling task references, cycles, bad custom paths and binding
diagnostics. Binding warnings only fail compilation with --strict
(default from PIPEKIT_STRICT).

With -o the IR is written as YAML, or as JSON when the file ends in .json.

Examples:
  pipekit compile ./specs
  pipekit compile ./specs -o pipelines.yaml
  pipekit compile ./specs --strict --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (.yaml, .yml or .json)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat binding warnings as errors")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
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
	for _, c := range loadResult.Components {
		formatter.VerboseLog("Compiled component: %s", c.Name)
	}
	for _, p := range loadResult.Pipelines {
		formatter.VerboseLog("Compiled pipeline: %s", p.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadDiagnostics(loadErrors))
	}

	failing, warnings := splitDiagnostics(compiler.Validate(loadResult.Components, loadResult.Pipelines), strict)
	if len(failing) > 0 {
		return outputCompileErrors(formatter, failing)
	}

	result := &CompilationResult{
		IRVersion:  ir.IRVersion,
		Components: loadResult.Components,
		Pipelines:  loadResult.Pipelines,
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			message := fmt.Sprintf("writing output file: %v", err)
			_ = formatter.Error(ErrCodeWriteFailed, message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", ErrCodeWriteFailed, message))
		}
	}

	return outputCompileSuccess(formatter, result, warnings, opts.Output)
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, warnings []compiler.ValidationError, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(compileOutput{CompilationResult: result, Warnings: warnings})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d component(s), %d pipeline(s)\n\n", len(result.Components), len(result.Pipelines))

	if len(result.Components) > 0 {
		fmt.Fprintln(w, "Components:")
		for _, c := range result.Components {
			fmt.Fprintf(w, "  %s%s\n", c.Name, componentSignature(c))
		}
		fmt.Fprintln(w)
	}

	if len(result.Pipelines) > 0 {
		fmt.Fprintln(w, "Pipelines:")
		for _, p := range result.Pipelines {
			fmt.Fprintf(w, "  %s: %d task(s)", p.Name, len(p.Tasks))
			if p.ExitHandler != nil {
				fmt.Fprintf(w, ", exit handler %s", p.ExitHandler.ID)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	printWarnings(formatter, warnings)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote IR to %s\n", outputFile)
	}
	return nil
}

// outputCompileErrors reports diagnostics that stopped compilation.
// Compilation errors are command-level errors (exit code 2).
func outputCompileErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		if err := encodeDiagnostics(formatter, errs); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	printDiagnostics(formatter, errs)

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// componentSignature renders "(name kind:type, ...) returns".
func componentSignature(c ir.ComponentSpec) string {
	params := make([]string, len(c.Params))
	for i, p := range c.Params {
		if p.IsArtifact() {
			params[i] = fmt.Sprintf("%s %s artifact", p.Name, p.Kind)
			continue
		}
		params[i] = p.Name + " " + p.Type
	}
	sig := "(" + strings.Join(params, ", ") + ")"
	if c.Returns != "" {
		sig += " " + c.Returns
	}
	return sig
}

// writeIRToFile writes the compilation result as YAML, or as indented JSON
// when the file name ends in .json. The YAML document is derived from the
// JSON encoding so argument bindings and literal values look the same in
// both.
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	if !strings.EqualFold(filepath.Ext(filename), ".json") {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("converting IR: %w", err)
		}
		data, err = yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshaling IR as YAML: %w", err)
		}
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
