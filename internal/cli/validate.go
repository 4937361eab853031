package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/attrflow/internal/compiler"
	"github.com/roach88/attrflow/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
	Counts   *TopologyCounts            `json:"counts,omitempty"`
}

// TopologyCounts summarizes a valid topology.
type TopologyCounts struct {
	Sensors   int `json:"sensors"`
	Entities  int `json:"entities"`
	Enrichers int `json:"enrichers"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <topology-dir>",
		Short: "Validate a topology",
		Long: `Validate the CUE topology in a directory.

Compiles sensors, entities and enrichers, checks every cross reference
and enricher setting, and reports enrichers that may trigger each other
in a loop. Loops are warnings: they settle when values stop changing.

Exit codes:
  0 - Topology valid (warnings allowed)
  1 - Validation errors
  2 - Command error (missing directory, no CUE files)`,
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
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, err := compiler.LoadDir(dir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	topo := loaded.Topology
	if errs := compiler.Validate(topo); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	warnings := compiler.AnalyzeCycles(topo)
	return outputValidateSuccess(formatter, topo, warnings)
}

// outputLoadError reports a topology that could not be loaded. Missing
// paths are command errors; CUE that loads but does not compile is a
// validation failure.
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *compiler.LoadError
	if !errors.As(err, &loadErr) {
		_ = formatter.Error(compiler.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load topology", err)
	}

	switch loadErr.Code {
	case compiler.ErrCodeNotFound, compiler.ErrCodeScanError, compiler.ErrCodeNoFiles:
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
	}

	line := 0
	if loadErr.Pos.IsValid() {
		line = loadErr.Pos.Line()
	}
	return outputValidationErrors(formatter, []compiler.ValidationError{{
		Field:   "load",
		Message: loadErr.Message,
		Code:    loadErr.Code,
		Line:    line,
	}})
}

func outputValidateSuccess(formatter *OutputFormatter, topo *ir.Topology, warnings []compiler.CycleWarning) error {
	counts := &TopologyCounts{
		Sensors:   len(topo.Sensors),
		Entities:  len(topo.Entities),
		Enrichers: len(topo.Enrichers),
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings, Counts: counts})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Topology valid: %d sensors, %d entities, %d enrichers\n",
		counts.Sensors, counts.Entities, counts.Enrichers)
	for _, warning := range warnings {
		fmt.Fprintf(w, "⚠ %s\n", warning.Message)
	}
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.Encode(response); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(w, "line %d\n", err.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exitErr
}
