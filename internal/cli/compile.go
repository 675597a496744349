package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hookpoint/internal/compiler"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/security"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	Output string
}

// CompilationResult summarises a compiled API.
type CompilationResult struct {
	Version     string                `json:"version"`
	Namespace   string                `json:"namespace"`
	EntityTypes []string              `json:"entity_types"`
	EntitySets  map[string]string     `json:"entity_sets"`
	Singletons  map[string]string     `json:"singletons,omitempty"`
	Operations  []string              `json:"operations,omitempty"`
	Views       []ViewSummary         `json:"views,omitempty"`
	Permissions []security.Permission `json:"permissions,omitempty"`
}

// ViewSummary is one compiled view.
type ViewSummary struct {
	Name       string   `json:"name"`
	EntityType string   `json:"entity_type"`
	Body       string   `json:"body"`
	Assert     []string `json:"assert,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{}

	cmd := &cobra.Command{
		Use:   "compile [api-dir]",
		Short: "Compile and validate a CUE API",
		Long: `Compile the CUE API package and check its cross references.

Reports every validation error found. With --output the compiled summary
is also written to a JSON file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.API
			if len(args) == 1 {
				dir = args[0]
			}
			return runCompile(rootOpts, opts, dir, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled summary to a JSON file")
	return cmd
}

func runCompile(rootOpts *RootOptions, opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)

	spec, errs := LoadAPI(dir)
	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	result := summarize(spec)
	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			return loadFailure(formatter, &LoadError{Code: ErrCodeGeneric, Message: err.Error()})
		}
	}
	return formatter.Success(result)
}

func summarize(spec *compiler.APISpec) *CompilationResult {
	res := &CompilationResult{
		Version:     ir.FormatVersion,
		Namespace:   spec.Namespace,
		EntityTypes: []string{},
		EntitySets:  map[string]string{},
		Permissions: spec.Permissions,
	}
	for _, et := range spec.EntityTypes {
		res.EntityTypes = append(res.EntityTypes, et.FullName())
	}
	for _, s := range spec.EntitySets {
		res.EntitySets[s.Name] = s.EntityType
	}
	if len(spec.Singletons) > 0 {
		res.Singletons = map[string]string{}
		for _, s := range spec.Singletons {
			res.Singletons[s.Name] = s.EntityType
		}
	}
	for _, op := range spec.Operations {
		res.Operations = append(res.Operations, op.FullName())
	}
	for _, v := range spec.Views {
		res.Views = append(res.Views, ViewSummary{
			Name:       v.Name,
			EntityType: v.EntityType,
			Body:       queryir.Format(v.Body()),
			Assert:     v.Assert,
		})
	}
	return res
}

// WriteText implements TextWriter.
func (r *CompilationResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "✓ Compiled %s: %d entity type(s), %d entity set(s), %d view(s), %d permission(s)\n",
		r.Namespace, len(r.EntityTypes), len(r.EntitySets), len(r.Views), len(r.Permissions))
	for _, v := range r.Views {
		fmt.Fprintf(w, "  view %s: %s\n", v.Name, v.Body)
	}
	return nil
}

// outputCompileErrors reports every error and returns a command error.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := errorCode(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}
		if err := json.NewEncoder(formatter.Writer).Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := errorCode(err)
		if le, ok := err.(*LoadError); ok && le.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

func writeResultToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
