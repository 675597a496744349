package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/hookpoint/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Golden string // directory of <scenario>.golden trace files
	Update bool   // rewrite golden files instead of comparing
	Filter string // scenario file filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run YAML scenario files through the harness. Each scenario names
its own API directory and provider.

With --golden, each trace is compared with <golden>/<name>.golden;
--update rewrites those files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, malformed scenarios)

Examples:
  hookpoint test ./scenarios
  hookpoint test ./scenarios --filter "sqlite*"
  hookpoint test ./scenarios --golden ./golden --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenario files by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return loadFailure(formatter, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scenarios directory not found: %s", dir)})
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return loadFailure(formatter, &LoadError{Code: ErrCodeGeneric, Message: err.Error()})
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr, err := runScenario(opts, file, cmd)
		if err != nil {
			return loadFailure(formatter, &LoadError{Code: ErrCodeBadRequest, Message: fmt.Sprintf("%s: %v", filepath.Base(file), err)})
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := formatter.Success(&result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

func runScenario(opts *TestOptions, file string, cmd *cobra.Command) (ScenarioResult, error) {
	s, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{}, err
	}
	res, err := harness.Run(cmd.Context(), s)
	if err != nil {
		return ScenarioResult{}, err
	}
	sr := ScenarioResult{Name: s.Name, Pass: res.Pass, Errors: res.Errors}
	if opts.Golden == "" {
		return sr, nil
	}

	snapshot, err := harness.Snapshot(s.Name, res)
	if err != nil {
		return ScenarioResult{}, err
	}
	path := filepath.Join(opts.Golden, s.Name+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return ScenarioResult{}, err
		}
		return sr, os.WriteFile(path, snapshot, 0o644)
	}
	want, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		sr.Pass = false
		sr.Errors = append(sr.Errors, "golden file missing: "+path)
	case err != nil:
		return ScenarioResult{}, err
	case !bytes.Equal(want, snapshot):
		sr.Pass = false
		sr.Errors = append(sr.Errors, "trace differs from "+path)
	}
	return sr, nil
}

func findScenarioFiles(dir, filter string) ([]string, error) {
	pattern := "*.yaml"
	if filter != "" {
		pattern = filter
		if filepath.Ext(pattern) == "" {
			pattern += ".yaml"
		}
	}
	return filepath.Glob(filepath.Join(dir, pattern))
}

// WriteText implements TextWriter.
func (r *TestResult) WriteText(w io.Writer) error {
	if r.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	return nil
}
