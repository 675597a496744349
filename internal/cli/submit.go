package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/hookpoint/internal/harness"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/submit"
)

// ChangeSetFile is the YAML form of a change set:
//
//	entries:
//	  - insert: Customers
//	    values: {Name: Northwind}
//	  - update: Customers
//	    key: {Id: 1}
//	    etag: 'W/"..."'
//	    values: {Region: west}
//	  - action: Ship
//	    args: {OrderId: 4}
type ChangeSetFile struct {
	Entries []harness.EntryStep `yaml:"entries"`
}

// SubmitOutput lists the executed entries.
type SubmitOutput struct {
	Entries []ir.IRObject `json:"entries"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <changeset.yaml>",
		Short: "Submit a change set",
		Long: `Run a change set through the API's submit pipeline as a caller
holding the --role roles. Entries run in file order.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(rootOpts, args[0], cmd)
		},
	}
}

// LoadChangeSet reads a change set file.
func LoadChangeSet(path string) (*submit.ChangeSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read change set: %w", err)
	}
	var f ChangeSetFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse change set: %w", err)
	}
	if len(f.Entries) == 0 {
		return nil, fmt.Errorf("change set has no entries")
	}
	entries := make([]submit.Entry, len(f.Entries))
	for i := range f.Entries {
		e, err := f.Entries[i].Entry()
		if err != nil {
			return nil, fmt.Errorf("entries[%d]: %w", i, err)
		}
		entries[i] = e
	}
	return submit.NewChangeSet(entries...), nil
}

func runSubmit(rootOpts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)
	ctx := cmd.Context()

	cs, err := LoadChangeSet(path)
	if err != nil {
		return loadFailure(formatter, &LoadError{Code: ErrCodeBadRequest, Message: err.Error()})
	}

	s, err := openSession(ctx, rootOpts)
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer s.close()

	ic := s.api.NewContext(invocation.WithRoles(rootOpts.Roles...))
	res, err := s.api.Submit(ctx, ic, cs)
	if err != nil {
		return apiFailure(formatter, err)
	}

	out := &SubmitOutput{Entries: []ir.IRObject{}}
	for _, e := range res.ChangeSet.Entries {
		out.Entries = append(out.Entries, describeEntry(e))
	}
	return formatter.Success(out)
}

func describeEntry(e submit.Entry) ir.IRObject {
	out := ir.IRObject{
		"kind":   ir.IRString(e.Kind()),
		"target": ir.IRString(submit.Target(e)),
	}
	switch v := e.(type) {
	case *submit.DataModificationEntry:
		out["key"] = v.Key
		out["resource"] = v.Resource
	case *submit.ActionInvocationEntry:
		out["result"] = v.Result
	}
	return out
}

// WriteText implements TextWriter.
func (s *SubmitOutput) WriteText(w io.Writer) error {
	for _, e := range s.Entries {
		b, err := ir.MarshalCanonical(e)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	}
	return nil
}
