package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/harness"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/queryir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	Where     string
	OrderBy   []string
	Skip      int64
	Take      int64
	Select    []string
	Count     bool
	CountOnly bool
	Bound     map[string]string
}

// QueryOutput is the result of one query.
type QueryOutput struct {
	Expr  string        `json:"expr"`
	Rows  []ir.IRObject `json:"rows,omitempty"`
	Count *int64        `json:"count,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <entity-set>",
		Short: "Query an entity set or view",
		Long: `Run a query through the API's query pipeline as a caller holding
the --role roles.

--where takes a YAML or JSON object using the same forms as a view's
where clause, for example '{Status: open, Amount: {ge: 100}}'.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Where, "where", "", "filter as a YAML object")
	cmd.Flags().StringSliceVar(&opts.OrderBy, "order-by", nil, `sort key, "Field" or "Field desc" (repeatable)`)
	cmd.Flags().Int64Var(&opts.Skip, "skip", -1, "rows to skip")
	cmd.Flags().Int64Var(&opts.Take, "take", -1, "maximum rows to return")
	cmd.Flags().StringSliceVar(&opts.Select, "select", nil, "properties to return")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "include the total count")
	cmd.Flags().BoolVar(&opts.CountOnly, "count-only", false, "return only the total count")
	cmd.Flags().StringToStringVar(&opts.Bound, "bound", nil, "bound value, name=value")

	return cmd
}

// step converts the flags into a harness query step.
func (o *QueryOptions) step(from string) (*harness.QueryStep, error) {
	q := &harness.QueryStep{
		From:      from,
		OrderBy:   o.OrderBy,
		Select:    o.Select,
		Count:     o.Count,
		CountOnly: o.CountOnly,
	}
	if o.Where != "" {
		if err := yaml.Unmarshal([]byte(o.Where), &q.Where); err != nil {
			return nil, fmt.Errorf("--where: %w", err)
		}
	}
	if o.Skip >= 0 {
		q.Skip = &o.Skip
	}
	if o.Take >= 0 {
		q.Take = &o.Take
	}
	return q, nil
}

// boundOptions parses each bound value as a YAML scalar, so numbers and
// booleans keep their kind.
func boundOptions(bound map[string]string) ([]invocation.Option, error) {
	var opts []invocation.Option
	for _, name := range slices.Sorted(maps.Keys(bound)) {
		var raw any
		if err := yaml.Unmarshal([]byte(bound[name]), &raw); err != nil {
			return nil, fmt.Errorf("--bound %s: %w", name, err)
		}
		v, err := ir.FromNative(raw)
		if err != nil {
			return nil, fmt.Errorf("--bound %s: %w", name, err)
		}
		opts = append(opts, invocation.WithBound(name, v))
	}
	return opts, nil
}

func runQuery(rootOpts *RootOptions, opts *QueryOptions, from string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)
	ctx := cmd.Context()

	step, err := opts.step(from)
	if err != nil {
		return loadFailure(formatter, &LoadError{Code: ErrCodeBadRequest, Message: err.Error()})
	}
	expr, err := step.Expr()
	if err != nil {
		return loadFailure(formatter, &LoadError{Code: ErrCodeBadRequest, Message: err.Error()})
	}
	icOpts, err := boundOptions(opts.Bound)
	if err != nil {
		return loadFailure(formatter, &LoadError{Code: ErrCodeBadRequest, Message: err.Error()})
	}

	s, err := openSession(ctx, rootOpts)
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer s.close()

	ic := s.api.NewContext(append(icOpts, invocation.WithRoles(rootOpts.Roles...))...)
	res, err := s.api.Query(ctx, ic, query.Request{
		Expr:              expr,
		IncludeTotalCount: opts.Count,
		CountOnly:         opts.CountOnly,
	})
	if err != nil {
		return apiFailure(formatter, err)
	}
	return formatter.Success(&QueryOutput{
		Expr:  queryir.Format(res.Rewritten),
		Rows:  res.Rows,
		Count: res.TotalCount,
	})
}

// WriteText implements TextWriter. Rows are printed one per line as
// canonical JSON.
func (q *QueryOutput) WriteText(w io.Writer) error {
	for _, row := range q.Rows {
		b, err := ir.MarshalCanonical(row)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	}
	if q.Count != nil {
		fmt.Fprintf(w, "count: %d\n", *q.Count)
	}
	return nil
}

// apiFailure reports an error returned by the API and returns ExitFailure.
func apiFailure(f *OutputFormatter, err error) error {
	code := string(apierr.CodeOf(err))
	if code == "" {
		code = ErrCodeGeneric
	}
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, code, err)
}
