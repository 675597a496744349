package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hookpoint/internal/compiler"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/submit"
)

// Provider names accepted by Scenario.Provider.
const (
	ProviderMemory = "memory"
	ProviderSQLite = "sqlite"
)

// Scenario is a conformance scenario: an API, the rows it starts with, and
// the steps run against it.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// API is the directory of the CUE package describing the API.
	// Relative paths resolve against the scenario file.
	API string `yaml:"api"`

	// Provider is "memory" (the default) or "sqlite".
	Provider string `yaml:"provider,omitempty"`

	// Seed holds the initial rows of each entity set.
	Seed map[string][]map[string]any `yaml:"seed,omitempty"`

	// Steps run in order against one API instance.
	Steps []Step `yaml:"steps"`
}

// Step is one call made against the API. Exactly one of Query and Submit
// is set.
type Step struct {
	Name string `yaml:"name"`

	// Roles are the caller's roles.
	Roles []string `yaml:"roles,omitempty"`

	// Bound are values queries may refer to as bound.<name>.
	Bound map[string]any `yaml:"bound,omitempty"`

	Query  *QueryStep  `yaml:"query,omitempty"`
	Submit []EntryStep `yaml:"submit,omitempty"`

	Expect Expect `yaml:"expect,omitempty"`
}

// Kind returns "query" or "submit".
func (s *Step) Kind() string {
	if s.Query != nil {
		return "query"
	}
	return "submit"
}

// QueryStep describes a query over one entity set or view. The where clause
// uses the same forms as a view's where in CUE.
type QueryStep struct {
	From      string         `yaml:"from"`
	Where     map[string]any `yaml:"where,omitempty"`
	OrderBy   []string       `yaml:"order_by,omitempty"`
	Skip      *int64         `yaml:"skip,omitempty"`
	Take      *int64         `yaml:"take,omitempty"`
	Select    []string       `yaml:"select,omitempty"`
	Count     bool           `yaml:"count,omitempty"`
	CountOnly bool           `yaml:"count_only,omitempty"`
}

// Expr builds the query expression. Operators apply in the order
// where, order_by, skip, take, select.
func (q *QueryStep) Expr() (queryir.Expr, error) {
	var e queryir.Expr = &queryir.Source{Name: q.From}
	pred, err := compiler.ParseWhere(q.Where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	if pred != nil {
		e = &queryir.Where{Input: e, Pred: pred}
	}
	if len(q.OrderBy) > 0 {
		keys := make([]queryir.SortKey, len(q.OrderBy))
		for i, k := range q.OrderBy {
			sk, err := compiler.ParseSortKey(k)
			if err != nil {
				return nil, fmt.Errorf("order_by[%d]: %w", i, err)
			}
			keys[i] = sk
		}
		e = &queryir.OrderBy{Input: e, Keys: keys}
	}
	b := queryir.Over(e)
	if q.Skip != nil {
		b = b.Skip(*q.Skip)
	}
	if q.Take != nil {
		b = b.Take(*q.Take)
	}
	if len(q.Select) > 0 {
		b = b.Select(q.Select...)
	}
	return b.Expr(), nil
}

// EntryStep is one change set entry. Exactly one of Insert, Update, Delete,
// and Action is set; it names the entity set or action.
type EntryStep struct {
	Insert string `yaml:"insert,omitempty"`
	Update string `yaml:"update,omitempty"`
	Delete string `yaml:"delete,omitempty"`
	Action string `yaml:"action,omitempty"`

	Key    map[string]any `yaml:"key,omitempty"`
	Values map[string]any `yaml:"values,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	// ETag, when set, must match the stored resource.
	ETag string `yaml:"etag,omitempty"`

	// Replace makes an update a full replacement.
	Replace bool `yaml:"replace,omitempty"`
}

// Entry converts the step into a change set entry.
func (s *EntryStep) Entry() (submit.Entry, error) {
	if s.Action != "" {
		args, err := ir.ObjectFromNative(orEmpty(s.Args))
		if err != nil {
			return nil, fmt.Errorf("args: %w", err)
		}
		return &submit.ActionInvocationEntry{ActionName: s.Action, Arguments: args}, nil
	}

	e := &submit.DataModificationEntry{ETag: s.ETag, IsFullReplace: s.Replace}
	switch {
	case s.Insert != "":
		e.EntitySet, e.Operation = s.Insert, submit.OpInsert
	case s.Update != "":
		e.EntitySet, e.Operation = s.Update, submit.OpUpdate
	default:
		e.EntitySet, e.Operation = s.Delete, submit.OpDelete
	}
	if s.Key != nil {
		key, err := ir.ObjectFromNative(s.Key)
		if err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		e.Key = key
	}
	values, err := ir.ObjectFromNative(orEmpty(s.Values))
	if err != nil {
		return nil, fmt.Errorf("values: %w", err)
	}
	e.LocalValues = values
	return e, nil
}

func (s *EntryStep) targets() int {
	n := 0
	for _, t := range []string{s.Insert, s.Update, s.Delete, s.Action} {
		if t != "" {
			n++
		}
	}
	return n
}

// Expect lists what a step must produce. Unset fields are not checked.
type Expect struct {
	// Error is the expected API error code, such as FORBIDDEN.
	Error string `yaml:"error,omitempty"`

	// Rows are matched in order; each listed field must equal the row's.
	Rows []map[string]any `yaml:"rows,omitempty"`

	Count    *int64 `yaml:"count,omitempty"`
	Executed *bool  `yaml:"executed,omitempty"`

	// Entries are matched against the written resources (or the action
	// result under "result") of a submit, in entry order.
	Entries []map[string]any `yaml:"entries,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and the API directory is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if s.API != "" && !filepath.IsAbs(s.API) {
		s.API = filepath.Join(filepath.Dir(path), s.API)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadScenarios loads every *.yaml file in dir, in name order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if s.API == "" {
		return errors.New("api is required")
	}
	if info, err := os.Stat(s.API); err != nil || !info.IsDir() {
		return fmt.Errorf("api directory not found: %s", s.API)
	}
	switch s.Provider {
	case "", ProviderMemory, ProviderSQLite:
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Query == nil && len(step.Submit) == 0 {
			return fmt.Errorf("steps[%d]: query or submit is required", i)
		}
		if step.Query != nil && len(step.Submit) > 0 {
			return fmt.Errorf("steps[%d]: query and submit are mutually exclusive", i)
		}
		if step.Query != nil && step.Query.From == "" {
			return fmt.Errorf("steps[%d].query: from is required", i)
		}
		for j, e := range step.Submit {
			if e.targets() != 1 {
				return fmt.Errorf("steps[%d].submit[%d]: exactly one of insert, update, delete, action is required", i, j)
			}
		}
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
