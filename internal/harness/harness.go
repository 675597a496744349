package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/roach88/hookpoint/internal/api"
	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/compiler"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/querymem"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/store"
	"github.com/roach88/hookpoint/internal/submit"
	"github.com/roach88/hookpoint/internal/testutil"
)

type options struct {
	logger *slog.Logger
	driver string
}

// Option configures Run.
type Option func(*options)

// WithLogger sets the logger handed to the API and the store. Runs are
// silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSQLiteDriver selects the database/sql driver used by sqlite
// scenarios: "sqlite" (the default) or "sqlite3".
func WithSQLiteDriver(driver string) Option {
	return func(o *options) {
		o.driver = driver
	}
}

// Harness holds the API under test for one scenario run.
type Harness struct {
	api      *api.API
	executor *countingExecutor
	logger   *slog.Logger
	close    func() error
}

// countingExecutor decorates the provider's submit executor so steps can
// tell whether a submit got as far as execution.
type countingExecutor struct {
	next  submit.Executor
	calls atomic.Int64
}

func (c *countingExecutor) ExecuteSubmit(ctx context.Context, sc *submit.Context) (*submit.Result, error) {
	c.calls.Add(1)
	if c.next == nil {
		return nil, apierr.NewNotImplemented("submit.Executor")
	}
	return c.next.ExecuteSubmit(ctx, sc)
}

// observed is what one step produced.
type observed struct {
	err      error
	expr     queryir.Expr
	rows     []ir.IRObject
	count    *int64
	executed *bool
	entries  []submit.Entry
}

// Run executes a scenario against a freshly built API and returns the
// result. An error means the scenario could not be run at all; failed
// expectations are reported on the result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		driver: "sqlite",
	}
	for _, opt := range opts {
		opt(&o)
	}

	h, err := newHarness(ctx, s, o)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i := range s.Steps {
		step := &s.Steps[i]
		obs, err := h.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
		result.AddTrace(traceEvent(i+1, step, obs))
		for _, msg := range checkExpect(step, obs) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i+1, step.Name, msg))
		}
	}
	h.logger.Debug("scenario finished",
		"scenario", s.Name,
		"steps", len(s.Steps),
		"pass", result.Pass,
	)
	return result, nil
}

func newHarness(ctx context.Context, s *Scenario, o options) (*Harness, error) {
	spec, err := compiler.LoadDir(s.API)
	if err != nil {
		return nil, fmt.Errorf("failed to load API: %w", err)
	}
	if err := compiler.Check(spec); err != nil {
		return nil, fmt.Errorf("invalid API: %w", err)
	}

	provider, closeFn, err := openProvider(ctx, s, o, spec.Model())
	if err != nil {
		return nil, err
	}

	b := api.NewBuilder(
		api.WithLogger(o.logger),
		api.WithIDs(testutil.NewSequenceIDs(s.Name)),
	)
	b.Use(spec, provider)

	counter := &countingExecutor{}
	b.Use(api.InstallerFunc(func(cfg *hook.Configuration) error {
		return hook.ChainPrevious[submit.Executor](cfg, func(next submit.Executor) submit.Executor {
			counter.next = next
			return counter
		})
	}))

	a, err := b.Build()
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("failed to build API: %w", err)
	}
	return &Harness{api: a, executor: counter, logger: o.logger, close: closeFn}, nil
}

// openProvider creates the scenario's provider, defines every set of m on
// it, and loads the seed rows in set name order.
func openProvider(ctx context.Context, s *Scenario, o options, m model.Model) (api.Installer, func() error, error) {
	seed := make(map[string][]ir.IRObject, len(s.Seed))
	for set, rows := range s.Seed {
		objs := make([]ir.IRObject, len(rows))
		for i, row := range rows {
			obj, err := ir.ObjectFromNative(row)
			if err != nil {
				return nil, nil, fmt.Errorf("seed %s[%d]: %w", set, i, err)
			}
			objs[i] = obj
		}
		seed[set] = objs
	}
	sets := slices.Sorted(maps.Keys(seed))

	if s.Provider == ProviderSQLite {
		st, err := store.Open(o.driver, ":memory:", store.WithLogger(o.logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
		st.DefineModel(m)
		for _, set := range sets {
			if err := st.Load(ctx, set, seed[set]...); err != nil {
				st.Close()
				return nil, nil, fmt.Errorf("seed %s: %w", set, err)
			}
		}
		return st, st.Close, nil
	}

	p := querymem.New()
	p.DefineModel(m)
	for _, set := range sets {
		if err := p.Load(set, seed[set]...); err != nil {
			return nil, nil, fmt.Errorf("seed %s: %w", set, err)
		}
	}
	return p, func() error { return nil }, nil
}

func (h *Harness) context(step *Step) (*invocation.Context, error) {
	opts := []invocation.Option{invocation.WithRoles(step.Roles...)}
	for _, name := range slices.Sorted(maps.Keys(step.Bound)) {
		v, err := ir.FromNative(step.Bound[name])
		if err != nil {
			return nil, fmt.Errorf("bound %s: %w", name, err)
		}
		opts = append(opts, invocation.WithBound(name, v))
	}
	return h.api.NewContext(opts...), nil
}

// runStep makes the step's call. Call errors are observations; the
// returned error is reserved for steps that cannot be built.
func (h *Harness) runStep(ctx context.Context, step *Step) (observed, error) {
	var obs observed
	ic, err := h.context(step)
	if err != nil {
		return obs, err
	}

	if step.Query != nil {
		expr, err := step.Query.Expr()
		if err != nil {
			return obs, err
		}
		res, err := h.api.Query(ctx, ic, query.Request{
			Expr:              expr,
			IncludeTotalCount: step.Query.Count,
			CountOnly:         step.Query.CountOnly,
		})
		if err != nil {
			obs.err = err
			return obs, nil
		}
		obs.expr = res.Rewritten
		obs.rows = res.Rows
		obs.count = res.TotalCount
		h.logger.Debug("query step",
			"request_id", ic.ID(),
			"expr", queryir.Format(res.Rewritten),
			"rows", len(res.Rows),
		)
		return obs, nil
	}

	entries := make([]submit.Entry, len(step.Submit))
	for i := range step.Submit {
		e, err := step.Submit[i].Entry()
		if err != nil {
			return obs, fmt.Errorf("submit[%d]: %w", i, err)
		}
		entries[i] = e
	}
	before := h.executor.calls.Load()
	_, err = h.api.Submit(ctx, ic, submit.NewChangeSet(entries...))
	executed := h.executor.calls.Load() > before
	obs.executed = &executed
	if err != nil {
		obs.err = err
		return obs, nil
	}
	obs.entries = entries
	return obs, nil
}
