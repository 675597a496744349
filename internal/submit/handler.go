package submit

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/metrics"
	"github.com/roach88/hookpoint/internal/model"
)

// Handler runs change sets for one configuration.
type Handler struct {
	models  *model.Handler
	metrics *metrics.Collectors
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records stage timings and entry outcomes on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler creates a submit handler.
func NewHandler(models *model.Handler, opts ...Option) *Handler {
	h := &Handler{models: models}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Submit runs sc's change set through every stage. On success the
// returned result carries the executed change set; on failure the error
// is returned and the context is left in StateFaulted.
func (h *Handler) Submit(ctx context.Context, sc *Context) (res *Result, err error) {
	defer func() {
		outcome := metrics.Outcome(err, apierr.IsForbidden(err))
		if cs := sc.ChangeSet(); cs != nil {
			for _, e := range cs.Entries {
				if e != nil {
					h.metrics.EntrySubmitted(e.Kind(), outcome)
				}
			}
		}
		if err != nil {
			failed := sc.state
			sc.enter(StateFaulted)
			slog.Info("submit failed",
				"request_id", sc.ID(),
				"state", string(failed),
				"error", err,
			)
		}
	}()

	if sc.ChangeSet() == nil {
		return nil, &apierr.Error{Code: apierr.CodeInvalidEntry, Message: "nil change set"}
	}

	stages := []struct {
		state State
		run   func(context.Context, *Context) error
	}{
		{StateValidating, h.validate},
		{StateAuthorizing, h.authorize},
		{StatePreparing, h.prepare},
		{StateFilteringBefore, h.filterBefore},
		{StateExecuting, h.execute},
		{StateFilteringAfter, h.filterAfter},
	}
	for _, st := range stages {
		sc.enter(st.state)
		start := time.Now()
		err := st.run(ctx, sc)
		h.metrics.ObserveStage("submit", string(st.state), metrics.Outcome(err, apierr.IsForbidden(err)), time.Since(start))
		if err != nil {
			return nil, err
		}
	}
	sc.enter(StateCompleted)
	slog.Debug("submit completed",
		"request_id", sc.ID(),
		"entries", len(sc.ChangeSet().Entries),
	)
	return sc.Result(), nil
}

// validate resolves every entry against the visible model, then runs the
// validators and reports every error found.
func (h *Handler) validate(ctx context.Context, sc *Context) error {
	m, err := h.models.GetModel(ctx, sc.Context)
	if err != nil {
		return err
	}
	sc.Model = m
	domain, err := h.models.GetDomainModel(ctx, sc.Context)
	if err != nil {
		return err
	}
	for _, e := range sc.ChangeSet().Entries {
		if err := resolveEntry(domain, e); err != nil {
			return err
		}
	}

	var results ValidationResults
	validators := hook.Ordered[Validator](sc.Configuration(), hook.Reverse)
	for _, e := range sc.ChangeSet().Entries {
		for _, v := range validators {
			if err := v.ValidateEntry(ctx, sc, e, &results); err != nil {
				return err
			}
		}
	}
	return results.Error()
}

func resolveEntry(domain *model.DomainModel, e Entry) error {
	c := domain.EntityContainer()
	switch v := e.(type) {
	case *DataModificationEntry:
		switch v.Operation {
		case OpInsert, OpUpdate, OpDelete:
		default:
			return apierr.NewInvalidEntry(string(v.Operation))
		}
		if c == nil {
			return apierr.NewNotFound(v.EntitySet, "entity set not found")
		}
		// Visibility only; the element type always comes from the full model.
		if _, ok := c.FindEntitySet(v.EntitySet); !ok {
			if _, ok := c.FindSingleton(v.EntitySet); !ok {
				return apierr.NewNotFound(v.EntitySet, "entity set not found")
			}
		}
		et, ok := model.EntityTypeOf(domain.Inner(), v.EntitySet)
		if !ok {
			return apierr.NewNotFound(v.EntitySet, "entity type not found")
		}
		v.EntityType = et
	case *ActionInvocationEntry:
		if c == nil {
			return apierr.NewNotFound(v.ActionName, "action not found")
		}
		for _, imp := range c.FindOperationImports(v.ActionName) {
			if imp.IsAction {
				return nil
			}
		}
		return apierr.NewNotFound(v.ActionName, "action not found")
	case nil:
		return apierr.NewInvalidEntry("nil")
	default:
		return apierr.NewInvalidEntry(e.Kind())
	}
	return nil
}

func (h *Handler) authorize(ctx context.Context, sc *Context) error {
	authorizers := hook.Ordered[Authorizer](sc.Configuration(), hook.Reverse)
	for _, e := range sc.ChangeSet().Entries {
		for _, a := range authorizers {
			ok, err := a.AuthorizeEntry(ctx, sc, e)
			if err != nil {
				h.metrics.HookInvoked("submit.Authorizer", metrics.OutcomeError)
				return err
			}
			if !ok {
				h.metrics.HookInvoked("submit.Authorizer", metrics.OutcomeDenied)
				return apierr.NewForbidden(Target(e), e.Kind()+" denied")
			}
			h.metrics.HookInvoked("submit.Authorizer", metrics.OutcomeOK)
		}
	}
	return nil
}

func (h *Handler) prepare(ctx context.Context, sc *Context) error {
	init, ok := hook.GetHookPoint[Initializer](sc.Configuration())
	if !ok {
		return apierr.NewNotImplemented("submit.Initializer")
	}
	return init.InitializeChangeSet(ctx, sc)
}

func (h *Handler) filterBefore(ctx context.Context, sc *Context) error {
	filters := hook.Ordered[Filter](sc.Configuration(), hook.Reverse)
	for _, e := range sc.ChangeSet().Entries {
		for _, f := range filters {
			if err := f.OnExecutingEntry(ctx, sc, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) execute(ctx context.Context, sc *Context) error {
	exec, ok := hook.GetHookPoint[Executor](sc.Configuration())
	if !ok {
		return apierr.NewNotImplemented("submit.Executor")
	}
	res, err := exec.ExecuteSubmit(ctx, sc)
	if err != nil {
		return err
	}
	if res == nil {
		res = &Result{ChangeSet: sc.ChangeSet()}
	}
	sc.result = res
	return res.Err
}

func (h *Handler) filterAfter(ctx context.Context, sc *Context) error {
	filters := hook.Ordered[Filter](sc.Configuration(), hook.Original)
	for _, e := range sc.ChangeSet().Entries {
		for _, f := range filters {
			if err := f.OnExecutedEntry(ctx, sc, e); err != nil {
				return err
			}
		}
	}
	return nil
}
