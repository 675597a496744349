package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/metrics"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/queryir"
)

// Request is one query.
type Request struct {
	Expr queryir.Expr

	// IncludeTotalCount also computes the number of rows the query would
	// return without its trailing paging.
	IncludeTotalCount bool

	// CountOnly skips fetching rows and returns only the total count.
	CountOnly bool
}

// Result is the outcome of a query.
type Result struct {
	Rows       []ir.IRObject
	TotalCount *int64

	// Rewritten is the expression that was executed.
	Rewritten queryir.Expr
}

// Handler runs queries against one configuration.
type Handler struct {
	models  *model.Handler
	metrics *metrics.Collectors
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records stage timings and hook outcomes on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler creates a query handler that resolves references against the
// models built by models.
func NewHandler(models *model.Handler, opts ...Option) *Handler {
	h := &Handler{models: models}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Rewrite runs the visitor over e without executing it.
func (h *Handler) Rewrite(ctx context.Context, ic *invocation.Context, e queryir.Expr) (queryir.Expr, error) {
	if err := queryir.Validate(e).Err(); err != nil {
		return nil, apierr.NewInvalidQuery(err)
	}
	domain, err := h.models.GetDomainModel(ctx, ic)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := NewVisitor(ic, domain, h.metrics).Visit(ctx, e)
	h.metrics.ObserveStage("query", "rewrite", metrics.Outcome(err, apierr.IsForbidden(err)), time.Since(start))
	return out, err
}

// Query rewrites and executes req.
func (h *Handler) Query(ctx context.Context, ic *invocation.Context, req Request) (*Result, error) {
	rewritten, err := h.Rewrite(ctx, ic, req.Expr)
	if err != nil {
		slog.Debug("query rejected", "request_id", ic.ID(), "error", err)
		return nil, err
	}

	exec, ok := hook.GetHookPoint[Executor](ic.Configuration())
	if !ok {
		return nil, apierr.NewNotImplemented("query.Executor")
	}

	res := &Result{Rewritten: rewritten}
	start := time.Now()
	if !req.CountOnly {
		rows, err := exec.ExecuteQuery(ctx, ic, rewritten)
		if err != nil {
			h.metrics.ObserveStage("query", "execute", metrics.OutcomeError, time.Since(start))
			return nil, err
		}
		res.Rows = rows
	}
	if req.IncludeTotalCount || req.CountOnly {
		countExpr, _ := queryir.StripForCount(rewritten)
		n, err := exec.ExecuteCount(ctx, ic, countExpr)
		if err != nil {
			h.metrics.ObserveStage("query", "execute", metrics.OutcomeError, time.Since(start))
			return nil, err
		}
		res.TotalCount = &n
	}
	h.metrics.ObserveStage("query", "execute", metrics.OutcomeOK, time.Since(start))

	slog.Debug("query executed",
		"request_id", ic.ID(),
		"expr", queryir.Format(rewritten),
		"rows", len(res.Rows),
	)
	return res, nil
}
