package model

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
)

// Handler builds the model for one configuration.
//
// Concurrent callers share a single in-flight build. A successful build is
// published once and reused for the lifetime of the handler. A failed build
// is not memoized: the next caller starts a fresh attempt, and concurrent
// retriers again share one attempt.
//
// The build runs on a context detached from any caller's cancellation, so a
// caller giving up does not abort the build the others are waiting on.
type Handler struct {
	config   *hook.Configuration
	flight   singleflight.Group
	model    atomic.Pointer[EdmModel]
	attempts atomic.Int64
	observe  func(elapsed time.Duration, err error)
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBuildObserver registers a callback invoked after every build attempt.
func WithBuildObserver(fn func(elapsed time.Duration, err error)) HandlerOption {
	return func(h *Handler) {
		h.observe = fn
	}
}

// NewHandler creates a model handler over cfg.
func NewHandler(cfg *hook.Configuration, opts ...HandlerOption) *Handler {
	h := &Handler{config: cfg}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attempts returns how many builds have been started.
func (h *Handler) Attempts() int64 {
	return h.attempts.Load()
}

// GetModel returns the built model, building it if necessary.
// The returned model is shared and must not be modified.
func (h *Handler) GetModel(ctx context.Context, ic *invocation.Context) (*EdmModel, error) {
	if m := h.model.Load(); m != nil {
		return m, nil
	}

	ch := h.flight.DoChan("model", func() (any, error) {
		if m := h.model.Load(); m != nil {
			return m, nil
		}
		m, err := h.build(context.WithoutCancel(ctx), ic)
		if err != nil {
			return nil, err
		}
		h.model.Store(m)
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*EdmModel), nil
	}
}

func (h *Handler) build(ctx context.Context, ic *invocation.Context) (m *EdmModel, err error) {
	attempt := h.attempts.Add(1)
	start := time.Now()
	defer func() {
		if h.observe != nil {
			h.observe(time.Since(start), err)
		}
	}()

	slog.Debug("model build started", "request_id", ic.ID(), "attempt", attempt)

	if p, ok := hook.GetHookPoint[Producer](h.config); ok {
		m, err = p.ProduceModel(ctx, ic)
		if err != nil {
			slog.Error("model producer failed", "request_id", ic.ID(), "attempt", attempt, "error", err)
			return nil, apierr.NewModelBuildFailed(err)
		}
	}
	if m == nil {
		m = NewEdmModel()
	}

	bc := &BuildContext{Context: ic, Model: m}
	for i, ext := range hook.Ordered[Extender](h.config, hook.Original) {
		if err := ext.ExtendModel(ctx, bc); err != nil {
			slog.Error("model extender failed", "request_id", ic.ID(), "extender", i, "error", err)
			return nil, apierr.NewModelBuildFailed(err)
		}
	}

	slog.Info("model built",
		"request_id", ic.ID(),
		"attempt", attempt,
		"schema_elements", len(bc.Model.elements),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return bc.Model, nil
}

// GetDomainModel returns the caller's visible projection of the model,
// memoized on the invocation context.
func (h *Handler) GetDomainModel(ctx context.Context, ic *invocation.Context) (*DomainModel, error) {
	if d, ok := invocation.Value[*DomainModel](ic); ok {
		return d, nil
	}
	m, err := h.GetModel(ctx, ic)
	if err != nil {
		return nil, err
	}
	return invocation.GetOrCreate(ic, func() *DomainModel {
		return NewDomainModel(ic, m)
	}), nil
}
