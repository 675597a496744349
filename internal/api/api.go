// Package api assembles the hook points of one API into a frozen
// configuration and exposes its three entry points: Model, Query, and
// Submit.
//
// A Builder is configured once and then built:
//
//	b := api.NewBuilder(api.WithMetrics(m))
//	b.Use(spec, provider)
//	b.Conventions(salesAPI{})
//	a, err := b.Build()
//
// Registration after Build fails with CONFIGURATION_FROZEN.
package api

import (
	"context"
	"log/slog"

	"github.com/roach88/hookpoint/internal/convention"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/metrics"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/security"
	"github.com/roach88/hookpoint/internal/submit"
)

// Installer registers hook points on a configuration. Compiled specs, view
// sets, and providers are installers.
type Installer interface {
	Install(cfg *hook.Configuration) error
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(cfg *hook.Configuration) error

// Install implements Installer.
func (f InstallerFunc) Install(cfg *hook.Configuration) error { return f(cfg) }

// Builder collects the registrations of one API.
type Builder struct {
	cfg     *hook.Configuration
	logger  *slog.Logger
	metrics *metrics.Collectors
	ids     invocation.IDGenerator

	conventions bool
	err         error
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger for build events. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithMetrics records pipeline timings and hook outcomes on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// WithIDs sets the request ID generator used by NewContext.
// Defaults to invocation.UUIDv7Generator.
func WithIDs(gen invocation.IDGenerator) Option {
	return func(b *Builder) {
		b.ids = gen
	}
}

// NewBuilder creates a builder over an empty configuration.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		cfg:    hook.NewConfiguration(),
		logger: slog.Default(),
		ids:    invocation.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Configuration returns the configuration being built, for registrations
// no installer covers.
func (b *Builder) Configuration() *hook.Configuration {
	return b.cfg
}

// Use runs each installer in order. The first error is kept and returned
// by Build; later calls are skipped.
func (b *Builder) Use(installers ...Installer) *Builder {
	for _, in := range installers {
		if b.err != nil {
			return b
		}
		b.err = in.Install(b.cfg)
	}
	return b
}

// Permissions installs a permission set.
func (b *Builder) Permissions(perms ...security.Permission) *Builder {
	return b.Use(InstallerFunc(func(cfg *hook.Configuration) error {
		return security.Install(cfg, security.NewPermissionSet(perms...))
	}))
}

// Conventions scans api for conventionally named methods and installs the
// resulting bindings together with the model-driven validators.
func (b *Builder) Conventions(api any) *Builder {
	return b.Use(InstallerFunc(func(cfg *hook.Configuration) error {
		t := convention.Scan(api)
		b.logger.Debug("conventions scanned", "bindings", t.Len(), "skipped", len(t.Skipped()))
		b.conventions = true
		return convention.Install(cfg, t)
	}))
}

// Build freezes the configuration and returns the API. The model-driven
// validators are installed when Conventions was never called, and the
// container mapper becomes the singleton mapper unless one is set.
func (b *Builder) Build() (*API, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.conventions {
		if err := convention.Install(b.cfg, nil); err != nil {
			return nil, err
		}
	}
	if _, ok := hook.GetHookPoint[model.Producer](b.cfg); !ok {
		b.logger.Warn("no model producer registered; the model will be empty")
	}

	models := model.NewHandler(b.cfg, model.WithBuildObserver(b.metrics.ModelBuilt))
	if _, ok := hook.GetHookPoint[model.Mapper](b.cfg); !ok {
		if err := hook.SetHookPoint[model.Mapper](b.cfg, model.ContainerMapper{Handler: models}); err != nil {
			return nil, err
		}
	}
	b.cfg.Freeze()

	contracts := b.cfg.Contracts()
	b.logger.Info("api built", "contracts", len(contracts))
	for _, c := range contracts {
		b.logger.Debug("contract registered", "contract", c.Contract, "singleton", c.Singleton, "multi_cast", c.MultiCast)
	}

	return &API{
		cfg:     b.cfg,
		ids:     b.ids,
		models:  models,
		queries: query.NewHandler(models, query.WithMetrics(b.metrics)),
		submits: submit.NewHandler(models, submit.WithMetrics(b.metrics)),
	}, nil
}

// API is a built, frozen API. It is safe for concurrent use.
type API struct {
	cfg     *hook.Configuration
	ids     invocation.IDGenerator
	models  *model.Handler
	queries *query.Handler
	submits *submit.Handler
}

// Configuration returns the frozen configuration.
func (a *API) Configuration() *hook.Configuration {
	return a.cfg
}

// NewContext creates an invocation context for one call.
func (a *API) NewContext(opts ...invocation.Option) *invocation.Context {
	return invocation.New(a.cfg, a.ids, opts...)
}

// Model returns the model as the caller sees it.
func (a *API) Model(ctx context.Context, ic *invocation.Context) (*model.DomainModel, error) {
	return a.models.GetDomainModel(ctx, ic)
}

// Query runs req.
func (a *API) Query(ctx context.Context, ic *invocation.Context, req query.Request) (*query.Result, error) {
	return a.queries.Query(ctx, ic, req)
}

// Submit runs cs through the submit pipeline.
func (a *API) Submit(ctx context.Context, ic *invocation.Context, cs *submit.ChangeSet) (*submit.Result, error) {
	return a.submits.Submit(ctx, submit.NewContext(ic, cs))
}

// Models returns the model handler, mainly for inspecting build attempts.
func (a *API) Models() *model.Handler {
	return a.models
}
