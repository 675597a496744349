// Package invocation carries the per-call state shared by the hooks of one
// logical operation (a model build, a query, or a submit).
//
// A Context is owned by a single call. Roles are an explicit set supplied
// when the context is created; pipelines never consult ambient identity.
package invocation

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/ir"
)

// Context is the invocation context of one call.
type Context struct {
	config *hook.Configuration
	id     string
	roles  map[string]struct{}
	bound  ir.IRObject

	mu       sync.Mutex
	asserted map[string]int
	props    map[string]any
	values   map[reflect.Type]any
}

// Option configures a Context.
type Option func(*Context)

// WithRoles sets the caller's role set.
func WithRoles(roles ...string) Option {
	return func(c *Context) {
		for _, r := range roles {
			c.roles[r] = struct{}{}
		}
	}
}

// WithID sets the request ID instead of generating one.
func WithID(id string) Option {
	return func(c *Context) {
		c.id = id
	}
}

// WithBound supplies a value for bound.<name> parameters in query predicates.
func WithBound(name string, v ir.IRValue) Option {
	return func(c *Context) {
		c.bound[name] = v
	}
}

// New creates an invocation context over a configuration. Request IDs come
// from gen unless WithID is given; a nil gen uses UUIDv7Generator.
func New(cfg *hook.Configuration, gen IDGenerator, opts ...Option) *Context {
	c := &Context{
		config: cfg,
		roles:  make(map[string]struct{}),
		bound:  make(ir.IRObject),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		if gen == nil {
			gen = UUIDv7Generator{}
		}
		c.id = gen.Generate()
	}
	return c
}

// Configuration returns the configuration this call resolves hook points from.
func (c *Context) Configuration() *hook.Configuration {
	return c.config
}

// ID returns the request ID.
func (c *Context) ID() string {
	return c.id
}

// Roles returns the caller's explicit roles, sorted.
func (c *Context) Roles() []string {
	return slices.Sorted(maps.Keys(c.roles))
}

// EffectiveRoles returns explicit plus currently asserted roles, sorted.
func (c *Context) EffectiveRoles() []string {
	set := maps.Clone(c.roles)
	c.mu.Lock()
	for r := range c.asserted {
		set[r] = struct{}{}
	}
	c.mu.Unlock()
	return slices.Sorted(maps.Keys(set))
}

// HasRole reports whether the caller holds role, either explicitly or
// through an active assertion.
func (c *Context) HasRole(role string) bool {
	if _, ok := c.roles[role]; ok {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asserted[role] > 0
}

// AssertRole grants role for the duration of a scope and returns the function
// that ends it. Assertions nest: the role stays active until every release
// has been called. Calling a release more than once has no further effect.
func (c *Context) AssertRole(role string) (release func()) {
	c.mu.Lock()
	if c.asserted == nil {
		c.asserted = make(map[string]int)
	}
	c.asserted[role]++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.asserted[role]--
			if c.asserted[role] <= 0 {
				delete(c.asserted, role)
			}
		})
	}
}

// Bound returns the value supplied for bound.<name>.
func (c *Context) Bound(name string) (ir.IRValue, bool) {
	v, ok := c.bound[name]
	return v, ok
}

// Property returns a value from the string-keyed property bag.
func (c *Context) Property(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.props[key]
	return v, ok
}

// SetProperty stores a value in the property bag, creating the bag lazily.
func (c *Context) SetProperty(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.props == nil {
		c.props = make(map[string]any)
	}
	c.props[key] = v
}

// Value returns the typed value stored for T.
func Value[T any](c *Context) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// SetValue stores a typed value keyed by T.
func SetValue[T any](c *Context, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[reflect.Type]any)
	}
	c.values[reflect.TypeFor[T]()] = v
}

// GetOrCreate returns the typed value for T, creating it with create on
// first use. create runs without the context lock held.
func GetOrCreate[T any](c *Context, create func() T) T {
	if v, ok := Value[T](c); ok {
		return v
	}
	v := create()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[reflect.Type]any)
	}
	if existing, ok := c.values[reflect.TypeFor[T]()]; ok {
		return existing.(T)
	}
	c.values[reflect.TypeFor[T]()] = v
	return v
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying ic.
func NewContext(ctx context.Context, ic *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ic)
}

// FromContext returns the invocation context carried by ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	ic, ok := ctx.Value(ctxKey{}).(*Context)
	return ic, ok
}
