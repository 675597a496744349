package model

import (
	"context"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
)

// Producer creates the base model. Singleton contract.
type Producer interface {
	ProduceModel(ctx context.Context, ic *invocation.Context) (*EdmModel, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context, ic *invocation.Context) (*EdmModel, error)

// ProduceModel implements Producer.
func (f ProducerFunc) ProduceModel(ctx context.Context, ic *invocation.Context) (*EdmModel, error) {
	return f(ctx, ic)
}

// BuildContext is handed to every extender during one model build.
type BuildContext struct {
	*invocation.Context

	// Model is the model under construction. Extenders mutate it in place.
	Model *EdmModel
}

// Extender mutates the produced model. Multi-cast contract walked in
// original registration order, so later extensions build on earlier ones.
type Extender interface {
	ExtendModel(ctx context.Context, bc *BuildContext) error
}

// Mapper maps a queryable source name to the full name of its element type.
// Multi-cast contract walked in reverse order, with the singleton as the
// final fallback. The first mapper that answers wins.
type Mapper interface {
	TryGetRelevantType(ctx context.Context, ic *invocation.Context, name string) (string, bool)
}

// VisibilityFilter decides whether the caller may see a model element.
// Multi-cast contract walked in reverse order; an element is visible only
// if every filter agrees.
type VisibilityFilter interface {
	SchemaElementVisible(ic *invocation.Context, e SchemaElement) bool
	ContainerElementVisible(ic *invocation.Context, e ContainerElement) bool
}

// RelevantType asks the registered mappers for the element type of name.
func RelevantType(ctx context.Context, ic *invocation.Context, name string) (string, bool) {
	for _, m := range hook.Ordered[Mapper](ic.Configuration(), hook.Reverse) {
		if t, ok := m.TryGetRelevantType(ctx, ic, name); ok {
			return t, true
		}
	}
	return "", false
}

// ContainerMapper resolves element types from the entity sets and
// singletons of the built model. It is the default singleton mapper.
type ContainerMapper struct {
	Handler *Handler
}

// TryGetRelevantType implements Mapper.
func (m ContainerMapper) TryGetRelevantType(ctx context.Context, ic *invocation.Context, name string) (string, bool) {
	built, err := m.Handler.GetModel(ctx, ic)
	if err != nil {
		return "", false
	}
	t, ok := EntityTypeOf(built, name)
	if !ok {
		return "", false
	}
	return t.FullName(), true
}
