// Package views declares entity sets whose rows are defined by a query over
// other sources.
//
// A view contributes three hooks: a model extender that adds its entity
// set, a mapper that reports its element type, and an expander that
// substitutes its body when the view is queried. The body is visited as a
// nested query, so it resolves against the full model and its own
// references are inspected and filtered like any other.
package views

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/queryir"
)

// View is a named query exposed as an entity set.
type View struct {
	Name string

	// EntityType is the full name of the element type of the rows.
	EntityType string

	// Body is the expression the view stands for.
	Body queryir.Expr
}

// Set is an immutable collection of views, keyed by name.
type Set struct {
	views map[string]View
	order []string
}

// NewSet validates views and collects them. Names must be unique and
// bodies must be valid expressions.
func NewSet(views ...View) (*Set, error) {
	s := &Set{views: make(map[string]View, len(views))}
	for _, v := range views {
		if v.Name == "" {
			return nil, fmt.Errorf("view with empty name")
		}
		if _, dup := s.views[v.Name]; dup {
			return nil, fmt.Errorf("duplicate view %s", v.Name)
		}
		if err := queryir.Validate(v.Body).Err(); err != nil {
			return nil, fmt.Errorf("view %s: %w", v.Name, err)
		}
		s.views[v.Name] = v
		s.order = append(s.order, v.Name)
	}
	return s, nil
}

// Get returns the view named name.
func (s *Set) Get(name string) (View, bool) {
	v, ok := s.views[name]
	return v, ok
}

// Names returns the view names in declaration order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// ExtendModel implements model.Extender. Each view becomes an entity set of
// the model's entity container.
func (s *Set) ExtendModel(_ context.Context, bc *model.BuildContext) error {
	if len(s.order) == 0 {
		return nil
	}
	c := bc.Model.Container()
	if c == nil {
		return fmt.Errorf("views: model has no entity container")
	}
	for _, name := range s.order {
		v := s.views[name]
		if _, ok := bc.Model.FindDeclaredType(v.EntityType); !ok {
			return fmt.Errorf("views: %s: unknown entity type %s", name, v.EntityType)
		}
		c.AddElement(&model.EntitySet{Name: name, EntityType: v.EntityType})
	}
	return nil
}

// TryGetRelevantType implements model.Mapper.
func (s *Set) TryGetRelevantType(_ context.Context, _ *invocation.Context, name string) (string, bool) {
	v, ok := s.views[name]
	if !ok {
		return "", false
	}
	return v.EntityType, true
}

type expander struct {
	set  *Set
	next query.Expander
}

// Chain returns an expander that substitutes view bodies and defers every
// other reference to next.
func (s *Set) Chain(next query.Expander) query.Expander {
	return expander{set: s, next: next}
}

func (e expander) Expand(ctx context.Context, ec *query.ExpressionContext) (queryir.Expr, bool, error) {
	ref := ec.ModelReference
	if v, ok := e.set.views[ref.Name]; ok && ref.Kind == query.RefEntitySet {
		slog.Debug("view expanded",
			"request_id", ec.ID(),
			"view", v.Name,
			"depth", ec.Depth,
		)
		return v.Body, true, nil
	}
	if e.next == nil {
		return nil, false, nil
	}
	return e.next.Expand(ctx, ec)
}

// Install registers the extender and mapper and chains the expander over
// any expander already registered.
func (s *Set) Install(cfg *hook.Configuration) error {
	if err := hook.AddHookPoint[model.Extender](cfg, s); err != nil {
		return err
	}
	if err := hook.AddHookPoint[model.Mapper](cfg, s); err != nil {
		return err
	}
	return hook.ChainPrevious[query.Expander](cfg, s.Chain)
}
