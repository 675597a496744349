package compiler

import (
	"context"
	"slices"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/security"
	"github.com/roach88/hookpoint/internal/views"
)

// APISpec is a compiled API declaration.
type APISpec struct {
	Namespace string
	Container string

	EntityTypes []*model.EntityType
	EntitySets  []*model.EntitySet
	Singletons  []*model.Singleton
	Operations  []*model.Operation
	Imports     []*model.OperationImport

	Permissions []security.Permission
	Requires    []security.RequireRole
	Views       []ViewSpec
}

// ViewSpec declares a view over an entity set, singleton, or other view.
type ViewSpec struct {
	Name string
	From string

	// EntityType is the full name of the element type. When the spec
	// leaves it out it is inherited from From.
	EntityType string

	Where   queryir.Predicate
	OrderBy []queryir.SortKey
	Skip    *int64
	Take    *int64

	// Assert lists roles asserted while the view body is visited.
	Assert []string
}

// Body returns the query expression the view stands for.
func (v ViewSpec) Body() queryir.Expr {
	var e queryir.Expr = &queryir.Source{Name: v.From}
	if v.Where != nil {
		e = &queryir.Where{Input: e, Pred: v.Where}
	}
	if len(v.OrderBy) > 0 {
		e = &queryir.OrderBy{Input: e, Keys: slices.Clone(v.OrderBy)}
	}
	if v.Skip != nil {
		e = &queryir.Skip{Input: e, N: *v.Skip}
	}
	if v.Take != nil {
		e = &queryir.Take{Input: e, N: *v.Take}
	}
	return e
}

// sourceType returns the element type of a set, singleton, or view name.
func (s *APISpec) sourceType(name string) (string, bool) {
	for _, es := range s.EntitySets {
		if es.Name == name {
			return es.EntityType, true
		}
	}
	for _, sg := range s.Singletons {
		if sg.Name == name {
			return sg.EntityType, true
		}
	}
	for _, v := range s.Views {
		if v.Name == name && v.EntityType != "" {
			return v.EntityType, true
		}
	}
	return "", false
}

// resolveViewTypes qualifies declared view types and inherits the rest from
// their sources. Views over views resolve in as many passes as needed;
// whatever stays unresolved is reported by Validate.
func (s *APISpec) resolveViewTypes() {
	for i := range s.Views {
		s.Views[i].EntityType = qualifyName(s.Namespace, s.Views[i].EntityType)
	}
	for changed := true; changed; {
		changed = false
		for i := range s.Views {
			if s.Views[i].EntityType != "" {
				continue
			}
			if t, ok := s.sourceType(s.Views[i].From); ok {
				s.Views[i].EntityType = t
				changed = true
			}
		}
	}
}

// Model builds a fresh model from the spec. Views are not part of it; the
// view set's extender adds them during a model build.
func (s *APISpec) Model() *model.EdmModel {
	m := model.NewEdmModel()
	for _, et := range s.EntityTypes {
		cp := *et
		cp.Key = slices.Clone(et.Key)
		cp.Properties = slices.Clone(et.Properties)
		m.AddElement(&cp)
	}
	for _, op := range s.Operations {
		cp := *op
		cp.Parameters = slices.Clone(op.Parameters)
		m.AddElement(&cp)
	}
	c := m.EnsureContainer(s.Namespace, s.Container)
	for _, es := range s.EntitySets {
		c.AddElement(&model.EntitySet{Name: es.Name, EntityType: es.EntityType})
	}
	for _, sg := range s.Singletons {
		c.AddElement(&model.Singleton{Name: sg.Name, EntityType: sg.EntityType})
	}
	for _, imp := range s.Imports {
		cp := *imp
		c.AddElement(&cp)
	}
	return m
}

// Producer returns a model producer over the spec.
func (s *APISpec) Producer() model.Producer {
	return model.ProducerFunc(func(context.Context, *invocation.Context) (*model.EdmModel, error) {
		return s.Model(), nil
	})
}

// PermissionSet returns the spec's grants and denies.
func (s *APISpec) PermissionSet() *security.PermissionSet {
	return security.NewPermissionSet(s.Permissions...)
}

// ViewSet returns the spec's views.
func (s *APISpec) ViewSet() (*views.Set, error) {
	vs := make([]views.View, len(s.Views))
	for i, v := range s.Views {
		vs[i] = views.View{Name: v.Name, EntityType: v.EntityType, Body: v.Body()}
	}
	return views.NewSet(vs...)
}

// AssertPolicies returns one policy per view that asserts roles.
func (s *APISpec) AssertPolicies() []security.AssertPolicy {
	var out []security.AssertPolicy
	for _, v := range s.Views {
		if len(v.Assert) > 0 {
			out = append(out, security.AssertPolicy{Target: v.Name, Roles: v.Assert})
		}
	}
	return out
}

// Install registers the spec's producer, views, permissions, and policies
// on cfg. Views are installed before assert policies so that the policies
// wrap the view expander.
func (s *APISpec) Install(cfg *hook.Configuration) error {
	if err := hook.SetHookPoint[model.Producer](cfg, s.Producer()); err != nil {
		return err
	}
	if len(s.Views) > 0 {
		vs, err := s.ViewSet()
		if err != nil {
			return err
		}
		if err := vs.Install(cfg); err != nil {
			return err
		}
	}
	if err := security.Install(cfg, s.PermissionSet()); err != nil {
		return err
	}
	if err := security.InstallAssertPolicies(cfg, s.AssertPolicies()...); err != nil {
		return err
	}
	for _, r := range s.Requires {
		if err := hook.AddHookPoint[query.Inspector](cfg, r); err != nil {
			return err
		}
	}
	return nil
}
