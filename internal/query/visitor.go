package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/metrics"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/queryir"
)

// maxDepth bounds nested expansion. Views that expand into each other are
// rejected at compile time; this catches hand-registered expanders.
const maxDepth = 16

// Visitor rewrites one caller expression. A Visitor is single-use and owned
// by one call.
type Visitor struct {
	ic      *invocation.Context
	domain  *model.DomainModel
	metrics *metrics.Collectors
}

// NewVisitor creates a visitor resolving top-level references against the
// caller's domain model.
func NewVisitor(ic *invocation.Context, domain *model.DomainModel, m *metrics.Collectors) *Visitor {
	return &Visitor{ic: ic, domain: domain, metrics: m}
}

// Visit rewrites e until its root is a concrete Queryable.
func (v *Visitor) Visit(ctx context.Context, e queryir.Expr) (queryir.Expr, error) {
	return v.visit(ctx, e, 0)
}

func (v *Visitor) visit(ctx context.Context, e queryir.Expr, depth int) (queryir.Expr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := queryir.Root(e)
	switch root.(type) {
	case *queryir.Queryable:
		return e, nil
	case *queryir.Source, *queryir.Call:
	default:
		return nil, apierr.NewInvalidQuery(fmt.Errorf("unexpected root %T", root))
	}
	if depth > maxDepth {
		return nil, apierr.NewInvalidQuery(fmt.Errorf("expansion deeper than %d levels", maxDepth))
	}

	resolved, err := v.visitReference(ctx, root, depth)
	if err != nil {
		return nil, err
	}
	return queryir.ReplaceRoot(e, resolved), nil
}

func (v *Visitor) visitReference(ctx context.Context, node queryir.Expr, depth int) (queryir.Expr, error) {
	embedded := depth > 0
	ref, err := v.resolve(ctx, node, embedded)
	if err != nil {
		return nil, err
	}
	ec := &ExpressionContext{
		Context:        v.ic,
		VisitedNode:    node,
		ModelReference: ref,
		Embedded:       embedded,
		Depth:          depth,
	}
	defer ec.fireAfterNested()

	slog.Debug("query reference visited",
		"request_id", v.ic.ID(),
		"name", ref.Name,
		"kind", ref.Kind,
		"depth", depth,
	)

	if err := v.inspect(ctx, ec); err != nil {
		return nil, err
	}

	filtered, err := v.filter(ctx, ec, node)
	if err != nil {
		return nil, err
	}

	cfg := v.ic.Configuration()
	if exp, ok := hook.GetHookPoint[Expander](cfg); ok {
		body, expanded, err := exp.Expand(ctx, ec)
		if err != nil {
			return nil, err
		}
		if expanded {
			inner, err := v.visit(ctx, body, depth+1)
			if err != nil {
				return nil, err
			}
			return queryir.Compose(filtered, inner), nil
		}
	}

	src, ok := hook.GetHookPoint[Sourcer](cfg)
	if !ok {
		return nil, apierr.NewNotImplemented("query.Sourcer")
	}
	inner, err := src.ReplaceQueryableSource(ctx, ec, embedded)
	if err != nil {
		return nil, err
	}
	if _, ok := queryir.Root(inner).(*queryir.Queryable); !ok {
		return nil, fmt.Errorf("sourcer returned unresolved root for %s", ref.Name)
	}
	return queryir.Compose(filtered, inner), nil
}

func (v *Visitor) inspect(ctx context.Context, ec *ExpressionContext) error {
	for _, in := range hook.Ordered[Inspector](v.ic.Configuration(), hook.Reverse) {
		ok, err := in.Inspect(ctx, ec)
		if err != nil {
			v.metrics.HookInvoked("query.Inspector", metrics.OutcomeError)
			return err
		}
		if !ok {
			v.metrics.HookInvoked("query.Inspector", metrics.OutcomeDenied)
			slog.Info("query reference denied",
				"request_id", v.ic.ID(),
				"name", ec.ModelReference.Name,
			)
			return apierr.NewForbidden(ec.ModelReference.Name, "query inspection denied")
		}
		v.metrics.HookInvoked("query.Inspector", metrics.OutcomeOK)
	}
	return nil
}

func (v *Visitor) filter(ctx context.Context, ec *ExpressionContext, node queryir.Expr) (queryir.Expr, error) {
	e := node
	for _, f := range hook.Ordered[Filter](v.ic.Configuration(), hook.Reverse) {
		out, err := f.Filter(ctx, ec, e)
		if err != nil {
			return nil, err
		}
		if out != nil {
			e = out
		}
	}
	return e, nil
}

// resolve maps a reference to its model element. Caller references resolve
// against the visible domain model, so hidden elements are not found;
// references inside an expansion resolve against the full model.
func (v *Visitor) resolve(ctx context.Context, node queryir.Expr, embedded bool) (*ModelReference, error) {
	var m model.Model = v.domain
	if embedded {
		m = v.domain.Inner()
	}
	c := m.EntityContainer()

	var ref *ModelReference
	switch n := node.(type) {
	case *queryir.Source:
		if c != nil {
			if s, ok := c.FindEntitySet(n.Name); ok {
				ref = &ModelReference{Kind: RefEntitySet, Name: n.Name, ElementType: s.EntityType}
			} else if s, ok := c.FindSingleton(n.Name); ok {
				ref = &ModelReference{Kind: RefSingleton, Name: n.Name, ElementType: s.EntityType}
			}
		}
	case *queryir.Call:
		if c != nil {
			r, err := resolveCall(m, c, n)
			if err != nil {
				return nil, err
			}
			ref = r
		}
	}
	if ref == nil {
		return nil, apierr.NewNotFound(nameOf(node), "no such entity set, singleton, or function import")
	}
	if t, ok := model.RelevantType(ctx, v.ic, ref.Name); ok {
		ref.ElementType = t
	}
	return ref, nil
}

func resolveCall(m model.Model, c model.Container, call *queryir.Call) (*ModelReference, error) {
	for _, imp := range c.FindOperationImports(call.Name) {
		if imp.IsAction {
			continue
		}
		for _, op := range m.FindDeclaredOperations(imp.Operation) {
			if !op.Composable {
				return nil, apierr.NewInvalidQuery(fmt.Errorf("function %s is not composable", call.Name))
			}
			return &ModelReference{
				Kind:        RefFunctionImport,
				Name:        call.Name,
				ElementType: op.ReturnType,
				Args:        call.Args,
			}, nil
		}
	}
	return nil, nil
}

func nameOf(node queryir.Expr) string {
	switch n := node.(type) {
	case *queryir.Source:
		return n.Name
	case *queryir.Call:
		return n.Name
	}
	return ""
}
