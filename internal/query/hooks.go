// Package query rewrites caller query expressions through the registered
// hook points and executes the result on the configured provider.
//
// Every unresolved reference (a Source or a Call) in the expression is
// visited in turn:
//
//  1. Inspect: inspectors run in reverse registration order. A false result
//     or an error aborts the whole query.
//  2. Filter: filters run in reverse registration order, each wrapping the
//     reference in additional operators.
//  3. Expand: the expander may substitute the reference with another
//     expression, which is then visited as a nested query.
//  4. Source: a reference that was not expanded is resolved by the sourcer
//     into a concrete Queryable.
package query

import (
	"context"

	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
)

// ReferenceKind classifies the model element a reference denotes.
type ReferenceKind string

const (
	RefEntitySet      ReferenceKind = "EntitySet"
	RefSingleton      ReferenceKind = "Singleton"
	RefFunctionImport ReferenceKind = "FunctionImport"
)

// ModelReference identifies the model element a visited node denotes.
type ModelReference struct {
	Kind ReferenceKind
	Name string

	// ElementType is the full name of the entity type of the rows.
	ElementType string

	// Args holds function import arguments for RefFunctionImport.
	Args ir.IRObject
}

// ExpressionContext is the transient state for visiting one reference.
type ExpressionContext struct {
	*invocation.Context

	// VisitedNode is the Source or Call being visited.
	VisitedNode queryir.Expr

	// ModelReference is the element VisitedNode denotes.
	ModelReference *ModelReference

	// Embedded is true inside the nested visit of an expanded expression.
	Embedded bool

	// Depth is the nesting level, 0 for the caller's own references.
	Depth int

	afterNested []func()
}

// SetAfterNestedVisitCallback registers fn to run once the nested visit of
// this reference finishes, whether or not it succeeded. Several hooks may
// register callbacks for the same reference; they run in reverse
// registration order, each exactly once.
func (ec *ExpressionContext) SetAfterNestedVisitCallback(fn func()) {
	if fn != nil {
		ec.afterNested = append(ec.afterNested, fn)
	}
}

func (ec *ExpressionContext) fireAfterNested() {
	fns := ec.afterNested
	ec.afterNested = nil
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Inspector vets a reference before it is rewritten. Multi-cast contract
// walked in reverse order; any false or error aborts the query.
type Inspector interface {
	Inspect(ctx context.Context, ec *ExpressionContext) (bool, error)
}

// Filter wraps a reference in additional operators, typically a Where.
// Multi-cast contract walked in reverse order. The expression passed in is
// the reference wrapped by the filters that already ran; a filter returns
// it unchanged when it has nothing to add. Only the operators a filter adds
// are kept; the root it returns is ignored.
type Filter interface {
	Filter(ctx context.Context, ec *ExpressionContext, e queryir.Expr) (queryir.Expr, error)
}

// Expander substitutes a reference with another expression, such as the
// body of a view. Singleton contract composed with hook.ChainPrevious, so
// an expander that does not recognize a reference delegates to its next.
type Expander interface {
	Expand(ctx context.Context, ec *ExpressionContext) (queryir.Expr, bool, error)
}

// Sourcer resolves a reference into a provider-specific Queryable.
// Singleton contract.
type Sourcer interface {
	ReplaceQueryableSource(ctx context.Context, ec *ExpressionContext, embedded bool) (queryir.Expr, error)
}

// Executor runs a fully resolved expression. Singleton contract.
type Executor interface {
	ExecuteQuery(ctx context.Context, ic *invocation.Context, e queryir.Expr) ([]ir.IRObject, error)
	ExecuteCount(ctx context.Context, ic *invocation.Context, e queryir.Expr) (int64, error)
}
