package convention

import (
	"context"
	"fmt"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/submit"
)

func entrySlot(e submit.Entry) (slot, ir.IRObject, bool) {
	switch v := e.(type) {
	case *submit.DataModificationEntry:
		var verb Verb
		switch v.Operation {
		case submit.OpInsert:
			verb = VerbInsert
		case submit.OpUpdate:
			verb = VerbUpdate
		case submit.OpDelete:
			verb = VerbDelete
		default:
			return slot{}, nil, false
		}
		res := v.Resource
		if res == nil {
			res = v.LocalValues
		}
		return slot{verb: verb, target: v.EntitySet}, res, true
	case *submit.ActionInvocationEntry:
		return slot{verb: VerbExecute, target: v.ActionName}, v.Arguments, true
	}
	return slot{}, nil, false
}

// Authorizer adapts Can* methods. Entries without a bound method are
// allowed.
type Authorizer struct{ table *Table }

// Authorizer returns the table's submit authorizer.
func (t *Table) Authorizer() Authorizer { return Authorizer{table: t} }

// AuthorizeEntry implements submit.Authorizer.
func (a Authorizer) AuthorizeEntry(ctx context.Context, sc *submit.Context, e submit.Entry) (bool, error) {
	key, _, ok := entrySlot(e)
	if !ok {
		return true, nil
	}
	fn, ok := a.table.can[key]
	if !ok {
		return true, nil
	}
	return fn(invocation.NewContext(ctx, sc.Context))
}

// Filter adapts On*ing and On*ed methods. Entries without a bound method
// pass through.
type Filter struct{ table *Table }

// Filter returns the table's submit filter.
func (t *Table) Filter() Filter { return Filter{table: t} }

// OnExecutingEntry implements submit.Filter.
func (f Filter) OnExecutingEntry(ctx context.Context, sc *submit.Context, e submit.Entry) error {
	return f.run(ctx, sc, e, f.table.before)
}

// OnExecutedEntry implements submit.Filter.
func (f Filter) OnExecutedEntry(ctx context.Context, sc *submit.Context, e submit.Entry) error {
	return f.run(ctx, sc, e, f.table.after)
}

func (f Filter) run(ctx context.Context, sc *submit.Context, e submit.Entry, fns map[slot]EntryFunc) error {
	key, values, ok := entrySlot(e)
	if !ok {
		return nil
	}
	fn, ok := fns[key]
	if !ok {
		return nil
	}
	return fn(invocation.NewContext(ctx, sc.Context), values)
}

// QueryFilter adapts OnFilter* methods.
type QueryFilter struct{ table *Table }

// QueryFilter returns the table's query filter.
func (t *Table) QueryFilter() QueryFilter { return QueryFilter{table: t} }

// Filter implements query.Filter.
func (q QueryFilter) Filter(ctx context.Context, ec *query.ExpressionContext, e queryir.Expr) (queryir.Expr, error) {
	fn, ok := q.table.filters[ec.ModelReference.Name]
	if !ok {
		return e, nil
	}
	out, err := fn(invocation.NewContext(ctx, ec.Context), e)
	if err != nil {
		return nil, fmt.Errorf("OnFilter%s: %w", ec.ModelReference.Name, err)
	}
	return out, nil
}

// ActionInvoker adapts action methods.
type ActionInvoker struct{ table *Table }

// ActionInvoker returns the table's action invoker.
func (t *Table) ActionInvoker() ActionInvoker { return ActionInvoker{table: t} }

// InvokeAction implements submit.ActionInvoker.
func (a ActionInvoker) InvokeAction(ctx context.Context, sc *submit.Context, e *submit.ActionInvocationEntry) (ir.IRValue, bool, error) {
	fn, ok := a.table.actions[e.ActionName]
	if !ok {
		return nil, false, nil
	}
	res, err := fn(invocation.NewContext(ctx, sc.Context), e.Arguments)
	return res, true, err
}

// RequiredValidator reports required properties that are missing or null.
// Inserts and full replacements must carry every required property;
// partial updates may omit them but may not set them to null.
type RequiredValidator struct{}

// ValidateEntry implements submit.Validator.
func (RequiredValidator) ValidateEntry(_ context.Context, _ *submit.Context, e submit.Entry, results *submit.ValidationResults) error {
	dm, ok := e.(*submit.DataModificationEntry)
	if !ok || dm.EntityType == nil || dm.Operation == submit.OpDelete {
		return nil
	}
	whole := dm.Operation == submit.OpInsert || dm.IsFullReplace
	for _, prop := range dm.EntityType.Properties {
		if !prop.Required || prop.Computed {
			continue
		}
		v, present := dm.LocalValues[prop.Name]
		if (!present && whole) || (present && ir.IsNull(v)) {
			results.AddError(dm.EntitySet, prop.Name, "property is required")
		}
	}
	return nil
}

// TypeValidator reports property values whose kind does not match the
// declared type, and nulls in non-nullable properties.
type TypeValidator struct{}

// ValidateEntry implements submit.Validator.
func (TypeValidator) ValidateEntry(_ context.Context, _ *submit.Context, e submit.Entry, results *submit.ValidationResults) error {
	dm, ok := e.(*submit.DataModificationEntry)
	if !ok || dm.EntityType == nil {
		return nil
	}
	for _, name := range submit.Writable(dm.LocalValues).SortedKeys() {
		prop, declared := dm.EntityType.Property(name)
		if !declared {
			results.AddError(dm.EntitySet, name, "property is not declared")
			continue
		}
		v := dm.LocalValues[name]
		if ir.IsNull(v) {
			if !prop.Nullable && !prop.Required {
				results.AddError(dm.EntitySet, name, "property is not nullable")
			}
			continue
		}
		if !kindMatches(prop.Type, v) {
			results.AddError(dm.EntitySet, name, fmt.Sprintf("expected %s value", prop.Type))
		}
	}
	return nil
}

func kindMatches(kind model.PrimitiveKind, v ir.IRValue) bool {
	switch kind {
	case model.KindString:
		_, ok := v.(ir.IRString)
		return ok
	case model.KindInt64:
		_, ok := v.(ir.IRInt)
		return ok
	case model.KindBoolean:
		_, ok := v.(ir.IRBool)
		return ok
	}
	return true
}

// Install registers the table's adapters and the model-driven validators
// on cfg.
func Install(cfg *hook.Configuration, t *Table) error {
	if err := hook.AddHookPoint[submit.Validator](cfg, TypeValidator{}); err != nil {
		return err
	}
	if err := hook.AddHookPoint[submit.Validator](cfg, RequiredValidator{}); err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	if err := hook.AddHookPoint[submit.Authorizer](cfg, t.Authorizer()); err != nil {
		return err
	}
	if err := hook.AddHookPoint[submit.Filter](cfg, t.Filter()); err != nil {
		return err
	}
	if err := hook.AddHookPoint[query.Filter](cfg, t.QueryFilter()); err != nil {
		return err
	}
	return hook.AddHookPoint[submit.ActionInvoker](cfg, t.ActionInvoker())
}
