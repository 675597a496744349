package queryir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hookpoint/internal/ir"
)

// ValidationResult reports structural problems in an expression.
//
// Errors make the expression unexecutable. Warnings flag expressions that
// execute but are likely not what the caller meant.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether no errors were found.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns the errors joined into one error, or nil.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("invalid query: %s", strings.Join(r.Errors, "; "))
}

// Validate checks an expression without executing it.
//
// Rules:
//  1. Every node is non-nil and every root names something
//  2. Take and Skip counts are non-negative
//  3. OrderBy and Select name at least one field
//  4. BoundEquals uses the bound.<name> form
//  5. Compare uses a known operator and a non-null value
//  6. Operators above a Select only name fields it kept
//
// Paging (Take or Skip) with no OrderBy beneath it is a warning: providers
// fall back to key order, which the caller may not expect.
//
// Validate is a pure function with no side effects.
func Validate(e Expr) ValidationResult {
	v := &validator{}
	v.validateExpr(e, false)
	return ValidationResult{Errors: v.errors, Warnings: v.warnings}
}

type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// validateExpr walks from the outermost node. paging is true once a Take
// or Skip has been seen with no OrderBy yet beneath it.
func (v *validator) validateExpr(e Expr, paging bool) {
	switch n := e.(type) {
	case nil:
		v.addError("nil expression")
	case *Source:
		if n.Name == "" {
			v.addError("source with empty name")
		}
		v.pagingWarning(paging)
	case *Call:
		if n.Name == "" {
			v.addError("call with empty name")
		}
		v.pagingWarning(paging)
	case *Queryable:
		if n.Name == "" {
			v.addError("queryable with empty name")
		}
		v.pagingWarning(paging)
	case *Where:
		v.validatePredicate(n.Pred)
		v.requireSelected("Where", n.Input, PredicateFields(n.Pred))
		v.validateExpr(n.Input, paging)
	case *OrderBy:
		if len(n.Keys) == 0 {
			v.addError("OrderBy with no keys")
		}
		for _, k := range n.Keys {
			if k.Field == "" {
				v.addError("OrderBy key with empty field")
			}
			v.requireSelected("OrderBy", n.Input, []string{k.Field})
		}
		v.validateExpr(n.Input, false)
	case *Take:
		if n.N < 0 {
			v.addError("Take with negative count %d", n.N)
		}
		v.validateExpr(n.Input, true)
	case *Skip:
		if n.N < 0 {
			v.addError("Skip with negative count %d", n.N)
		}
		v.validateExpr(n.Input, true)
	case *Select:
		if len(n.Fields) == 0 {
			v.addError("Select with no fields")
		}
		v.requireSelected("Select", n.Input, n.Fields)
		v.validateExpr(n.Input, paging)
	default:
		v.addError("unknown expression type %T", e)
	}
}

func (v *validator) pagingWarning(paging bool) {
	if paging {
		v.addWarning("paging without OrderBy - rows are returned in key order")
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch n := p.(type) {
	case nil:
		v.addError("Where with nil predicate")
	case *Equals:
		v.requireField(n.Field)
		if ir.IsNull(n.Value) {
			v.addWarning("field '%s' compared to null with eq never matches - use IsNull", n.Field)
		}
	case *NotEquals:
		v.requireField(n.Field)
	case *Compare:
		v.requireField(n.Field)
		switch n.Op {
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		default:
			v.addError("unknown comparison operator %q", n.Op)
		}
		switch n.Value.(type) {
		case ir.IRString, ir.IRInt, ir.IRBool:
		default:
			if ir.IsNull(n.Value) {
				v.addError("field '%s' ordered against null", n.Field)
			} else {
				v.addError("field '%s' ordered against a %T - only scalars are ordered", n.Field, n.Value)
			}
		}
	case *IsNull:
		v.requireField(n.Field)
	case *BoundEquals:
		v.requireField(n.Field)
		if name, ok := strings.CutPrefix(n.BoundVar, "bound."); !ok || name == "" {
			v.addError("bound variable %q must use the bound.<name> form", n.BoundVar)
		}
	case *And:
		for _, sub := range n.Predicates {
			v.validatePredicate(sub)
		}
	case *Or:
		for _, sub := range n.Predicates {
			v.validatePredicate(sub)
		}
	case *Not:
		v.validatePredicate(n.Pred)
	default:
		v.addError("unknown predicate type %T", p)
	}
}

// requireSelected reports fields that the nearest Select beneath in has
// already dropped.
func (v *validator) requireSelected(op string, in Expr, fields []string) {
	kept, ok := selected(in)
	if !ok {
		return
	}
	for _, f := range fields {
		if f != "" && !slices.Contains(kept, f) {
			v.addError("%s references %q, which an inner Select dropped", op, f)
		}
	}
}

// selected returns the fields of the nearest Select in the chain below e.
func selected(e Expr) ([]string, bool) {
	for _, op := range Operators(e) {
		if s, ok := op.(*Select); ok {
			return s.Fields, true
		}
	}
	return nil, false
}

// PredicateFields lists the fields p refers to, in walk order. Fields may
// repeat.
func PredicateFields(p Predicate) []string {
	var out []string
	var walk func(p Predicate)
	walk = func(p Predicate) {
		switch n := p.(type) {
		case *Equals:
			out = append(out, n.Field)
		case *NotEquals:
			out = append(out, n.Field)
		case *Compare:
			out = append(out, n.Field)
		case *IsNull:
			out = append(out, n.Field)
		case *BoundEquals:
			out = append(out, n.Field)
		case *And:
			for _, sub := range n.Predicates {
				walk(sub)
			}
		case *Or:
			for _, sub := range n.Predicates {
				walk(sub)
			}
		case *Not:
			walk(n.Pred)
		}
	}
	walk(p)
	return out
}

func (v *validator) requireField(field string) {
	if field == "" {
		v.addError("predicate with empty field")
	}
}

// BoundName returns the name part of a bound.<name> variable.
func BoundName(boundVar string) (string, bool) {
	name, ok := strings.CutPrefix(boundVar, "bound.")
	return name, ok && name != ""
}
