// Package convention binds hook points to methods of a user API object by
// name.
//
// Scan inspects the object once and records every method whose name and
// signature fit a convention:
//
//	CanInsert<Set>, CanUpdate<Set>, CanDelete<Set>, CanExecute<Action>
//	    func(ctx context.Context) (bool, error)
//	OnInserting<Set>, OnUpdating<Set>, OnDeleting<Set>,
//	OnInserted<Set>, OnUpdated<Set>, OnDeleted<Set>
//	    func(ctx context.Context, resource ir.IRObject) error
//	OnExecuting<Action>, OnExecuted<Action>
//	    func(ctx context.Context, args ir.IRObject) error
//	OnFilter<Source>
//	    func(ctx context.Context, e queryir.Expr) (queryir.Expr, error)
//	<Action>
//	    func(ctx context.Context, args ir.IRObject) (ir.IRValue, error)
//
// A method with a convention name but a different signature is skipped
// with a warning and behaves as if it were absent. The resulting Table is
// plain data; the adapters built from it never reflect.
//
// Hooks receive the invocation context through ctx; use
// invocation.FromContext to read roles or bound values.
package convention

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
)

// Kind names a convention.
type Kind string

const (
	KindCan          Kind = "can"
	KindOnExecuting  Kind = "on_executing"
	KindOnExecuted   Kind = "on_executed"
	KindOnFilter     Kind = "on_filter"
	KindActionMethod Kind = "action"
)

// Verb is the entry operation a convention applies to.
type Verb string

const (
	VerbInsert  Verb = "insert"
	VerbUpdate  Verb = "update"
	VerbDelete  Verb = "delete"
	VerbExecute Verb = "execute"
)

type (
	// CanFunc decides whether an entry may be submitted.
	CanFunc func(ctx context.Context) (bool, error)
	// EntryFunc observes a data modification around execution.
	EntryFunc func(ctx context.Context, resource ir.IRObject) error
	// QueryFunc wraps a query reference.
	QueryFunc func(ctx context.Context, e queryir.Expr) (queryir.Expr, error)
	// ActionFunc implements an action.
	ActionFunc func(ctx context.Context, args ir.IRObject) (ir.IRValue, error)
)

// Binding is one bound method.
type Binding struct {
	Method string `json:"method"`
	Kind   Kind   `json:"kind"`
	Verb   Verb   `json:"verb,omitempty"`
	Target string `json:"target"`
}

// Skipped is a method whose name fits a convention but whose signature
// does not.
type Skipped struct {
	Method string `json:"method"`
	Want   string `json:"want"`
	Got    string `json:"got"`
}

type slot struct {
	verb   Verb
	target string
}

// Table is the binding table of one API object.
type Table struct {
	can      map[slot]CanFunc
	before   map[slot]EntryFunc
	after    map[slot]EntryFunc
	filters  map[string]QueryFunc
	actions  map[string]ActionFunc
	bindings []Binding
	skipped  []Skipped
}

type pattern struct {
	prefix string
	kind   Kind
	verb   Verb
}

// Longer prefixes first so "OnExecuting" is not read as "OnExecute" + "ing".
var patterns = []pattern{
	{"CanExecute", KindCan, VerbExecute},
	{"CanInsert", KindCan, VerbInsert},
	{"CanUpdate", KindCan, VerbUpdate},
	{"CanDelete", KindCan, VerbDelete},
	{"OnExecuting", KindOnExecuting, VerbExecute},
	{"OnExecuted", KindOnExecuted, VerbExecute},
	{"OnInserting", KindOnExecuting, VerbInsert},
	{"OnInserted", KindOnExecuted, VerbInsert},
	{"OnUpdating", KindOnExecuting, VerbUpdate},
	{"OnUpdated", KindOnExecuted, VerbUpdate},
	{"OnDeleting", KindOnExecuting, VerbDelete},
	{"OnDeleted", KindOnExecuted, VerbDelete},
	{"OnFilter", KindOnFilter, ""},
}

const (
	shapeCan    = "func(context.Context) (bool, error)"
	shapeEntry  = "func(context.Context, ir.IRObject) error"
	shapeFilter = "func(context.Context, queryir.Expr) (queryir.Expr, error)"
)

// Scan builds the binding table of api. A nil api yields an empty table.
func Scan(api any) *Table {
	t := &Table{
		can:     make(map[slot]CanFunc),
		before:  make(map[slot]EntryFunc),
		after:   make(map[slot]EntryFunc),
		filters: make(map[string]QueryFunc),
		actions: make(map[string]ActionFunc),
	}
	if api == nil {
		return t
	}
	v := reflect.ValueOf(api)
	typ := v.Type()
	for i := range typ.NumMethod() {
		m := typ.Method(i)
		t.bind(m.Name, v.Method(i).Interface())
	}
	return t
}

func (t *Table) bind(name string, fn any) {
	for _, p := range patterns {
		target, ok := strings.CutPrefix(name, p.prefix)
		if !ok || target == "" {
			continue
		}
		if t.bindPattern(p, name, target, fn) {
			t.bindings = append(t.bindings, Binding{Method: name, Kind: p.kind, Verb: p.verb, Target: target})
		}
		return
	}
	if f, ok := fn.(func(context.Context, ir.IRObject) (ir.IRValue, error)); ok {
		t.actions[name] = f
		t.bindings = append(t.bindings, Binding{Method: name, Kind: KindActionMethod, Verb: VerbExecute, Target: name})
	}
}

func (t *Table) bindPattern(p pattern, name, target string, fn any) bool {
	key := slot{verb: p.verb, target: target}
	switch p.kind {
	case KindCan:
		if f, ok := fn.(func(context.Context) (bool, error)); ok {
			t.can[key] = f
			return true
		}
		t.skip(name, shapeCan, fn)
	case KindOnExecuting, KindOnExecuted:
		f, ok := fn.(func(context.Context, ir.IRObject) error)
		if !ok {
			t.skip(name, shapeEntry, fn)
			return false
		}
		if p.kind == KindOnExecuting {
			t.before[key] = f
		} else {
			t.after[key] = f
		}
		return true
	case KindOnFilter:
		if f, ok := fn.(func(context.Context, queryir.Expr) (queryir.Expr, error)); ok {
			t.filters[target] = f
			return true
		}
		t.skip(name, shapeFilter, fn)
	}
	return false
}

func (t *Table) skip(name, want string, fn any) {
	got := reflect.TypeOf(fn).String()
	t.skipped = append(t.skipped, Skipped{Method: name, Want: want, Got: got})
	slog.Warn("convention method skipped",
		"method", name,
		"want", want,
		"got", got,
	)
}

// Bindings returns the bound methods sorted by name.
func (t *Table) Bindings() []Binding {
	out := slices.Clone(t.bindings)
	slices.SortFunc(out, func(a, b Binding) int { return strings.Compare(a.Method, b.Method) })
	return out
}

// Skipped returns the methods skipped for their signature.
func (t *Table) Skipped() []Skipped {
	return slices.Clone(t.skipped)
}

// Len returns the number of bound methods.
func (t *Table) Len() int {
	return len(t.bindings)
}
