package queryir

// Root returns the leaf of an operator chain: a Source, Call, or Queryable.
func Root(e Expr) Expr {
	for {
		u, ok := e.(Unary)
		if !ok {
			return e
		}
		e = u.In()
	}
}

// Operators returns the operator nodes of e from outermost to innermost.
func Operators(e Expr) []Unary {
	var ops []Unary
	for {
		u, ok := e.(Unary)
		if !ok {
			return ops
		}
		ops = append(ops, u)
		e = u.In()
	}
}

// Rebuild wraps root in ops, where ops are listed outermost first, as
// returned by Operators.
func Rebuild(root Expr, ops []Unary) Expr {
	e := root
	for i := len(ops) - 1; i >= 0; i-- {
		e = ops[i].WithIn(e)
	}
	return e
}

// ReplaceRoot returns e with its root replaced. Operator nodes are copied;
// the input tree is not modified.
func ReplaceRoot(e, root Expr) Expr {
	return Rebuild(root, Operators(e))
}

// Compose places outer's operator chain on top of inner. The root of outer
// is discarded. This is how a filter's rewrite over a Source is grafted
// onto the expression that replaced that Source.
func Compose(outer, inner Expr) Expr {
	return ReplaceRoot(outer, inner)
}

// IsResolved reports whether the root of e is a concrete Queryable.
func IsResolved(e Expr) bool {
	_, ok := Root(e).(*Queryable)
	return ok
}

// StripForCount returns the expression whose row count is the total count
// of e, ignoring paging applied last.
//
// Outer Selects are dropped first, since a projection never changes the
// row count. Then only paging at the outermost position is removed: a
// trailing Take, the Skip directly beneath it, or a trailing Skip. A Take
// anywhere else bounds the set being counted and is preserved, so
//
//	OrderBy(Take(src, 10))          counts at most 10
//	Take(OrderBy(src), 10)          counts all of src
//	Select(Take(OrderBy(src), 10))  counts all of src
//
// stripped reports whether anything was removed.
func StripForCount(e Expr) (out Expr, stripped bool) {
	out = e
	for {
		s, ok := out.(*Select)
		if !ok {
			break
		}
		out, stripped = s.Input, true
	}
	if t, ok := out.(*Take); ok {
		out, stripped = t.Input, true
	}
	if s, ok := out.(*Skip); ok {
		out, stripped = s.Input, true
	}
	return out, stripped
}

// Builder assembles an operator chain left to right.
//
// Example:
//
//	queryir.From("Orders").
//	    Where(&queryir.Equals{Field: "Status", Value: ir.IRString("open")}).
//	    OrderBy("Id", false).
//	    Take(10).
//	    Expr()
type Builder struct {
	e Expr
}

// From starts a chain over an unresolved source.
func From(name string) *Builder {
	return &Builder{e: &Source{Name: name}}
}

// Over starts a chain over any expression.
func Over(e Expr) *Builder {
	return &Builder{e: e}
}

// Where appends a filter.
func (b *Builder) Where(p Predicate) *Builder {
	b.e = &Where{Input: b.e, Pred: p}
	return b
}

// OrderBy appends a single-key sort.
func (b *Builder) OrderBy(field string, desc bool) *Builder {
	b.e = &OrderBy{Input: b.e, Keys: []SortKey{{Field: field, Desc: desc}}}
	return b
}

// Take appends a row limit.
func (b *Builder) Take(n int64) *Builder {
	b.e = &Take{Input: b.e, N: n}
	return b
}

// Skip appends a row offset.
func (b *Builder) Skip(n int64) *Builder {
	b.e = &Skip{Input: b.e, N: n}
	return b
}

// Select appends a projection.
func (b *Builder) Select(fields ...string) *Builder {
	b.e = &Select{Input: b.e, Fields: fields}
	return b
}

// Expr returns the assembled expression.
func (b *Builder) Expr() Expr {
	return b.e
}

// AndOf combines predicates, dropping nils and flattening nested Ands.
// It returns nil when nothing remains and the sole predicate when one does.
func AndOf(preds ...Predicate) Predicate {
	var flat []Predicate
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case *And:
			flat = append(flat, v.Predicates...)
		default:
			flat = append(flat, p)
		}
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return &And{Predicates: flat}
}
