// Package querysql compiles resolved query expressions into parameterized
// SQL over the resources table.
//
// Every row of every entity set lives in one table:
//
//	resources(set_name, rkey, payload, etag, seq)
//
// payload holds the canonical JSON of the row. The compiler addresses
// fields through the dialect's JSON functions, never by interpolating
// values, and every statement ends in an ORDER BY whose last terms are the
// entity key so paging is deterministic.
package querysql

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
)

// Table is the Queryable handle of a SQL-backed entity set.
type Table struct {
	Set string
	Key []string
}

// Statement is a compiled query.
type Statement struct {
	SQL  string
	Args []any

	// Fields is the projection to apply to decoded rows, or nil for all.
	Fields []string
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Compiler compiles resolved expressions for one dialect.
type Compiler struct {
	Dialect Dialect

	// Bound resolves BoundEquals variables at compile time.
	Bound queryir.Binder
}

// NewCompiler returns a compiler for d.
func NewCompiler(d Dialect, bound queryir.Binder) *Compiler {
	return &Compiler{Dialect: d, Bound: bound}
}

// stage is one SELECT level. A new stage wraps the previous one as a
// subquery when an operator cannot be merged into it, such as a Where over
// a LIMIT.
type stage struct {
	from     string
	fromArgs []any
	where    []string
	args     []any
	order    []string
	keyOrder []string
	limit    *int64
	offset   int64
	fields   []string
	depth    int
}

func (s *stage) paged() bool { return s.limit != nil || s.offset > 0 }

// Compile compiles e into a row query.
func (c *Compiler) Compile(e queryir.Expr) (*Statement, error) {
	st, err := c.build(e)
	if err != nil {
		return nil, err
	}
	query, args := c.render(st)
	return &Statement{SQL: c.Dialect.Rebind(query), Args: args, Fields: st.fields}, nil
}

// CompileCount compiles e into a COUNT(*) over its rows.
func (c *Compiler) CompileCount(e queryir.Expr) (*Statement, error) {
	st, err := c.build(e)
	if err != nil {
		return nil, err
	}
	query, args := c.render(st)
	return &Statement{
		SQL:  c.Dialect.Rebind("SELECT COUNT(*) FROM (" + query + ") AS counted"),
		Args: args,
	}, nil
}

func (c *Compiler) build(e queryir.Expr) (*stage, error) {
	switch ex := e.(type) {
	case *queryir.Queryable:
		t, ok := ex.Handle.(Table)
		if !ok {
			return nil, fmt.Errorf("queryable %s is not a SQL table (provider %q)", ex.Name, ex.Provider)
		}
		st := &stage{
			from:  "resources",
			where: []string{"set_name = ?"},
			args:  []any{t.Set},
		}
		for _, k := range t.Key {
			if !identifier.MatchString(k) {
				return nil, fmt.Errorf("key field %q is not an identifier", k)
			}
			st.keyOrder = append(st.keyOrder, c.Dialect.Order(k, false)...)
		}
		return st, nil
	case *queryir.Source:
		return nil, fmt.Errorf("unresolved source %s", ex.Name)
	case *queryir.Call:
		return nil, fmt.Errorf("unresolved call %s", ex.Name)
	case queryir.Unary:
		st, err := c.build(ex.In())
		if err != nil {
			return nil, err
		}
		return c.apply(st, ex)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func (c *Compiler) apply(st *stage, op queryir.Unary) (*stage, error) {
	switch o := op.(type) {
	case *queryir.Where:
		if st.paged() {
			st = c.wrap(st)
		}
		if err := st.visible(predicateFields(o.Pred)...); err != nil {
			return nil, err
		}
		cond, args, err := c.predicate(o.Pred)
		if err != nil {
			return nil, err
		}
		st.where = append(st.where, cond)
		st.args = append(st.args, args...)
	case *queryir.OrderBy:
		if st.paged() {
			st = c.wrap(st)
		}
		var terms []string
		for _, k := range o.Keys {
			if err := checkField(k.Field); err != nil {
				return nil, err
			}
			if err := st.visible(k.Field); err != nil {
				return nil, err
			}
			terms = append(terms, c.Dialect.Order(k.Field, k.Desc)...)
		}
		// A later OrderBy is more significant; the earlier order stays as
		// a tiebreaker, matching a stable sort.
		st.order = append(terms, st.order...)
	case *queryir.Skip:
		if st.limit != nil {
			st = c.wrap(st)
		}
		st.offset += o.N
	case *queryir.Take:
		if st.limit == nil || o.N < *st.limit {
			n := o.N
			st.limit = &n
		}
	case *queryir.Select:
		for _, f := range o.Fields {
			if err := checkField(f); err != nil {
				return nil, err
			}
		}
		if st.fields == nil {
			st.fields = slices.Clone(o.Fields)
			break
		}
		var kept []string
		for _, f := range o.Fields {
			if slices.Contains(st.fields, f) {
				kept = append(kept, f)
			}
		}
		st.fields = kept
		if st.fields == nil {
			st.fields = []string{}
		}
	default:
		return nil, fmt.Errorf("unsupported operator %T", op)
	}
	return st, nil
}

// visible rejects references to fields an earlier Select dropped. The
// projection happens after decoding, so the column still holds them.
func (s *stage) visible(fields ...string) error {
	if s.fields == nil {
		return nil
	}
	for _, f := range fields {
		if !slices.Contains(s.fields, f) {
			return fmt.Errorf("field %q is not in the selected fields", f)
		}
	}
	return nil
}

func (c *Compiler) wrap(st *stage) *stage {
	query, args := c.render(st)
	return &stage{
		from:     fmt.Sprintf("(%s) AS s%d", query, st.depth),
		fromArgs: args,
		order:    st.order,
		keyOrder: st.keyOrder,
		fields:   st.fields,
		depth:    st.depth + 1,
	}
}

func (c *Compiler) render(st *stage) (string, []any) {
	var b strings.Builder
	args := slices.Clone(st.fromArgs)
	b.WriteString("SELECT rkey, payload, etag FROM ")
	b.WriteString(st.from)
	if len(st.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(st.where, " AND "))
		args = append(args, st.args...)
	}
	order := append(slices.Clone(st.order), st.keyOrder...)
	if len(order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}
	var limit, offset string
	if st.limit != nil {
		limit = "?"
		args = append(args, *st.limit)
	}
	if st.offset > 0 {
		offset = "?"
		args = append(args, st.offset)
	}
	b.WriteString(c.Dialect.Paging(limit, offset))
	return b.String(), args
}

// predicate compiles p into a condition that is never NULL.
func (c *Compiler) predicate(p queryir.Predicate) (string, []any, error) {
	switch pr := p.(type) {
	case nil:
		return "TRUE", nil, nil
	case *queryir.Equals:
		if err := checkField(pr.Field); err != nil {
			return "", nil, err
		}
		if ir.IsNull(pr.Value) {
			return "FALSE", nil, nil
		}
		cond, args, err := c.Dialect.Equals(pr.Field, pr.Value)
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", pr.Field, err)
		}
		return coalesce(cond), args, nil
	case *queryir.NotEquals:
		if err := checkField(pr.Field); err != nil {
			return "", nil, err
		}
		present := coalesce(c.Dialect.Present(pr.Field))
		if ir.IsNull(pr.Value) {
			return present, nil, nil
		}
		cond, args, err := c.Dialect.Equals(pr.Field, pr.Value)
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", pr.Field, err)
		}
		return fmt.Sprintf("(%s AND NOT %s)", present, coalesce(cond)), args, nil
	case *queryir.Compare:
		if err := checkField(pr.Field); err != nil {
			return "", nil, err
		}
		op, ok := compareOps[pr.Op]
		if !ok {
			return "", nil, fmt.Errorf("unknown comparison %q", pr.Op)
		}
		if ir.IsNull(pr.Value) {
			return "FALSE", nil, nil
		}
		cond, args := c.Dialect.Compare(pr.Field, op, pr.Value)
		return coalesce(cond), args, nil
	case *queryir.IsNull:
		if err := checkField(pr.Field); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("NOT %s", coalesce(c.Dialect.Present(pr.Field))), nil, nil
	case *queryir.BoundEquals:
		name, ok := queryir.BoundName(pr.BoundVar)
		if !ok || c.Bound == nil {
			return "FALSE", nil, nil
		}
		v, ok := c.Bound(name)
		if !ok {
			return "FALSE", nil, nil
		}
		return c.predicate(&queryir.Equals{Field: pr.Field, Value: v})
	case *queryir.And:
		return c.join(pr.Predicates, " AND ", "TRUE")
	case *queryir.Or:
		return c.join(pr.Predicates, " OR ", "FALSE")
	case *queryir.Not:
		cond, args, err := c.predicate(pr.Pred)
		if err != nil {
			return "", nil, err
		}
		return "NOT " + cond, args, nil
	}
	return "", nil, fmt.Errorf("unsupported predicate %T", p)
}

func (c *Compiler) join(ps []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(ps) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(ps))
	var args []any
	for _, p := range ps {
		cond, a, err := c.predicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, cond)
		args = append(args, a...)
	}
	return "(" + strings.Join(parts, sep) + ")", args, nil
}

var compareOps = map[queryir.CompareOp]string{
	queryir.OpLess:         "<",
	queryir.OpLessEqual:    "<=",
	queryir.OpGreater:      ">",
	queryir.OpGreaterEqual: ">=",
}

func coalesce(cond string) string {
	return "COALESCE(" + cond + ", FALSE)"
}

func checkField(f string) error {
	if !identifier.MatchString(f) {
		return fmt.Errorf("field %q is not an identifier", f)
	}
	return nil
}

func predicateFields(p queryir.Predicate) []string {
	switch pr := p.(type) {
	case *queryir.Equals:
		return []string{pr.Field}
	case *queryir.NotEquals:
		return []string{pr.Field}
	case *queryir.Compare:
		return []string{pr.Field}
	case *queryir.IsNull:
		return []string{pr.Field}
	case *queryir.BoundEquals:
		return []string{pr.Field}
	case *queryir.And:
		var out []string
		for _, q := range pr.Predicates {
			out = append(out, predicateFields(q)...)
		}
		return out
	case *queryir.Or:
		var out []string
		for _, q := range pr.Predicates {
			out = append(out, predicateFields(q)...)
		}
		return out
	case *queryir.Not:
		return predicateFields(pr.Pred)
	}
	return nil
}

// String renders a statement for logs and golden files.
func (s *Statement) String() string {
	var b strings.Builder
	b.WriteString(s.SQL)
	if len(s.Args) > 0 {
		b.WriteString(" -- ")
		for i, a := range s.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			switch v := a.(type) {
			case string:
				b.WriteString(strconv.Quote(v))
			default:
				fmt.Fprint(&b, v)
			}
		}
	}
	return b.String()
}
