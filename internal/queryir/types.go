package queryir

import "github.com/roach88/hookpoint/internal/ir"

// Expr is a node of a query expression tree.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	exprNode()
}

// Unary is implemented by every operator node, all of which have exactly
// one input.
type Unary interface {
	Expr

	// In returns the operator's input.
	In() Expr

	// WithIn returns a shallow copy of the operator over a new input.
	WithIn(in Expr) Expr
}

// Source is an unresolved reference to a named model element.
//
// Semantics:
//
//	rows of <Name> as the caller may see them
//
// Source never reaches a provider: the query pipeline either expands it
// into another expression or replaces it through the sourcer.
type Source struct {
	Name string
}

func (*Source) exprNode() {}

// Call is an unresolved reference to a composable function import.
//
// Like Source, it must be expanded or sourced before execution.
type Call struct {
	Name string
	Args ir.IRObject
}

func (*Call) exprNode() {}

// Queryable is a concrete, provider-resolved root.
//
// Provider identifies the backend that produced it ("memory", "sql"), and
// Handle is whatever that backend needs to scan the rows. Expressions are
// only executable once every root is a Queryable.
type Queryable struct {
	Name     string
	Provider string
	Handle   any
}

func (*Queryable) exprNode() {}

// Where keeps the rows of In that satisfy Pred.
//
// Semantics:
//
//	SELECT * FROM <In> WHERE <Pred>
type Where struct {
	Input Expr
	Pred  Predicate
}

func (*Where) exprNode()             {}
func (w *Where) In() Expr            { return w.Input }
func (w *Where) WithIn(in Expr) Expr { c := *w; c.Input = in; return &c }

// SortKey orders rows by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// OrderBy sorts the rows of In by Keys, most significant first.
//
// Providers append the entity key as a final ascending tiebreaker so that
// paging over equal sort values is deterministic.
type OrderBy struct {
	Input Expr
	Keys  []SortKey
}

func (*OrderBy) exprNode()             {}
func (o *OrderBy) In() Expr            { return o.Input }
func (o *OrderBy) WithIn(in Expr) Expr { c := *o; c.Input = in; return &c }

// Take limits In to its first N rows.
type Take struct {
	Input Expr
	N     int64
}

func (*Take) exprNode()             {}
func (t *Take) In() Expr            { return t.Input }
func (t *Take) WithIn(in Expr) Expr { c := *t; c.Input = in; return &c }

// Skip drops the first N rows of In.
type Skip struct {
	Input Expr
	N     int64
}

func (*Skip) exprNode()             {}
func (s *Skip) In() Expr            { return s.Input }
func (s *Skip) WithIn(in Expr) Expr { c := *s; c.Input = in; return &c }

// Select projects the rows of In onto Fields.
type Select struct {
	Input  Expr
	Fields []string
}

func (*Select) exprNode()             {}
func (s *Select) In() Expr            { return s.Input }
func (s *Select) WithIn(in Expr) Expr { c := *s; c.Input = in; return &c }

// Predicate is a row filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches rows whose Field equals Value. Null never equals anything;
// use IsNull.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (*Equals) predicateNode() {}

// NotEquals matches rows whose Field is present, non-null, and differs from Value.
type NotEquals struct {
	Field string
	Value ir.IRValue
}

func (*NotEquals) predicateNode() {}

// CompareOp is an ordering comparison operator.
type CompareOp string

const (
	OpLess         CompareOp = "lt"
	OpLessEqual    CompareOp = "le"
	OpGreater      CompareOp = "gt"
	OpGreaterEqual CompareOp = "ge"
)

// Compare matches rows where Field <Op> Value. Values of a different kind
// than Value never match.
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.IRValue
}

func (*Compare) predicateNode() {}

// IsNull matches rows where Field is absent or null.
type IsNull struct {
	Field string
}

func (*IsNull) predicateNode() {}

// BoundEquals matches rows whose Field equals a value bound on the
// invocation context.
//
// Example:
//
//	&BoundEquals{Field: "Owner", BoundVar: "bound.user"}
//
// BoundVar must use the "bound.<name>" form. A name with no bound value
// matches nothing.
type BoundEquals struct {
	Field    string
	BoundVar string
}

func (*BoundEquals) predicateNode() {}

// And matches rows satisfying every predicate. Empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (*And) predicateNode() {}

// Or matches rows satisfying at least one predicate. Empty Or matches nothing.
type Or struct {
	Predicates []Predicate
}

func (*Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Pred Predicate
}

func (*Not) predicateNode() {}
