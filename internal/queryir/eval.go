package queryir

import "github.com/roach88/hookpoint/internal/ir"

// Binder resolves bound.<name> variables during evaluation.
type Binder func(name string) (ir.IRValue, bool)

// Match evaluates p against one row. A nil predicate matches every row.
func Match(p Predicate, row ir.IRObject, bound Binder) bool {
	switch pr := p.(type) {
	case nil:
		return true
	case *Equals:
		v := row[pr.Field]
		return !ir.IsNull(v) && ir.Equal(v, pr.Value)
	case *NotEquals:
		v := row[pr.Field]
		return !ir.IsNull(v) && !ir.Equal(v, pr.Value)
	case *Compare:
		v := row[pr.Field]
		if ir.IsNull(v) || ir.IsNull(pr.Value) || !ir.SameKind(v, pr.Value) {
			return false
		}
		c := ir.Compare(v, pr.Value)
		switch pr.Op {
		case OpLess:
			return c < 0
		case OpLessEqual:
			return c <= 0
		case OpGreater:
			return c > 0
		case OpGreaterEqual:
			return c >= 0
		}
		return false
	case *IsNull:
		return ir.IsNull(row[pr.Field])
	case *BoundEquals:
		name, ok := BoundName(pr.BoundVar)
		if !ok || bound == nil {
			return false
		}
		want, ok := bound(name)
		if !ok || ir.IsNull(want) {
			return false
		}
		v := row[pr.Field]
		return !ir.IsNull(v) && ir.Equal(v, want)
	case *And:
		for _, q := range pr.Predicates {
			if !Match(q, row, bound) {
				return false
			}
		}
		return true
	case *Or:
		for _, q := range pr.Predicates {
			if Match(q, row, bound) {
				return true
			}
		}
		return false
	case *Not:
		return !Match(pr.Pred, row, bound)
	}
	return false
}
