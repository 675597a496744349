package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/hookpoint/internal/ir"
)

// Format renders e as a compact, deterministic string for logs and golden
// files, for example:
//
//	Take(OrderBy(Where(Source(Orders), Status eq "open"), Id asc), 10)
func Format(e Expr) string {
	var b strings.Builder
	formatExpr(&b, e)
	return b.String()
}

func formatExpr(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Source:
		fmt.Fprintf(b, "Source(%s)", n.Name)
	case *Call:
		fmt.Fprintf(b, "Call(%s, %s)", n.Name, formatValue(n.Args))
	case *Queryable:
		fmt.Fprintf(b, "Queryable(%s@%s)", n.Name, n.Provider)
	case *Where:
		b.WriteString("Where(")
		formatExpr(b, n.Input)
		b.WriteString(", ")
		b.WriteString(FormatPredicate(n.Pred))
		b.WriteString(")")
	case *OrderBy:
		b.WriteString("OrderBy(")
		formatExpr(b, n.Input)
		for _, k := range n.Keys {
			dir := "asc"
			if k.Desc {
				dir = "desc"
			}
			fmt.Fprintf(b, ", %s %s", k.Field, dir)
		}
		b.WriteString(")")
	case *Take:
		b.WriteString("Take(")
		formatExpr(b, n.Input)
		fmt.Fprintf(b, ", %d)", n.N)
	case *Skip:
		b.WriteString("Skip(")
		formatExpr(b, n.Input)
		fmt.Fprintf(b, ", %d)", n.N)
	case *Select:
		b.WriteString("Select(")
		formatExpr(b, n.Input)
		fmt.Fprintf(b, ", %s)", strings.Join(n.Fields, ", "))
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}

// FormatPredicate renders a predicate.
func FormatPredicate(p Predicate) string {
	switch n := p.(type) {
	case nil:
		return "true"
	case *Equals:
		return fmt.Sprintf("%s eq %s", n.Field, formatValue(n.Value))
	case *NotEquals:
		return fmt.Sprintf("%s ne %s", n.Field, formatValue(n.Value))
	case *Compare:
		return fmt.Sprintf("%s %s %s", n.Field, n.Op, formatValue(n.Value))
	case *IsNull:
		return fmt.Sprintf("%s eq null", n.Field)
	case *BoundEquals:
		return fmt.Sprintf("%s eq %s", n.Field, n.BoundVar)
	case *And:
		return joinPredicates(n.Predicates, " and ", "true")
	case *Or:
		return joinPredicates(n.Predicates, " or ", "false")
	case *Not:
		return "not (" + FormatPredicate(n.Pred) + ")"
	default:
		return fmt.Sprintf("<%T>", p)
	}
}

func joinPredicates(ps []Predicate, sep, empty string) string {
	if len(ps) == 0 {
		return empty
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		s := FormatPredicate(p)
		switch p.(type) {
		case *And, *Or:
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}

func formatValue(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%T>", v)
	}
	return string(b)
}
