package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookpoint/internal/ir"
)

func TestValidateAcceptsWellFormed(t *testing.T) {
	e := From("Orders").
		Where(&And{Predicates: []Predicate{
			&Equals{Field: "Status", Value: ir.IRString("open")},
			&BoundEquals{Field: "Owner", BoundVar: "bound.user"},
		}}).
		OrderBy("Id", false).
		Take(10).
		Expr()

	res := Validate(e)
	assert.True(t, res.Valid())
	assert.Empty(t, res.Warnings)
	assert.NoError(t, res.Err())
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"nil", nil, "nil expression"},
		{"empty source", &Source{}, "source with empty name"},
		{"negative take", &Take{Input: &Source{Name: "A"}, N: -1}, "Take with negative count -1"},
		{"empty orderby", &OrderBy{Input: &Source{Name: "A"}}, "OrderBy with no keys"},
		{"empty select", &Select{Input: &Source{Name: "A"}}, "Select with no fields"},
		{"nil predicate", &Where{Input: &Source{Name: "A"}}, "Where with nil predicate"},
		{"bad bound", From("A").Where(&BoundEquals{Field: "X", BoundVar: "user"}).Expr(), `bound variable "user" must use the bound.<name> form`},
		{"bad op", From("A").Where(&Compare{Field: "X", Op: "like", Value: ir.IRInt(1)}).Expr(), `unknown comparison operator "like"`},
		{"null compare", From("A").Where(&Compare{Field: "X", Op: OpLess, Value: ir.IRNull{}}).Expr(), "field 'X' ordered against null"},
		{"array compare", From("A").Where(&Compare{Field: "X", Op: OpLess, Value: ir.IRArray{}}).Expr(), "field 'X' ordered against a ir.IRArray - only scalars are ordered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.expr)
			require.False(t, res.Valid())
			assert.Contains(t, res.Errors, tt.want)
			assert.Error(t, res.Err())
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	res := Validate(From("A").Take(5).Expr())
	assert.True(t, res.Valid())
	assert.Equal(t, []string{"paging without OrderBy - rows are returned in key order"}, res.Warnings)

	res = Validate(From("A").Take(5).OrderBy("Id", false).Expr())
	assert.Len(t, res.Warnings, 1, "a Take beneath the sort is still unordered")

	res = Validate(From("A").Where(&Equals{Field: "X", Value: ir.IRNull{}}).Expr())
	assert.Len(t, res.Warnings, 1)
}

func TestBoundName(t *testing.T) {
	name, ok := BoundName("bound.user")
	assert.True(t, ok)
	assert.Equal(t, "user", name)

	_, ok = BoundName("bound.")
	assert.False(t, ok)
	_, ok = BoundName("user")
	assert.False(t, ok)
}

func TestValidateFieldsDroppedBySelect(t *testing.T) {
	res := Validate(From("Orders").Select("Id", "Amount").Where(&Equals{Field: "Status", Value: ir.IRString("open")}).Expr())
	assert.Equal(t, []string{`Where references "Status", which an inner Select dropped`}, res.Errors)

	res = Validate(From("Orders").Select("Id").OrderBy("Amount", true).Select("Id").Expr())
	assert.Equal(t, []string{`OrderBy references "Amount", which an inner Select dropped`}, res.Errors)

	res = Validate(From("Orders").Select("Id", "Amount").Select("Id", "Status").Expr())
	assert.Equal(t, []string{`Select references "Status", which an inner Select dropped`}, res.Errors)

	res = Validate(From("Orders").Where(&Equals{Field: "Status", Value: ir.IRString("open")}).Select("Id").OrderBy("Id", false).Expr())
	assert.True(t, res.Valid())
}

func TestPredicateFields(t *testing.T) {
	p := &And{Predicates: []Predicate{
		&Equals{Field: "Status", Value: ir.IRString("open")},
		&Not{Pred: &IsNull{Field: "Owner"}},
		&Or{Predicates: []Predicate{
			&Compare{Field: "Amount", Op: OpGreater, Value: ir.IRInt(5)},
			&BoundEquals{Field: "Owner", BoundVar: "bound.user"},
		}},
	}}
	assert.Equal(t, []string{"Status", "Owner", "Amount", "Owner"}, PredicateFields(p))
	assert.Empty(t, PredicateFields(nil))
}
