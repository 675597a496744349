package querymem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
)

func seeded(t *testing.T) *Provider {
	t.Helper()
	p := New()
	p.Define("People", "Id")
	require.NoError(t, p.Load("People",
		ir.Obj(ir.O("Id", ir.IRInt(3)), ir.O("Name", ir.IRString("Cy")), ir.O("Age", ir.IRInt(30))),
		ir.Obj(ir.O("Id", ir.IRInt(1)), ir.O("Name", ir.IRString("Al")), ir.O("Age", ir.IRInt(30))),
		ir.Obj(ir.O("Id", ir.IRInt(2)), ir.O("Name", ir.IRString("Bo")), ir.O("Age", ir.IRNull{})),
		ir.Obj(ir.O("Id", ir.IRInt(4)), ir.O("Name", ir.IRString("Di")), ir.O("Age", ir.IRString("unknown"))),
	))
	return p
}

func people() *queryir.Builder {
	return queryir.Over(&queryir.Queryable{Name: "People", Provider: ProviderName})
}

func run(t *testing.T, p *Provider, e queryir.Expr) []ir.IRObject {
	t.Helper()
	ic := invocation.New(hook.NewConfiguration(), nil)
	rows, err := p.ExecuteQuery(context.Background(), ic, e)
	require.NoError(t, err)
	return rows
}

func names(rows []ir.IRObject) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = string(r["Name"].(ir.IRString))
	}
	return out
}

func TestExecuteQuery_KeyOrderByDefault(t *testing.T) {
	p := seeded(t)
	assert.Equal(t, []string{"Al", "Bo", "Cy", "Di"}, names(run(t, p, people().Expr())))
}

func TestExecuteQuery_OrderByBreaksTiesOnKey(t *testing.T) {
	p := seeded(t)
	rows := run(t, p, people().OrderBy("Age", true).Expr())
	// Strings rank above ints, null ranks lowest; Al and Cy tie on 30.
	assert.Equal(t, []string{"Di", "Al", "Cy", "Bo"}, names(rows))
}

func TestExecuteQuery_CompareSkipsOtherKinds(t *testing.T) {
	p := seeded(t)
	rows := run(t, p, people().Where(&queryir.Compare{Field: "Age", Op: queryir.OpGreaterEqual, Value: ir.IRInt(0)}).Expr())
	assert.Equal(t, []string{"Al", "Cy"}, names(rows))
}

func TestExecuteQuery_NullPredicates(t *testing.T) {
	p := seeded(t)
	assert.Equal(t, []string{"Bo"}, names(run(t, p, people().Where(&queryir.IsNull{Field: "Age"}).Expr())))
	assert.Empty(t, run(t, p, people().Where(&queryir.Equals{Field: "Age", Value: ir.IRNull{}}).Expr()))
	assert.Equal(t, []string{"Al", "Cy", "Di"},
		names(run(t, p, people().Where(&queryir.NotEquals{Field: "Age", Value: ir.IRInt(31)}).Expr())))
}

func TestExecuteQuery_Paging(t *testing.T) {
	p := seeded(t)
	assert.Equal(t, []string{"Bo", "Cy"}, names(run(t, p, people().Skip(1).Take(2).Expr())))
	assert.Empty(t, run(t, p, people().Skip(10).Expr()))
	assert.Len(t, run(t, p, people().Take(10).Expr()), 4)
}

func TestExecuteQuery_SelectKeepsETag(t *testing.T) {
	p := seeded(t)
	rows := run(t, p, people().Take(1).Select("Name").Expr())
	require.Len(t, rows, 1)
	assert.ElementsMatch(t, []string{"Name", ETagProperty}, rows[0].SortedKeys())

	_, tag, found, err := p.LoadRow(context.Background(), "People", ir.Obj(ir.O("Id", ir.IRInt(1))))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRString(tag), rows[0][ETagProperty])
}

func TestExecuteQuery_RejectsUnresolved(t *testing.T) {
	p := seeded(t)
	ic := invocation.New(hook.NewConfiguration(), nil)
	_, err := p.ExecuteQuery(context.Background(), ic, queryir.From("People").Expr())
	assert.ErrorContains(t, err, "unresolved root")

	_, err = p.ExecuteQuery(context.Background(), ic, &queryir.Queryable{Name: "People", Provider: "sql"})
	assert.Error(t, err)
}

func TestExecuteCount(t *testing.T) {
	p := seeded(t)
	ic := invocation.New(hook.NewConfiguration(), nil)
	n, err := p.ExecuteCount(context.Background(), ic, people().Where(&queryir.IsNull{Field: "Age"}).Expr())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRowsAreCopies(t *testing.T) {
	p := seeded(t)
	rows := p.Rows("People")
	rows[0]["Name"] = ir.IRString("mutated")
	assert.Equal(t, ir.IRString("Al"), p.Rows("People")[0]["Name"])
}

func TestDefineKeepsRows(t *testing.T) {
	p := seeded(t)
	p.Define("People", "Id")
	assert.Len(t, p.Rows("People"), 4)
}

func TestLoadUndefinedTable(t *testing.T) {
	p := New()
	assert.Error(t, p.Load("Missing", ir.Obj(ir.O("Id", ir.IRInt(1)))))
}

func TestLoadRequiresKey(t *testing.T) {
	p := New()
	p.Define("People", "Id")
	assert.Error(t, p.Load("People", ir.Obj(ir.O("Name", ir.IRString("nobody")))))
}
