package querysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
)

func orders() *queryir.Queryable {
	return &queryir.Queryable{Name: "Orders", Provider: "sql", Handle: Table{Set: "Orders", Key: []string{"Id"}}}
}

func TestCompile_RootFiltersBySetAndOrdersByKey(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	stmt, err := c.Compile(orders())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stmt.SQL, "SELECT rkey, payload, etag FROM resources WHERE set_name = ?"))
	assert.Contains(t, stmt.SQL, "ORDER BY")
	assert.Contains(t, stmt.SQL, "json_extract(payload, '$.Id') COLLATE BINARY ASC")
	assert.Equal(t, []any{"Orders"}, stmt.Args)
	assert.Nil(t, stmt.Fields)
}

func TestCompile_ValuesAreParameterized(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	e := queryir.Over(orders()).
		Where(&queryir.Equals{Field: "Owner", Value: ir.IRString("alice'; DROP TABLE resources; --")}).
		Expr()
	stmt, err := c.Compile(e)
	require.NoError(t, err)

	assert.NotContains(t, stmt.SQL, "alice")
	assert.Equal(t, []any{"Orders", "alice'; DROP TABLE resources; --"}, stmt.Args)
}

func TestCompile_RejectsNonIdentifierFields(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	for _, e := range []queryir.Expr{
		queryir.Over(orders()).Where(&queryir.IsNull{Field: "a') OR 1=1 --"}).Expr(),
		queryir.Over(orders()).OrderBy("x y", false).Expr(),
		queryir.Over(orders()).Select("$.Id").Expr(),
	} {
		_, err := c.Compile(e)
		assert.ErrorContains(t, err, "not an identifier")
	}
}

func TestCompile_UnresolvedRoots(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	_, err := c.Compile(queryir.From("Orders").Take(1).Expr())
	assert.ErrorContains(t, err, "unresolved source Orders")

	_, err = c.Compile(&queryir.Queryable{Name: "Orders", Provider: "memory", Handle: "Orders"})
	assert.ErrorContains(t, err, `provider "memory"`)
}

func TestCompile_PagingMergesIntoOneStage(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	e := queryir.Over(orders()).OrderBy("Amount", true).Skip(1).Take(5).Take(2).Expr()
	stmt, err := c.Compile(e)
	require.NoError(t, err)

	assert.NotContains(t, stmt.SQL, "AS s0")
	assert.True(t, strings.HasSuffix(stmt.SQL, " LIMIT ? OFFSET ?"))
	assert.Equal(t, []any{"Orders", int64(2), int64(1)}, stmt.Args)
}

func TestCompile_WhereOverTakeWrapsSubquery(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	e := queryir.Over(orders()).Take(3).
		Where(&queryir.Compare{Field: "Amount", Op: queryir.OpGreater, Value: ir.IRInt(50)}).
		Expr()
	stmt, err := c.Compile(e)
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "FROM (SELECT rkey, payload, etag FROM resources WHERE set_name = ?")
	assert.Contains(t, stmt.SQL, "LIMIT ?) AS s0 WHERE")
	// Subquery arguments come first because the FROM clause precedes WHERE.
	assert.Equal(t, []any{"Orders", int64(3), int64(50)}, stmt.Args)
}

func TestCompile_SkipAfterTakeWraps(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	stmt, err := c.Compile(queryir.Over(orders()).Take(3).Skip(1).Expr())
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "AS s0")
	assert.True(t, strings.HasSuffix(stmt.SQL, "LIMIT -1 OFFSET ?"))
	assert.Equal(t, []any{"Orders", int64(3), int64(1)}, stmt.Args)
}

func TestCompile_LaterOrderByIsMoreSignificant(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	stmt, err := c.Compile(queryir.Over(orders()).OrderBy("Amount", false).OrderBy("Status", true).Expr())
	require.NoError(t, err)

	status := strings.Index(stmt.SQL, "'$.Status'")
	amount := strings.Index(stmt.SQL, "'$.Amount'")
	id := strings.Index(stmt.SQL, "'$.Id'")
	require.True(t, status > 0 && amount > 0 && id > 0)
	assert.Less(t, status, amount)
	assert.Less(t, amount, id)
}

func TestCompile_Count(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	stmt, err := c.CompileCount(queryir.Over(orders()).Take(3).Expr())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stmt.SQL, "SELECT COUNT(*) FROM (SELECT rkey"))
	assert.True(t, strings.HasSuffix(stmt.SQL, "LIMIT ?) AS counted"))
	assert.Equal(t, []any{"Orders", int64(3)}, stmt.Args)
}

func TestCompile_Select(t *testing.T) {
	c := NewCompiler(SQLite{}, nil)

	stmt, err := c.Compile(queryir.Over(orders()).Select("Id", "Amount").Select("Amount", "Status").Expr())
	require.NoError(t, err)
	assert.Equal(t, []string{"Amount"}, stmt.Fields)

	_, err = c.Compile(queryir.Over(orders()).Select("Id").Where(&queryir.IsNull{Field: "Owner"}).Expr())
	assert.ErrorContains(t, err, `field "Owner" is not in the selected fields`)
}

func TestCompile_Predicates(t *testing.T) {
	bound := func(name string) (ir.IRValue, bool) {
		if name == "user" {
			return ir.IRString("alice"), true
		}
		return nil, false
	}
	c := NewCompiler(SQLite{}, bound)

	tests := []struct {
		name string
		pred queryir.Predicate
		sql  string
		args []any
	}{
		{
			"equals null matches nothing",
			&queryir.Equals{Field: "Owner", Value: ir.IRNull{}},
			"FALSE",
			nil,
		},
		{
			"bool equality checks the JSON type",
			&queryir.Equals{Field: "Rush", Value: ir.IRBool(true)},
			"COALESCE(json_type(payload, '$.Rush') = 'true', FALSE)",
			nil,
		},
		{
			"is null",
			&queryir.IsNull{Field: "Owner"},
			"NOT COALESCE(json_type(payload, '$.Owner') <> 'null', FALSE)",
			nil,
		},
		{
			"bound equals resolves at compile time",
			&queryir.BoundEquals{Field: "Owner", BoundVar: "bound.user"},
			"COALESCE((json_type(payload, '$.Owner') = 'text' AND json_extract(payload, '$.Owner') = ?), FALSE)",
			[]any{"alice"},
		},
		{
			"unbound variable matches nothing",
			&queryir.BoundEquals{Field: "Owner", BoundVar: "bound.tenant"},
			"FALSE",
			nil,
		},
		{
			"empty or",
			&queryir.Or{},
			"FALSE",
			nil,
		},
		{
			"compare against integer",
			&queryir.Compare{Field: "Amount", Op: queryir.OpLessEqual, Value: ir.IRInt(100)},
			"COALESCE((json_type(payload, '$.Amount') = 'integer' AND json_extract(payload, '$.Amount') <= ?), FALSE)",
			[]any{int64(100)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := c.predicate(tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestPostgres_RebindNumbersPlaceholders(t *testing.T) {
	c := NewCompiler(Postgres{}, nil)

	e := queryir.Over(orders()).
		Where(&queryir.Equals{Field: "Status", Value: ir.IRString("open")}).
		Skip(2).Take(2).
		Expr()
	stmt, err := c.Compile(e)
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "set_name = $1")
	assert.Contains(t, stmt.SQL, "payload->'Status' = $2::jsonb")
	assert.True(t, strings.HasSuffix(stmt.SQL, "LIMIT $3 OFFSET $4"))
	assert.NotContains(t, stmt.SQL, "?")
	assert.Equal(t, []any{"Orders", `"open"`, int64(2), int64(2)}, stmt.Args)
}

func TestForDriver(t *testing.T) {
	for driver, want := range map[string]string{
		"sqlite3": "sqlite",
		"sqlite":  "sqlite",
		"pgx":     "postgres",
	} {
		d, err := ForDriver(driver)
		require.NoError(t, err)
		assert.Equal(t, want, d.Name())
	}

	_, err := ForDriver("mysql")
	assert.ErrorContains(t, err, `driver "mysql"`)
}

func TestStatementString(t *testing.T) {
	s := &Statement{SQL: "SELECT 1 WHERE a = ? AND b = ?", Args: []any{"x", int64(2)}}
	assert.Equal(t, `SELECT 1 WHERE a = ? AND b = ? -- "x", 2`, s.String())
}
