package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/querymem"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/security"
	"github.com/roach88/hookpoint/internal/testutil"
)

func compileString(t *testing.T, src string) (*APISpec, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileAPI(v)
}

func loadSales(t *testing.T) *APISpec {
	t.Helper()
	path := filepath.Join("testdata", "sales", "api.cue")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	require.NoError(t, v.Err())
	spec, err := CompileAPI(v)
	require.NoError(t, err)
	return spec
}

func TestCompileAPI_SalesModel(t *testing.T) {
	spec := loadSales(t)

	assert.Equal(t, "Sales", spec.Namespace)
	assert.Equal(t, DefaultContainer, spec.Container)
	assert.Equal(t, testutil.SalesModel(), spec.Model())
	assert.Empty(t, Validate(spec))
}

func TestCompileAPI_ModelIsFresh(t *testing.T) {
	spec := loadSales(t)

	el, ok := spec.Model().FindDeclaredType("Sales.Order")
	require.True(t, ok)
	el.(*model.EntityType).Properties[0].Name = "Changed"

	el, ok = spec.Model().FindDeclaredType("Sales.Order")
	require.True(t, ok)
	assert.Equal(t, "Id", el.(*model.EntityType).Properties[0].Name)
}

func TestCompileAPI_Views(t *testing.T) {
	spec := loadSales(t)
	require.Len(t, spec.Views, 3)

	bodies := map[string]string{}
	types := map[string]string{}
	for _, v := range spec.Views {
		bodies[v.Name] = queryir.Format(v.Body())
		types[v.Name] = v.EntityType
	}

	assert.Equal(t, map[string]string{
		"OpenOrders":    `Where(Source(Orders), Status eq "open")`,
		"MyOrders":      `OrderBy(Where(Source(Orders), Owner eq bound.user), Amount desc)`,
		"BigOpenOrders": `Where(Source(OpenOrders), Amount ge 100)`,
	}, bodies)
	assert.Equal(t, "Sales.Order", types["BigOpenOrders"], "inherited through OpenOrders")

	assert.Equal(t, []security.AssertPolicy{
		{Target: "OpenOrders", Roles: []string{"Manager"}},
		{Target: "MyOrders", Roles: []string{"Manager"}},
	}, spec.AssertPolicies())
}

func TestCompileAPI_Permissions(t *testing.T) {
	spec := loadSales(t)

	perms := spec.PermissionSet()
	assert.Equal(t, 10, perms.Len())

	ic := invocation.New(hook.NewConfiguration(), nil)
	assert.True(t, perms.Allows(ic, security.Update, "Customers"))
	assert.Equal(t, security.Denied, perms.Decide(ic, security.Delete, "Customers"))
	assert.Equal(t, security.Denied, perms.Decide(ic, security.Read, "Orders"))
	assert.Equal(t, security.Unconfigured, perms.Decide(ic, security.Update, "Orders"))

	manager := invocation.New(hook.NewConfiguration(), nil, invocation.WithRoles("Manager"))
	assert.True(t, perms.Allows(manager, security.Invoke, "Ship"))
}

func TestCompileAPI_WhereForms(t *testing.T) {
	spec, err := compileString(t, `
		namespace: "Shop"
		entity_type: Item: {
			key: ["Sku"]
			properties: {Sku: string, Price: int, Tag: {type: string, nullable: true}, Active: bool}
		}
		entity_set: Items: "Item"
		view: Picked: {
			from: "Items"
			where: {
				Active: true
				Tag:    null
				Price:  {gt: 5, le: 50}
				Sku:    {ne: "X"}
			}
			order_by: ["Price", "Sku desc"]
			skip: 2
			take: 10
		}
	`)
	require.NoError(t, err)
	require.Len(t, spec.Views, 1)

	assert.Equal(t,
		`Take(Skip(OrderBy(Where(Source(Items), Active eq true and Tag eq null and Price gt 5 and Price le 50 and Sku ne "X"), Price asc, Sku desc), 2), 10)`,
		queryir.Format(spec.Views[0].Body()))
	assert.Equal(t, "Shop.Item", spec.Views[0].EntityType)
	assert.Empty(t, Validate(spec))
}

func TestCompileAPI_PropertyForms(t *testing.T) {
	spec, err := compileString(t, `
		namespace: "Shop"
		container: "Store"
		entity_type: Item: {
			key: ["Sku"]
			properties: {
				Sku:     "String"
				Stock:   {type: int, computed: true}
				Details: {type: "Json", nullable: true}
				Labels:  [...string]
			}
		}
		singleton: Config: {type: "Item"}
		operation: Restock: {
			kind:   "action"
			import: false
			parameters: {Count: int}
		}
		operation: Cheapest: {kind: "function", returns: "Int64"}
	`)
	require.NoError(t, err)

	assert.Equal(t, "Store", spec.Container)
	require.Len(t, spec.EntityTypes, 1)
	assert.Equal(t, []model.Property{
		{Name: "Sku", Type: model.KindString},
		{Name: "Stock", Type: model.KindInt64, Computed: true},
		{Name: "Details", Type: model.KindJSON, Nullable: true},
		{Name: "Labels", Type: model.KindJSON},
	}, spec.EntityTypes[0].Properties)
	assert.Equal(t, "Shop.Item", spec.Singletons[0].EntityType)

	require.Len(t, spec.Operations, 2)
	assert.Equal(t, string(model.KindInt64), spec.Operations[1].ReturnType)
	require.Len(t, spec.Imports, 1, "Restock is not imported")
	assert.Equal(t, "Cheapest", spec.Imports[0].Name)
}

func TestCompileAPI_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing namespace", `entity_set: Items: "Item"`, "namespace is required"},
		{"missing key", `namespace: "S", entity_type: Item: properties: Id: int`, "key is required"},
		{"float property", `namespace: "S", entity_type: Item: {key: ["Id"], properties: {Id: int, Price: float}}`, "float types are forbidden"},
		{"unknown type name", `namespace: "S", entity_type: Item: {key: ["Id"], properties: {Id: "Decimal"}}`, `unknown type name "Decimal"`},
		{"bad operation kind", `namespace: "S", operation: Op: {kind: "procedure"}`, `kind must be "function" or "action"`},
		{"view without source", `namespace: "S", view: V: {where: {A: 1}}`, "from is required"},
		{"bad sort key", `namespace: "S", view: V: {from: "Items", order_by: ["A sideways"]}`, `order key "A sideways"`},
		{"unknown operator", `namespace: "S", view: V: {from: "Items", where: {A: {like: "x"}}}`, `unknown operator "like"`},
		{"float where value", `namespace: "S", view: V: {from: "Items", where: {A: 1.5}}`, "float values are forbidden"},
		{"incomplete require", `namespace: "S", require: [{role: "Admin"}]`, "role and on are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileString(t, tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompileError_Position(t *testing.T) {
	v := cuecontext.New().CompileString(`namespace: "S"
entity_type: Item: {key: ["Id"], properties: {Id: int, Price: float}}
`, cue.Filename("api.cue"))
	require.NoError(t, v.Err())

	_, err := CompileAPI(v)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "type", ce.Field)
	assert.Contains(t, err.Error(), "api.cue:2:")
}

// TestInstall runs queries through a configuration assembled from the
// compiled spec alone.
func TestInstall(t *testing.T) {
	spec := loadSales(t)

	cfg := hook.NewConfiguration()
	require.NoError(t, spec.Install(cfg))
	mem := querymem.New()
	mem.DefineModel(spec.Model())
	for set, rows := range testutil.SalesRows() {
		require.NoError(t, mem.Load(set, rows...))
	}
	require.NoError(t, mem.Install(cfg))
	cfg.Freeze()
	queries := query.NewHandler(model.NewHandler(cfg))

	run := func(e queryir.Expr, opts ...invocation.Option) ([]ir.IRValue, error) {
		ic := invocation.New(cfg, testutil.NewSequenceIDs("c"), opts...)
		res, err := queries.Query(context.Background(), ic, query.Request{Expr: e})
		if err != nil {
			return nil, err
		}
		ids := make([]ir.IRValue, len(res.Rows))
		for i, r := range res.Rows {
			ids[i] = r["Id"]
		}
		return ids, nil
	}

	ids, err := run(queryir.From("BigOpenOrders").Expr())
	require.NoError(t, err)
	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRInt(4)}, ids)

	ids, err = run(queryir.From("MyOrders").Expr(), invocation.WithBound("user", ir.IRString("alice")))
	require.NoError(t, err)
	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRInt(3)}, ids)

	_, err = run(queryir.From("Orders").Expr())
	assert.True(t, apierr.IsForbidden(err))

	_, err = run(queryir.From("Settings").Expr())
	assert.True(t, apierr.IsNotFound(err), "Settings is only visible to Admin")
}

func TestInstall_RequireRole(t *testing.T) {
	spec, err := compileString(t, `
		namespace: "S"
		entity_type: Item: {key: ["Id"], properties: {Id: int}}
		entity_set: Items: "Item"
		grant: [{privilege: "Read", on: "Items"}]
		require: [{role: "Auditor", on: "Items"}]
	`)
	require.NoError(t, err)

	cfg := hook.NewConfiguration()
	require.NoError(t, spec.Install(cfg))
	mem := querymem.New()
	mem.DefineModel(spec.Model())
	require.NoError(t, mem.Install(cfg))
	cfg.Freeze()
	queries := query.NewHandler(model.NewHandler(cfg))

	_, err = queries.Query(context.Background(), invocation.New(cfg, nil), query.Request{Expr: queryir.From("Items").Expr()})
	assert.True(t, apierr.IsForbidden(err))

	ic := invocation.New(cfg, nil, invocation.WithRoles("Auditor"))
	res, err := queries.Query(context.Background(), ic, query.Request{Expr: queryir.From("Items").Expr()})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestLoadDir(t *testing.T) {
	spec, err := LoadDir(filepath.Join("testdata", "sales"))
	require.NoError(t, err)
	assert.Equal(t, testutil.SalesModel(), spec.Model())
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(filepath.Join("testdata", "missing"))
	assert.Error(t, err)
}

func TestParseWhere(t *testing.T) {
	p, err := ParseWhere(map[string]any{
		"Status": "open",
		"Amount": map[string]any{"ge": 100},
		"Owner":  "bound.user",
		"Region": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, `Amount ge 100 and Owner eq bound.user and Region eq null and Status eq "open"`, queryir.FormatPredicate(p))

	p, err = ParseWhere(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = ParseWhere(map[string]any{"Amount": 1.5})
	assert.ErrorContains(t, err, "float values are forbidden")
}
