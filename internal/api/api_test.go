package api_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/hookpoint/internal/api"
	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/metrics"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/querymem"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/security"
	"github.com/roach88/hookpoint/internal/submit"
	"github.com/roach88/hookpoint/internal/testutil"
)

type salesAPI struct {
	shipped *[]ir.IRValue
}

func (a salesAPI) Ship(_ context.Context, args ir.IRObject) (ir.IRValue, error) {
	*a.shipped = append(*a.shipped, args["OrderId"])
	return ir.IRString("shipped"), nil
}

func newSalesAPI(t *testing.T, reg prometheus.Registerer) (*api.API, *[]ir.IRValue) {
	t.Helper()
	mem := querymem.New()
	mem.DefineModel(testutil.SalesModel())
	for set, rows := range testutil.SalesRows() {
		require.NoError(t, mem.Load(set, rows...))
	}

	var opts []api.Option
	if reg != nil {
		m, err := metrics.New(reg)
		require.NoError(t, err)
		opts = append(opts, api.WithMetrics(m))
	}
	opts = append(opts, api.WithIDs(testutil.NewSequenceIDs("api")))

	shipped := &[]ir.IRValue{}
	a, err := api.NewBuilder(opts...).
		Use(
			api.InstallerFunc(func(cfg *hook.Configuration) error {
				return hook.SetHookPoint[model.Producer](cfg, testutil.SalesProducer())
			}),
			mem,
		).
		Permissions(
			security.Grant(security.All, "Customers"),
			security.Grant(security.Read, "Orders"),
			security.Grant(security.Invoke, "Ship").To("Manager"),
		).
		Conventions(salesAPI{shipped: shipped}).
		Build()
	require.NoError(t, err)
	return a, shipped
}

func TestBuild_FreezesConfiguration(t *testing.T) {
	a, _ := newSalesAPI(t, nil)

	assert.True(t, a.Configuration().Frozen())
	err := hook.AddHookPoint[query.Inspector](a.Configuration(), security.RequireRole{Target: "Orders", Role: "x"})
	assert.True(t, apierr.IsFrozen(err))

	mapper, ok := hook.GetHookPoint[model.Mapper](a.Configuration())
	require.True(t, ok)
	assert.IsType(t, model.ContainerMapper{}, mapper)
}

func TestBuild_KeepsFirstError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := api.NewBuilder().
		Use(api.InstallerFunc(func(*hook.Configuration) error { return boom })).
		Use(api.InstallerFunc(func(*hook.Configuration) error { calls++; return nil })).
		Build()
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, calls)
}

func TestBuild_EmptyAPI(t *testing.T) {
	a, err := api.NewBuilder().Build()
	require.NoError(t, err)

	dm, err := a.Model(context.Background(), a.NewContext())
	require.NoError(t, err)
	assert.Empty(t, dm.SchemaElements())
	assert.Len(t, hook.GetHookPoints[submit.Validator](a.Configuration()), 2, "type and required validators")
}

func TestQueryAndSubmit(t *testing.T) {
	a, shipped := newSalesAPI(t, nil)
	ctx := context.Background()

	res, err := a.Submit(ctx, a.NewContext(), submit.NewChangeSet(&submit.DataModificationEntry{
		EntitySet:   "Customers",
		Operation:   submit.OpInsert,
		LocalValues: ir.Obj(ir.O("Name", ir.IRString("Northwind"))),
	}))
	require.NoError(t, err)
	inserted := res.ChangeSet.Entries[0].(*submit.DataModificationEntry)
	assert.Equal(t, ir.IRInt(3), inserted.Resource["Id"])
	assert.NotEmpty(t, inserted.CurrentETag)

	qr, err := a.Query(ctx, a.NewContext(), query.Request{
		Expr:              queryir.From("Customers").OrderBy("Id", true).Take(1).Expr(),
		IncludeTotalCount: true,
	})
	require.NoError(t, err)
	require.Len(t, qr.Rows, 1)
	assert.Equal(t, ir.IRString("Northwind"), qr.Rows[0]["Name"])
	require.NotNil(t, qr.TotalCount)
	assert.EqualValues(t, 3, *qr.TotalCount)

	ship := submit.NewChangeSet(&submit.ActionInvocationEntry{
		ActionName: "Ship",
		Arguments:  ir.Obj(ir.O("OrderId", ir.IRInt(4))),
	})
	_, err = a.Submit(ctx, a.NewContext(), ship)
	assert.True(t, apierr.IsForbidden(err))
	assert.Empty(t, *shipped)

	res, err = a.Submit(ctx, a.NewContext(invocation.WithRoles("Manager")), ship)
	require.NoError(t, err)
	assert.Equal(t, []ir.IRValue{ir.IRInt(4)}, *shipped)
	assert.Equal(t, ir.IRString("shipped"), res.ChangeSet.Entries[0].(*submit.ActionInvocationEntry).Result)
}

func TestNewContext_UsesGenerator(t *testing.T) {
	a, _ := newSalesAPI(t, nil)
	assert.Equal(t, "api-1", a.NewContext().ID())
	assert.Equal(t, "fixed", a.NewContext(invocation.WithID("fixed")).ID())
}

func TestModelBuiltOnceAcrossConcurrentCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, _ := newSalesAPI(t, reg)

	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			_, err := a.Query(context.Background(), a.NewContext(), query.Request{Expr: queryir.From("Orders").Expr()})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, a.Models().Attempts())
	n, err := promtest.GatherAndCount(reg, "hookpoint_model_builds_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
