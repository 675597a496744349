package convention_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/convention"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/querymem"
	"github.com/roach88/hookpoint/internal/submit"
	"github.com/roach88/hookpoint/internal/testutil"
)

type countingExecutor struct {
	next  submit.Executor
	calls int
}

func (c *countingExecutor) ExecuteSubmit(ctx context.Context, sc *submit.Context) (*submit.Result, error) {
	c.calls++
	return c.next.ExecuteSubmit(ctx, sc)
}

type salesAPI struct{}

func (salesAPI) OnInsertingCustomers(_ context.Context, resource ir.IRObject) error {
	if resource["Name"] == ir.IRString("Blocked") {
		return errors.New("blocked customer")
	}
	return nil
}

func setup(t *testing.T) (*hook.Configuration, *countingExecutor, *submit.Handler) {
	t.Helper()
	cfg := hook.NewConfiguration()
	require.NoError(t, hook.SetHookPoint[model.Producer](cfg, testutil.SalesProducer()))
	mem := querymem.New()
	mem.DefineModel(testutil.SalesModel())
	require.NoError(t, mem.Install(cfg))
	exec := &countingExecutor{next: mem}
	require.NoError(t, hook.SetHookPoint[submit.Executor](cfg, exec))
	require.NoError(t, convention.Install(cfg, convention.Scan(salesAPI{})))
	cfg.Freeze()
	return cfg, exec, submit.NewHandler(model.NewHandler(cfg))
}

func insertCustomer(values ir.IRObject) *submit.ChangeSet {
	return submit.NewChangeSet(&submit.DataModificationEntry{
		EntitySet:   "Customers",
		Operation:   submit.OpInsert,
		LocalValues: values,
	})
}

func TestRequiredNullNeverReachesExecutor(t *testing.T) {
	cfg, exec, h := setup(t)
	sc := submit.NewContext(invocation.New(cfg, nil), insertCustomer(ir.Obj(ir.O("Name", ir.IRNull{}))))

	_, err := h.Submit(context.Background(), sc)
	require.True(t, apierr.IsValidation(err))
	assert.Zero(t, exec.calls)

	var ae *apierr.Error
	require.True(t, errors.As(err, &ae))
	require.Len(t, ae.Results, 1)
	assert.Equal(t, "Name", ae.Results[0].Property)
	assert.Equal(t, "Customers", ae.Results[0].Target)
}

func TestRequiredMissingOnInsert(t *testing.T) {
	cfg, exec, h := setup(t)
	sc := submit.NewContext(invocation.New(cfg, nil), insertCustomer(ir.Obj(ir.O("Region", ir.IRString("east")))))

	_, err := h.Submit(context.Background(), sc)
	assert.True(t, apierr.IsValidation(err))
	assert.Zero(t, exec.calls)
}

func TestValidationCollectsAllErrors(t *testing.T) {
	cfg, _, h := setup(t)
	sc := submit.NewContext(invocation.New(cfg, nil), insertCustomer(ir.Obj(
		ir.O("Region", ir.IRInt(5)),
		ir.O("Color", ir.IRString("red")),
	)))

	_, err := h.Submit(context.Background(), sc)
	var ae *apierr.Error
	require.True(t, errors.As(err, &ae))
	var props []string
	for _, d := range ae.Results {
		props = append(props, d.Property)
	}
	assert.ElementsMatch(t, []string{"Name", "Region", "Color"}, props)
}

func TestConventionalFilterRunsBeforeExecution(t *testing.T) {
	cfg, exec, h := setup(t)

	sc := submit.NewContext(invocation.New(cfg, nil), insertCustomer(ir.Obj(ir.O("Name", ir.IRString("Blocked")))))
	_, err := h.Submit(context.Background(), sc)
	assert.ErrorContains(t, err, "blocked customer")
	assert.Zero(t, exec.calls)

	sc = submit.NewContext(invocation.New(cfg, nil), insertCustomer(ir.Obj(ir.O("Name", ir.IRString("Northwind")))))
	_, err = h.Submit(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, 1, exec.calls)
}
