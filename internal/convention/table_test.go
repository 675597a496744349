package convention

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/submit"
)

type widgetAPI struct {
	inserting []ir.IRObject
	updated   int
}

// Wrong parameter type: must be skipped, not invoked.
func (a *widgetAPI) OnInsertingWidgets(_ context.Context, name string) error {
	panic("must not be called: " + name)
}

func (a *widgetAPI) OnInsertingGadgets(_ context.Context, resource ir.IRObject) error {
	a.inserting = append(a.inserting, resource)
	return nil
}

func (a *widgetAPI) OnUpdatedGadgets(context.Context, ir.IRObject) error {
	a.updated++
	return nil
}

func (a *widgetAPI) CanDeleteGadgets(ctx context.Context) (bool, error) {
	ic, ok := invocation.FromContext(ctx)
	return ok && ic.HasRole("Admin"), nil
}

// Wrong result type.
func (a *widgetAPI) CanInsertGadgets(context.Context) bool { return false }

func (a *widgetAPI) OnFilterGadgets(_ context.Context, e queryir.Expr) (queryir.Expr, error) {
	return &queryir.Where{Input: e, Pred: &queryir.Equals{Field: "Visible", Value: ir.IRBool(true)}}, nil
}

func (a *widgetAPI) Polish(_ context.Context, args ir.IRObject) (ir.IRValue, error) {
	if args["Fail"] != nil {
		return nil, errors.New("polish failed")
	}
	return ir.IRString("shiny"), nil
}

// Helper is not a convention and must be ignored.
func (a *widgetAPI) Helper() string { return "helper" }

// OnFilter with an empty target is not a convention.
func (a *widgetAPI) OnFilter() {}

func scanned() (*widgetAPI, *Table) {
	api := &widgetAPI{}
	return api, Scan(api)
}

func newSubmitContext(roles ...string) *submit.Context {
	ic := invocation.New(hook.NewConfiguration(), nil, invocation.WithRoles(roles...))
	return submit.NewContext(ic, submit.NewChangeSet())
}

func TestScan_Bindings(t *testing.T) {
	_, table := scanned()

	var methods []string
	for _, b := range table.Bindings() {
		methods = append(methods, b.Method)
	}
	assert.Equal(t, []string{"CanDeleteGadgets", "OnFilterGadgets", "OnInsertingGadgets", "OnUpdatedGadgets", "Polish"}, methods)

	skipped := table.Skipped()
	require.Len(t, skipped, 2)
	assert.Equal(t, "CanInsertGadgets", skipped[0].Method)
	assert.Equal(t, "OnInsertingWidgets", skipped[1].Method)
	assert.Equal(t, "func(context.Context, string) error", skipped[1].Got)
}

func TestScan_Nil(t *testing.T) {
	assert.Zero(t, Scan(nil).Len())
}

func TestFilter_MismatchedShapeIsNoOp(t *testing.T) {
	_, table := scanned()
	entry := &submit.DataModificationEntry{EntitySet: "Widgets", Operation: submit.OpInsert, LocalValues: ir.Obj()}

	assert.NotPanics(t, func() {
		require.NoError(t, table.Filter().OnExecutingEntry(context.Background(), newSubmitContext(), entry))
	})
}

func TestFilter_BeforeAndAfter(t *testing.T) {
	api, table := scanned()
	sc := newSubmitContext()
	insert := &submit.DataModificationEntry{
		EntitySet: "Gadgets", Operation: submit.OpInsert,
		Resource: ir.Obj(ir.O("Id", ir.IRInt(1))),
	}
	update := &submit.DataModificationEntry{EntitySet: "Gadgets", Operation: submit.OpUpdate}

	require.NoError(t, table.Filter().OnExecutingEntry(context.Background(), sc, insert))
	require.NoError(t, table.Filter().OnExecutedEntry(context.Background(), sc, insert))
	require.NoError(t, table.Filter().OnExecutedEntry(context.Background(), sc, update))

	assert.Equal(t, []ir.IRObject{insert.Resource}, api.inserting)
	assert.Equal(t, 1, api.updated)
}

func TestAuthorizer(t *testing.T) {
	_, table := scanned()
	del := &submit.DataModificationEntry{EntitySet: "Gadgets", Operation: submit.OpDelete}

	ok, err := table.Authorizer().AuthorizeEntry(context.Background(), newSubmitContext(), del)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = table.Authorizer().AuthorizeEntry(context.Background(), newSubmitContext("Admin"), del)
	require.NoError(t, err)
	assert.True(t, ok)

	// CanInsertGadgets has the wrong shape, so inserts have no opinion.
	ok, err = table.Authorizer().AuthorizeEntry(context.Background(), newSubmitContext(),
		&submit.DataModificationEntry{EntitySet: "Gadgets", Operation: submit.OpInsert})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestActionInvoker(t *testing.T) {
	_, table := scanned()
	inv := table.ActionInvoker()

	res, handled, err := inv.InvokeAction(context.Background(), newSubmitContext(), &submit.ActionInvocationEntry{ActionName: "Polish"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, ir.IRString("shiny"), res)

	_, handled, err = inv.InvokeAction(context.Background(), newSubmitContext(), &submit.ActionInvocationEntry{
		ActionName: "Polish", Arguments: ir.Obj(ir.O("Fail", ir.IRBool(true))),
	})
	assert.True(t, handled)
	assert.ErrorContains(t, err, "polish failed")

	_, handled, err = inv.InvokeAction(context.Background(), newSubmitContext(), &submit.ActionInvocationEntry{ActionName: "Helper"})
	require.NoError(t, err)
	assert.False(t, handled)
}
