package views

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/testutil"
)

func TestNewSet_RejectsDuplicates(t *testing.T) {
	body := queryir.From("Orders").Expr()
	_, err := NewSet(
		View{Name: "Recent", EntityType: "Sales.Order", Body: body},
		View{Name: "Recent", EntityType: "Sales.Order", Body: body},
	)
	assert.ErrorContains(t, err, "duplicate view Recent")
}

func TestNewSet_RejectsInvalidBody(t *testing.T) {
	_, err := NewSet(View{Name: "Broken", EntityType: "Sales.Order", Body: queryir.From("Orders").Take(-5).Expr()})
	assert.ErrorContains(t, err, "view Broken")
}

func TestExtendModel(t *testing.T) {
	s, err := NewSet(View{Name: "Recent", EntityType: "Sales.Order", Body: queryir.From("Orders").Expr()})
	require.NoError(t, err)

	bc := &model.BuildContext{Model: testutil.SalesModel()}
	require.NoError(t, s.ExtendModel(context.Background(), bc))
	es, ok := bc.Model.Container().FindEntitySet("Recent")
	require.True(t, ok)
	assert.Equal(t, "Sales.Order", es.EntityType)
}

func TestExtendModel_UnknownType(t *testing.T) {
	s, err := NewSet(View{Name: "Recent", EntityType: "Sales.Invoice", Body: queryir.From("Orders").Expr()})
	require.NoError(t, err)
	err = s.ExtendModel(context.Background(), &model.BuildContext{Model: testutil.SalesModel()})
	assert.ErrorContains(t, err, "unknown entity type Sales.Invoice")
}

type fallback struct{ calls *int }

func (f fallback) Expand(context.Context, *query.ExpressionContext) (queryir.Expr, bool, error) {
	*f.calls++
	return nil, false, nil
}

func TestChain(t *testing.T) {
	body := queryir.From("Orders").Take(3).Expr()
	s, err := NewSet(View{Name: "Recent", EntityType: "Sales.Order", Body: body})
	require.NoError(t, err)
	var calls int
	exp := s.Chain(fallback{calls: &calls})
	ic := invocation.New(hook.NewConfiguration(), nil)

	got, ok, err := exp.Expand(context.Background(), &query.ExpressionContext{
		Context:        ic,
		ModelReference: &query.ModelReference{Kind: query.RefEntitySet, Name: "Recent"},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, body, got)
	assert.Zero(t, calls)

	_, ok, err = exp.Expand(context.Background(), &query.ExpressionContext{
		Context:        ic,
		ModelReference: &query.ModelReference{Kind: query.RefEntitySet, Name: "Orders"},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestTryGetRelevantType(t *testing.T) {
	s, err := NewSet(View{Name: "Recent", EntityType: "Sales.Order", Body: queryir.From("Orders").Expr()})
	require.NoError(t, err)
	typ, ok := s.TryGetRelevantType(context.Background(), nil, "Recent")
	assert.True(t, ok)
	assert.Equal(t, "Sales.Order", typ)
	_, ok = s.TryGetRelevantType(context.Background(), nil, "Orders")
	assert.False(t, ok)
}
