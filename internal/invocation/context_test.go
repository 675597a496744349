package invocation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/ir"
)

type fixedID string

func (f fixedID) Generate() string { return string(f) }

func TestNewGeneratesRequestID(t *testing.T) {
	ic := New(hook.NewConfiguration(), nil)
	assert.Len(t, ic.ID(), 36)

	ic = New(hook.NewConfiguration(), fixedID("req-1"))
	assert.Equal(t, "req-1", ic.ID())

	ic = New(hook.NewConfiguration(), fixedID("req-1"), WithID("explicit"))
	assert.Equal(t, "explicit", ic.ID())
}

func TestRolesAreExplicit(t *testing.T) {
	ic := New(hook.NewConfiguration(), nil, WithRoles("Sales", "Admin"))

	assert.Equal(t, []string{"Admin", "Sales"}, ic.Roles())
	assert.True(t, ic.HasRole("Sales"))
	assert.False(t, ic.HasRole("Manager"))
}

func TestAssertRoleNestsAndReleases(t *testing.T) {
	ic := New(hook.NewConfiguration(), nil)

	outer := ic.AssertRole("Manager")
	inner := ic.AssertRole("Manager")
	assert.True(t, ic.HasRole("Manager"))
	assert.Equal(t, []string{"Manager"}, ic.EffectiveRoles())
	assert.Empty(t, ic.Roles(), "assertions never change the explicit role set")

	inner()
	inner()
	assert.True(t, ic.HasRole("Manager"), "double release must not drop the outer assertion")

	outer()
	assert.False(t, ic.HasRole("Manager"))
}

func TestPropertyBagIsLazy(t *testing.T) {
	ic := New(hook.NewConfiguration(), nil)

	_, ok := ic.Property("missing")
	assert.False(t, ok)

	ic.SetProperty("k", 42)
	v, ok := ic.Property("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

type memo struct{ n int }

func TestTypedValues(t *testing.T) {
	ic := New(hook.NewConfiguration(), nil)

	_, ok := Value[*memo](ic)
	assert.False(t, ok)

	SetValue(ic, &memo{n: 1})
	got, ok := Value[*memo](ic)
	require.True(t, ok)
	assert.Equal(t, 1, got.n)

	calls := 0
	create := func() *memo { calls++; return &memo{n: 2} }
	assert.Same(t, got, GetOrCreate(ic, create), "existing value wins")
	assert.Equal(t, 0, calls)
}

func TestGetOrCreateMemoizes(t *testing.T) {
	ic := New(hook.NewConfiguration(), nil)
	calls := 0
	create := func() *memo { calls++; return &memo{n: calls} }

	first := GetOrCreate(ic, create)
	second := GetOrCreate(ic, create)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestBoundValues(t *testing.T) {
	ic := New(hook.NewConfiguration(), nil, WithBound("user", ir.IRString("alice")))

	v, ok := ic.Bound("user")
	require.True(t, ok)
	assert.Equal(t, ir.IRString("alice"), v)

	_, ok = ic.Bound("tenant")
	assert.False(t, ok)
}

func TestContextRoundTrip(t *testing.T) {
	ic := New(hook.NewConfiguration(), fixedID("req-9"))
	ctx := NewContext(context.Background(), ic)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, ic, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
