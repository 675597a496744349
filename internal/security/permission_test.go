package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
)

func caller(roles ...string) *invocation.Context {
	return invocation.New(hook.NewConfiguration(), nil, invocation.WithRoles(roles...))
}

func TestDecide(t *testing.T) {
	set := NewPermissionSet(
		Grant(All, "Customers"),
		Grant(Read, "Orders").To("Manager"),
		Grant(Read, "Invoices"),
		Deny(Read, "Invoices").To("Intern"),
	)

	tests := []struct {
		name   string
		roles  []string
		priv   Privilege
		target string
		want   Decision
	}{
		{"all covers read", nil, Read, "Customers", Allowed},
		{"all covers delete", nil, Delete, "Customers", Allowed},
		{"role grant without role", nil, Read, "Orders", Denied},
		{"role grant with role", []string{"Manager"}, Read, "Orders", Allowed},
		{"other privilege unconfigured", []string{"Manager"}, Update, "Orders", Unconfigured},
		{"deny beats grant", []string{"Intern"}, Read, "Invoices", Denied},
		{"grant without deny role", []string{"Clerk"}, Read, "Invoices", Allowed},
		{"unknown target", nil, Read, "Suppliers", Unconfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, set.Decide(caller(tt.roles...), tt.priv, tt.target))
		})
	}
}

func TestDecide_AssertedRoleCounts(t *testing.T) {
	set := NewPermissionSet(Grant(Read, "Orders").To("Manager"))
	ic := caller()

	release := ic.AssertRole("Manager")
	assert.True(t, set.Allows(ic, Read, "Orders"))
	release()
	assert.False(t, set.Allows(ic, Read, "Orders"))
}

func TestDecide_EmptyTargetCoversEverything(t *testing.T) {
	set := NewPermissionSet(Grant(Read, "").To("Auditor"))
	assert.Equal(t, Allowed, set.Decide(caller("Auditor"), Read, "Anything"))
	assert.Equal(t, Denied, set.Decide(caller(), Read, "Anything"))
}

func TestPermission_ToCopies(t *testing.T) {
	base := Grant(Read, "Orders")
	scoped := base.To("Manager")
	assert.Empty(t, base.Role)
	assert.Equal(t, "Manager", scoped.Role)
}

func TestPrivilege_Valid(t *testing.T) {
	assert.True(t, Invoke.Valid())
	assert.False(t, Privilege("execute").Valid())
	assert.Equal(t, "unconfigured", Unconfigured.String())
}
