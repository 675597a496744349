// Package security implements role-based permissions over the model, query,
// and submit pipelines.
//
// Permissions are grants or denies of a privilege on a target (an entity
// set, singleton, or operation import name) to a role. Visibility is
// allow-if-unconfigured: an element is hidden only when some permission
// speaks about inspecting it and none lets the caller. Query inspection and
// submit authorization are deny-if-unconfigured: a reference or entry with
// no matching grant is rejected.
package security

import (
	"slices"

	"github.com/roach88/hookpoint/internal/invocation"
)

// Privilege is an operation a permission grants or denies.
type Privilege string

const (
	All     Privilege = "all"
	Inspect Privilege = "inspect"
	Create  Privilege = "create"
	Read    Privilege = "read"
	Update  Privilege = "update"
	Delete  Privilege = "delete"
	Invoke  Privilege = "invoke"
)

// Privileges lists every privilege in declaration order.
var Privileges = []Privilege{All, Inspect, Create, Read, Update, Delete, Invoke}

// Valid reports whether p is a known privilege.
func (p Privilege) Valid() bool {
	return slices.Contains(Privileges, p)
}

// Permission grants or denies a privilege.
type Permission struct {
	Privilege Privilege `json:"privilege"`

	// On names the target; empty means every target.
	On string `json:"on,omitempty"`

	// Role restricts the permission to callers holding it; empty means
	// every caller.
	Role string `json:"to,omitempty"`

	Deny bool `json:"deny,omitempty"`
}

// Grant allows priv on target to every caller. Use To to restrict it.
func Grant(priv Privilege, on string) Permission {
	return Permission{Privilege: priv, On: on}
}

// Deny forbids priv on target to every caller. Use To to restrict it.
func Deny(priv Privilege, on string) Permission {
	return Permission{Privilege: priv, On: on, Deny: true}
}

// To returns a copy of p restricted to role.
func (p Permission) To(role string) Permission {
	p.Role = role
	return p
}

func (p Permission) covers(priv Privilege, target string) bool {
	return (p.On == "" || p.On == target) && (p.Privilege == All || p.Privilege == priv)
}

func (p Permission) appliesTo(ic *invocation.Context) bool {
	return p.Role == "" || ic.HasRole(p.Role)
}

// Decision is the outcome of evaluating a permission set.
type Decision int

const (
	// Unconfigured means no permission covers the privilege and target.
	Unconfigured Decision = iota
	Allowed
	Denied
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	}
	return "unconfigured"
}

// PermissionSet is an immutable list of permissions.
type PermissionSet struct {
	perms []Permission
}

// NewPermissionSet creates a set from perms.
func NewPermissionSet(perms ...Permission) *PermissionSet {
	return &PermissionSet{perms: slices.Clone(perms)}
}

// Permissions returns a copy of the permissions.
func (s *PermissionSet) Permissions() []Permission {
	return slices.Clone(s.perms)
}

// Len returns the number of permissions.
func (s *PermissionSet) Len() int {
	return len(s.perms)
}

// Decide evaluates priv on target for the caller. A matching deny wins
// over any grant. When permissions cover priv on target but none applies
// to the caller's roles, the caller is denied.
func (s *PermissionSet) Decide(ic *invocation.Context, priv Privilege, target string) Decision {
	covered, granted := false, false
	for _, p := range s.perms {
		if !p.covers(priv, target) {
			continue
		}
		covered = true
		if !p.appliesTo(ic) {
			continue
		}
		if p.Deny {
			return Denied
		}
		granted = true
	}
	switch {
	case granted:
		return Allowed
	case covered:
		return Denied
	}
	return Unconfigured
}

// Allows is Decide with unconfigured treated as denied.
func (s *PermissionSet) Allows(ic *invocation.Context, priv Privilege, target string) bool {
	return s.Decide(ic, priv, target) == Allowed
}
