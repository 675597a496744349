package security

import (
	"context"
	"log/slog"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/submit"
)

// VisibilityFilter hides model elements whose inspection the caller is
// denied. Elements no permission speaks about stay visible.
type VisibilityFilter struct {
	Permissions *PermissionSet
}

// SchemaElementVisible implements model.VisibilityFilter.
func (f VisibilityFilter) SchemaElementVisible(ic *invocation.Context, e model.SchemaElement) bool {
	return f.Permissions.Decide(ic, Inspect, e.FullName()) != Denied
}

// ContainerElementVisible implements model.VisibilityFilter.
func (f VisibilityFilter) ContainerElementVisible(ic *invocation.Context, e model.ContainerElement) bool {
	return f.Permissions.Decide(ic, Inspect, e.ElementName()) != Denied
}

// Inspector requires Read on every entity set and singleton a query
// touches, and Invoke on every function it calls. References inside an
// expansion are checked too, against the roles active at that point.
type Inspector struct {
	Permissions *PermissionSet
}

// Inspect implements query.Inspector.
func (i Inspector) Inspect(_ context.Context, ec *query.ExpressionContext) (bool, error) {
	priv := Read
	if ec.ModelReference.Kind == query.RefFunctionImport {
		priv = Invoke
	}
	ok := i.Permissions.Allows(ec.Context, priv, ec.ModelReference.Name)
	if !ok {
		slog.Debug("permission denied",
			"request_id", ec.ID(),
			"privilege", string(priv),
			"target", ec.ModelReference.Name,
			"embedded", ec.Embedded,
		)
	}
	return ok, nil
}

// Authorizer requires Create, Update, or Delete on the entity set of a
// data modification, and Invoke on an action.
type Authorizer struct {
	Permissions *PermissionSet
}

// AuthorizeEntry implements submit.Authorizer.
func (a Authorizer) AuthorizeEntry(_ context.Context, sc *submit.Context, e submit.Entry) (bool, error) {
	var priv Privilege
	switch v := e.(type) {
	case *submit.DataModificationEntry:
		switch v.Operation {
		case submit.OpInsert:
			priv = Create
		case submit.OpUpdate:
			priv = Update
		case submit.OpDelete:
			priv = Delete
		}
	case *submit.ActionInvocationEntry:
		priv = Invoke
	}
	if priv == "" {
		return false, nil
	}
	return a.Permissions.Allows(sc.Context, priv, submit.Target(e)), nil
}

// AssertPolicy activates Roles while the expansion of Target is visited.
// The roles are released when the nested visit ends, whatever its outcome.
type AssertPolicy struct {
	Target string
	Roles  []string
}

type assertExpander struct {
	policy AssertPolicy
	next   query.Expander
}

// Chain wraps next so that expanding Target asserts the policy's roles.
func (p AssertPolicy) Chain(next query.Expander) query.Expander {
	return assertExpander{policy: p, next: next}
}

func (a assertExpander) Expand(ctx context.Context, ec *query.ExpressionContext) (queryir.Expr, bool, error) {
	if a.next == nil {
		return nil, false, nil
	}
	body, expanded, err := a.next.Expand(ctx, ec)
	if err != nil || !expanded || ec.ModelReference.Name != a.policy.Target {
		return body, expanded, err
	}
	releases := make([]func(), 0, len(a.policy.Roles))
	for _, role := range a.policy.Roles {
		releases = append(releases, ec.AssertRole(role))
	}
	ec.SetAfterNestedVisitCallback(func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	})
	slog.Debug("roles asserted",
		"request_id", ec.ID(),
		"target", a.policy.Target,
		"roles", a.policy.Roles,
	)
	return body, true, nil
}

// RequireRole rejects every reference to Target unless the caller holds
// Role.
type RequireRole struct {
	Target string
	Role   string
}

// Inspect implements query.Inspector.
func (r RequireRole) Inspect(_ context.Context, ec *query.ExpressionContext) (bool, error) {
	if ec.ModelReference.Name != r.Target {
		return true, nil
	}
	return ec.HasRole(r.Role), nil
}

// Install registers the visibility filter, inspector, and authorizer for
// perms. With no permissions nothing is registered, leaving the API open.
func Install(cfg *hook.Configuration, perms *PermissionSet) error {
	if perms == nil || perms.Len() == 0 {
		return nil
	}
	if err := hook.AddHookPoint[model.VisibilityFilter](cfg, VisibilityFilter{Permissions: perms}); err != nil {
		return err
	}
	if err := hook.AddHookPoint[query.Inspector](cfg, Inspector{Permissions: perms}); err != nil {
		return err
	}
	return hook.AddHookPoint[submit.Authorizer](cfg, Authorizer{Permissions: perms})
}

// InstallAssertPolicies chains each policy over the registered expander.
func InstallAssertPolicies(cfg *hook.Configuration, policies ...AssertPolicy) error {
	for _, p := range policies {
		if err := hook.ChainPrevious[query.Expander](cfg, p.Chain); err != nil {
			return err
		}
	}
	return nil
}
