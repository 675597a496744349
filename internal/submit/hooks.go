package submit

import (
	"context"
	"fmt"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/ir"
)

// Validator checks one entry. Every validator runs on every entry, most
// recently registered first, and all results are reported together.
type Validator interface {
	ValidateEntry(ctx context.Context, sc *Context, e Entry, results *ValidationResults) error
}

// Authorizer decides whether an entry may be submitted. Authorizers run
// most recently registered first; the first false aborts the submit.
type Authorizer interface {
	AuthorizeEntry(ctx context.Context, sc *Context, e Entry) (bool, error)
}

// Filter observes entries around execution. OnExecutingEntry runs most
// recently registered first; OnExecutedEntry runs in registration order.
type Filter interface {
	OnExecutingEntry(ctx context.Context, sc *Context, e Entry) error
	OnExecutedEntry(ctx context.Context, sc *Context, e Entry) error
}

// Initializer prepares every entry of the change set before execution:
// it resolves keys, loads current rows, and checks concurrency tokens.
// Singleton contract.
type Initializer interface {
	InitializeChangeSet(ctx context.Context, sc *Context) error
}

// Executor applies the prepared change set. Singleton contract.
type Executor interface {
	ExecuteSubmit(ctx context.Context, sc *Context) (*Result, error)
}

// ActionInvoker runs actions. Invokers are asked most recently registered
// first; the first that handles the entry wins.
type ActionInvoker interface {
	InvokeAction(ctx context.Context, sc *Context, e *ActionInvocationEntry) (result ir.IRValue, handled bool, err error)
}

// InvokeAction runs e through the registered invokers and stores the
// result on the entry.
func InvokeAction(ctx context.Context, sc *Context, e *ActionInvocationEntry) error {
	for _, inv := range hook.Ordered[ActionInvoker](sc.Configuration(), hook.Reverse) {
		res, handled, err := inv.InvokeAction(ctx, sc, e)
		if err != nil {
			return fmt.Errorf("action %s: %w", e.ActionName, err)
		}
		if handled {
			if res == nil {
				res = ir.IRNull{}
			}
			e.Result = res
			return nil
		}
	}
	return apierr.NewNotImplemented("action " + e.ActionName)
}
