package submit

import (
	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/model"
)

// State is a stage of the submit state machine.
type State string

const (
	StateCreated         State = "created"
	StateValidating      State = "validating"
	StateAuthorizing     State = "authorizing"
	StatePreparing       State = "preparing"
	StateFilteringBefore State = "filtering_before"
	StateExecuting       State = "executing"
	StateFilteringAfter  State = "filtering_after"
	StateCompleted       State = "completed"
	StateFaulted         State = "faulted"
)

// Result is what the executor produced: either the completed change set
// or the error that stopped it.
type Result struct {
	ChangeSet *ChangeSet
	Err       error
}

// Context is the per-submit state handed to every submit hook.
type Context struct {
	*invocation.Context

	// Model is the full model of the API, set before validation.
	Model model.Model

	changeSet *ChangeSet
	result    *Result
	state     State
	history   []State
}

// NewContext creates a submit context for cs.
func NewContext(ic *invocation.Context, cs *ChangeSet) *Context {
	return &Context{Context: ic, changeSet: cs, state: StateCreated}
}

// ChangeSet returns the change set being submitted.
func (c *Context) ChangeSet() *ChangeSet {
	return c.changeSet
}

// SetChangeSet replaces the change set. It fails once a result has been
// recorded, since the result describes the earlier change set.
func (c *Context) SetChangeSet(cs *ChangeSet) error {
	if c.result != nil {
		return apierr.NewInvalidState("change set cannot be replaced after the submit produced a result")
	}
	c.changeSet = cs
	return nil
}

// Result returns the executor's result, or nil before execution.
func (c *Context) Result() *Result {
	return c.result
}

// State returns the current stage.
func (c *Context) State() State {
	return c.state
}

// History returns every stage entered, in order.
func (c *Context) History() []State {
	return append([]State(nil), c.history...)
}

func (c *Context) enter(s State) {
	c.state = s
	c.history = append(c.history, s)
}
