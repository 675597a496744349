package harness

import "github.com/roach88/hookpoint/internal/ir"

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every step met its expectations.
	Pass bool

	// Trace holds one event per step, in order. Events are canonical IR
	// objects so they can be compared against golden files.
	Trace []ir.IRObject

	// Errors describes each failed expectation. Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []ir.IRObject{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(event ir.IRObject) {
	r.Trace = append(r.Trace, event)
}
