package harness

import (
	"fmt"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/submit"
)

// AssertionError describes one expectation a step did not meet.
type AssertionError struct {
	Field    string // expectation that failed, e.g. "rows[1].Amount"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// checkExpect compares what a step produced with its expectations and
// returns one message per mismatch.
func checkExpect(step *Step, obs observed) []string {
	var errs []error
	want := step.Expect

	switch {
	case want.Error != "":
		if code := errorCode(obs.err); code != want.Error {
			errs = append(errs, &AssertionError{Field: "error", Expected: want.Error, Actual: orNone(code)})
		}
	case obs.err != nil:
		errs = append(errs, &AssertionError{Field: "error", Expected: "none", Actual: obs.err.Error()})
	}

	if want.Rows != nil {
		errs = append(errs, matchObjects("rows", want.Rows, obs.rows)...)
	}
	if want.Count != nil {
		switch {
		case obs.count == nil:
			errs = append(errs, &AssertionError{Field: "count", Expected: fmt.Sprint(*want.Count), Actual: "none"})
		case *obs.count != *want.Count:
			errs = append(errs, &AssertionError{Field: "count", Expected: fmt.Sprint(*want.Count), Actual: fmt.Sprint(*obs.count)})
		}
	}
	if want.Executed != nil {
		got := obs.executed != nil && *obs.executed
		if got != *want.Executed {
			errs = append(errs, &AssertionError{Field: "executed", Expected: fmt.Sprint(*want.Executed), Actual: fmt.Sprint(got)})
		}
	}
	if want.Entries != nil {
		got := make([]ir.IRObject, len(obs.entries))
		for i, e := range obs.entries {
			got[i] = entryOutput(e)
		}
		errs = append(errs, matchObjects("entries", want.Entries, got)...)
	}

	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return msgs
}

// matchObjects requires len(want) == len(got) and that every field listed
// in want[i] equals the same field of got[i].
func matchObjects(field string, want []map[string]any, got []ir.IRObject) []error {
	if len(want) != len(got) {
		return []error{&AssertionError{
			Field:    field,
			Expected: fmt.Sprintf("%d items", len(want)),
			Actual:   fmt.Sprintf("%d items", len(got)),
		}}
	}
	var errs []error
	for i, w := range want {
		expected, err := ir.ObjectFromNative(w)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s[%d]: %w", field, i, err))
			continue
		}
		for _, k := range expected.SortedKeys() {
			if !ir.Equal(expected[k], got[i][k]) {
				errs = append(errs, &AssertionError{
					Field:    fmt.Sprintf("%s[%d].%s", field, i, k),
					Expected: render(expected[k]),
					Actual:   render(got[i][k]),
				})
			}
		}
	}
	return errs
}

// entryOutput is the part of an executed entry expectations match against:
// the written resource, or the result of an action.
func entryOutput(e submit.Entry) ir.IRObject {
	switch v := e.(type) {
	case *submit.DataModificationEntry:
		return submit.Writable(v.Resource)
	case *submit.ActionInvocationEntry:
		return ir.IRObject{"result": v.Result}
	}
	return ir.IRObject{}
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := apierr.CodeOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}

func render(v ir.IRValue) string {
	if v == nil {
		return "absent"
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
