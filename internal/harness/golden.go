package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/submit"
)

// traceEvent renders one step as a trace event:
//
//	{"count":3,"expr":"...","kind":"query","name":"...","roles":["Manager"],"rows":[...],"step":1}
//
// Annotation properties such as @etag are left out of rows and entries.
func traceEvent(n int, step *Step, obs observed) ir.IRObject {
	event := ir.IRObject{
		"step": ir.IRInt(n),
		"name": ir.IRString(step.Name),
		"kind": ir.IRString(step.Kind()),
	}
	if len(step.Roles) > 0 {
		roles := make(ir.IRArray, len(step.Roles))
		for i, r := range step.Roles {
			roles[i] = ir.IRString(r)
		}
		event["roles"] = roles
	}
	if obs.err != nil {
		event["error"] = ir.IRString(errorCode(obs.err))
	}
	if obs.executed != nil {
		event["executed"] = ir.IRBool(*obs.executed)
	}
	if obs.expr != nil {
		event["expr"] = ir.IRString(queryir.Format(obs.expr))
	}
	if obs.count != nil {
		event["count"] = ir.IRInt(*obs.count)
	}
	if obs.err == nil && step.Query != nil && !step.Query.CountOnly {
		rows := make(ir.IRArray, len(obs.rows))
		for i, row := range obs.rows {
			rows[i] = submit.Writable(row)
		}
		event["rows"] = rows
	}
	if obs.entries != nil {
		entries := make(ir.IRArray, len(obs.entries))
		for i, e := range obs.entries {
			entries[i] = entryEvent(e)
		}
		event["entries"] = entries
	}
	return event
}

func entryEvent(e submit.Entry) ir.IRObject {
	out := ir.IRObject{
		"kind":   ir.IRString(e.Kind()),
		"target": ir.IRString(submit.Target(e)),
	}
	switch v := e.(type) {
	case *submit.DataModificationEntry:
		out["key"] = v.Key
		out["resource"] = submit.Writable(v.Resource)
	case *submit.ActionInvocationEntry:
		out["result"] = v.Result
	}
	return out
}

// Snapshot renders the trace of a run as canonical JSON:
//
//	{"scenario":"<name>","trace":[...]}
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.IRArray, len(result.Trace))
	for i, event := range result.Trace {
		trace[i] = event
	}
	return ir.MarshalCanonical(ir.IRObject{
		"scenario": ir.IRString(name),
		"trace":    trace,
	})
}

// RunWithGolden runs a scenario, fails the test for every unmet
// expectation, and compares the trace with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario, opts ...Option) error {
	t.Helper()

	result, err := Run(context.Background(), s, opts...)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, s.Name, result)
}

// AssertGolden compares an existing result's trace with the golden file
// named after the scenario, without re-running it.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
