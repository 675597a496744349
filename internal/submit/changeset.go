// Package submit runs change sets through validation, authorization,
// preparation, filtering, and execution.
//
// The stages run strictly in sequence:
//
//	Validating → Authorizing → Preparing → FilteringBefore → Executing → FilteringAfter → Completed
//
// Any stage may fault the submit, after which nothing further runs.
package submit

import (
	"strings"

	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
)

// Operation is the kind of data modification.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Entry is one unit of a change set.
//
// This is a sealed interface - only types in this package implement it.
type Entry interface {
	// Kind returns "insert", "update", "delete", or "action".
	Kind() string
	entry()
}

// DataModificationEntry inserts, updates, or deletes one entity.
type DataModificationEntry struct {
	EntitySet string
	Operation Operation

	// Key identifies the target of an update or delete. Inserts may supply
	// it; otherwise the preparer generates one.
	Key ir.IRObject

	// ETag, when set, must match the stored resource's ETag.
	ETag string

	// OriginalValues, when set, are the values the caller last read. Their
	// ETag must match the stored resource's ETag.
	OriginalValues ir.IRObject

	// LocalValues are the property values being written.
	LocalValues ir.IRObject

	// IsFullReplace replaces every property on update instead of merging.
	IsFullReplace bool

	// The fields below are populated during the submit.

	// EntityType is resolved from the model while validating.
	EntityType *model.EntityType

	// Resource is the row as it will be written (insert and update) or as
	// it was found (delete). Set by the preparer.
	Resource ir.IRObject

	// CurrentETag is the stored ETag the preparer observed. Executors use
	// it to detect writes that raced the submit.
	CurrentETag string
}

// Kind implements Entry.
func (e *DataModificationEntry) Kind() string { return string(e.Operation) }
func (*DataModificationEntry) entry()         {}

// ActionInvocationEntry invokes an action.
type ActionInvocationEntry struct {
	ActionName string
	Arguments  ir.IRObject

	// Result is populated by the executor.
	Result ir.IRValue
}

// Kind implements Entry.
func (*ActionInvocationEntry) Kind() string { return "action" }
func (*ActionInvocationEntry) entry()       {}

// Target returns the entity set or action an entry addresses.
func Target(e Entry) string {
	switch v := e.(type) {
	case *DataModificationEntry:
		return v.EntitySet
	case *ActionInvocationEntry:
		return v.ActionName
	}
	return ""
}

// ChangeSet is the ordered list of entries of one submit. Entries are
// mutated in place during the submit; the list itself is fixed.
type ChangeSet struct {
	Entries []Entry
}

// NewChangeSet creates a change set over entries.
func NewChangeSet(entries ...Entry) *ChangeSet {
	return &ChangeSet{Entries: entries}
}

// Writable returns v without annotation properties (names starting with
// "@"), which are never stored.
func Writable(v ir.IRObject) ir.IRObject {
	out := make(ir.IRObject, len(v))
	for k, val := range v {
		if !strings.HasPrefix(k, "@") {
			out[k] = val
		}
	}
	return out
}
