package submit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
)

// RowLoader reads the stored state of one entity.
type RowLoader interface {
	LoadRow(ctx context.Context, set string, key ir.IRObject) (row ir.IRObject, etag string, found bool, err error)
}

// KeyGenerator assigns a key to an insert that did not supply one.
type KeyGenerator func(ctx context.Context, set string, et *model.EntityType) (ir.IRObject, error)

// Preparer is an Initializer over any store that can load rows by key.
//
// Inserts get the caller's values plus a generated key when none was
// given; an existing key is a conflict. Updates and deletes load the
// current row first, so a missing row is RESOURCE_NOT_FOUND even when the
// caller also sent a stale ETag; only an existing row is checked for
// PRECONDITION_FAILED.
type Preparer struct {
	Loader RowLoader
	Keys   KeyGenerator
}

// InitializeChangeSet implements Initializer.
func (p Preparer) InitializeChangeSet(ctx context.Context, sc *Context) error {
	for _, e := range sc.ChangeSet().Entries {
		dm, ok := e.(*DataModificationEntry)
		if !ok {
			continue
		}
		if err := p.prepare(ctx, dm); err != nil {
			return err
		}
	}
	return nil
}

func (p Preparer) prepare(ctx context.Context, e *DataModificationEntry) error {
	et := e.EntityType
	if et == nil {
		return fmt.Errorf("entry for %s was not resolved", e.EntitySet)
	}
	local := writableFor(et, e.LocalValues)

	if e.Operation == OpInsert {
		row := local.Merge(e.Key)
		key, err := KeyOf(et, row)
		if err != nil {
			if p.Keys == nil {
				return err
			}
			if key, err = p.Keys(ctx, e.EntitySet, et); err != nil {
				return err
			}
			row = row.Merge(key)
		}
		_, _, found, err := p.Loader.LoadRow(ctx, e.EntitySet, key)
		if err != nil {
			return err
		}
		if found {
			ks, _ := ir.KeyString(key)
			return apierr.NewConflict(e.EntitySet, "key "+ks+" already exists")
		}
		e.Key = key
		e.Resource = row
		e.CurrentETag = ""
		return nil
	}

	key, err := KeyOf(et, e.Key)
	if err != nil {
		return err
	}
	current, etag, found, err := p.Loader.LoadRow(ctx, e.EntitySet, key)
	if err != nil {
		return err
	}
	if !found {
		ks, _ := ir.KeyString(key)
		return apierr.NewNotFound(e.EntitySet, "no resource with key "+ks)
	}
	if err := CheckETag(e, etag); err != nil {
		return err
	}
	e.Key = key
	e.CurrentETag = etag

	switch e.Operation {
	case OpUpdate:
		var row ir.IRObject
		if e.IsFullReplace {
			row = local.Clone()
			for _, prop := range et.Properties {
				if prop.Computed {
					if v, ok := current[prop.Name]; ok {
						row[prop.Name] = v
					}
				}
			}
		} else {
			row = current.Merge(local)
		}
		e.Resource = row.Merge(key)
	case OpDelete:
		e.Resource = current
	}
	return nil
}

// CheckETag compares the entry's concurrency tokens with the stored ETag.
// Entries without a token always pass.
func CheckETag(e *DataModificationEntry, stored string) error {
	if e.ETag != "" && e.ETag != stored {
		return apierr.NewPreconditionFailed(e.EntitySet, e.ETag, stored)
	}
	if e.OriginalValues != nil {
		tag, err := ir.ETag(Writable(e.OriginalValues))
		if err != nil {
			return err
		}
		if tag != stored {
			return apierr.NewPreconditionFailed(e.EntitySet, tag, stored)
		}
	}
	return nil
}

// KeyOf extracts the key properties of et from row. Every key property
// must be present and non-null.
func KeyOf(et *model.EntityType, row ir.IRObject) (ir.IRObject, error) {
	key := make(ir.IRObject, len(et.Key))
	for _, name := range et.Key {
		v, ok := row[name]
		if !ok || ir.IsNull(v) {
			return nil, apierr.NewValidation([]apierr.Detail{{
				Target:   et.Name,
				Property: name,
				Message:  "key property is required",
				Severity: string(SeverityError),
			}})
		}
		key[name] = v
	}
	return key, nil
}

// GenerateKey builds a key for entity types with a single Int64 or String
// key property. Int64 keys take next; String keys get a UUIDv7.
func GenerateKey(et *model.EntityType, next int64) (ir.IRObject, error) {
	if len(et.Key) != 1 {
		return nil, fmt.Errorf("cannot generate a composite key for %s", et.FullName())
	}
	prop, ok := et.Property(et.Key[0])
	if !ok {
		return nil, fmt.Errorf("key property %s is not declared on %s", et.Key[0], et.FullName())
	}
	switch prop.Type {
	case model.KindInt64:
		return ir.Obj(ir.O(prop.Name, ir.IRInt(next))), nil
	case model.KindString:
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		return ir.Obj(ir.O(prop.Name, ir.IRString(id.String()))), nil
	}
	return nil, fmt.Errorf("cannot generate a %s key for %s", prop.Type, et.FullName())
}

// writableFor drops annotations and computed properties from v.
func writableFor(et *model.EntityType, v ir.IRObject) ir.IRObject {
	out := Writable(v)
	for _, prop := range et.Properties {
		if prop.Computed && !et.IsKey(prop.Name) {
			delete(out, prop.Name)
		}
	}
	return out
}
