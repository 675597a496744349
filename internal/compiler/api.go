// Package compiler turns declarative API specs written in CUE into the
// model, permissions, and views an API publishes.
//
// A spec is one CUE value:
//
//	namespace: "Sales"
//
//	entity_type: Order: {
//		key: ["Id"]
//		properties: {
//			Id:     int
//			Amount: int
//			Owner:  {type: string, nullable: true}
//		}
//	}
//
//	entity_set: Orders: "Order"
//
//	operation: Ship: {kind: "action", parameters: {OrderId: int}}
//
//	grant: [{privilege: "Read", on: "Orders", role: "Manager"}]
//
//	view: OpenOrders: {
//		from:  "Orders"
//		where: {Status: "open"}
//		assert: ["Manager"]
//	}
package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/security"
)

// DefaultContainer is the entity container name used when a spec names none.
const DefaultContainer = "Container"

// CompileAPI parses a CUE value into an APISpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// Parsing checks shapes only. Cross references are checked by Validate.
func CompileAPI(v cue.Value) (*APISpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &APISpec{Container: DefaultContainer}

	nsVal := v.LookupPath(cue.ParsePath("namespace"))
	if !nsVal.Exists() {
		return nil, &CompileError{Field: "namespace", Message: "namespace is required", Pos: v.Pos()}
	}
	ns, err := nsVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Namespace = ns

	if c := v.LookupPath(cue.ParsePath("container")); c.Exists() {
		if spec.Container, err = c.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if spec.EntityTypes, err = parseEntityTypes(v, ns); err != nil {
		return nil, err
	}
	if err := parseContainer(v, spec); err != nil {
		return nil, err
	}
	if err := parseOperations(v, spec); err != nil {
		return nil, err
	}
	for _, field := range []string{"grant", "deny"} {
		perms, err := parsePermissions(v, field)
		if err != nil {
			return nil, err
		}
		spec.Permissions = append(spec.Permissions, perms...)
	}
	if spec.Requires, err = parseRequires(v); err != nil {
		return nil, err
	}
	if spec.Views, err = parseViews(v); err != nil {
		return nil, err
	}
	spec.resolveViewTypes()

	return spec, nil
}

// fields iterates the regular fields of the struct at path, if present.
func fields(v cue.Value, path string, fn func(label string, v cue.Value) error) error {
	return eachField(v.LookupPath(cue.ParsePath(path)), fn)
}

func eachField(val cue.Value, fn func(label string, v cue.Value) error) error {
	if !val.Exists() {
		return nil
	}
	iter, err := val.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func list(v cue.Value, fn func(v cue.Value) error) error {
	iter, err := v.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func stringList(v cue.Value) ([]string, error) {
	var out []string
	err := list(v, func(e cue.Value) error {
		s, err := e.String()
		if err != nil {
			return formatCUEError(err)
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func optionalString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, path string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// qualifyName prefixes a bare type name with the spec namespace. Primitive
// kinds and dotted names are returned unchanged.
func qualifyName(ns, name string) string {
	if name == "" || strings.Contains(name, ".") {
		return name
	}
	if _, ok := primitiveNames[name]; ok {
		return name
	}
	return ns + "." + name
}

func parseEntityTypes(v cue.Value, ns string) ([]*model.EntityType, error) {
	var types []*model.EntityType
	err := fields(v, "entity_type", func(name string, tv cue.Value) error {
		et := &model.EntityType{Namespace: ns, Name: name}

		keyVal := tv.LookupPath(cue.ParsePath("key"))
		if !keyVal.Exists() {
			return &CompileError{Field: "entity_type." + name + ".key", Message: "key is required", Pos: tv.Pos()}
		}
		key, err := stringList(keyVal)
		if err != nil {
			return err
		}
		et.Key = key

		err = fields(tv, "properties", func(pname string, pv cue.Value) error {
			p, err := parseProperty(pname, pv)
			if err != nil {
				return err
			}
			et.Properties = append(et.Properties, p)
			return nil
		})
		if err != nil {
			return err
		}
		types = append(types, et)
		return nil
	})
	return types, err
}

// parseProperty accepts a bare type (`int`, `"Int64"`) or the detailed
// form `{type: int, nullable: true, required: true, computed: true}`.
func parseProperty(name string, v cue.Value) (model.Property, error) {
	p := model.Property{Name: name}
	typeVal := v
	if v.IncompleteKind() == cue.StructKind {
		if t := v.LookupPath(cue.ParsePath("type")); t.Exists() {
			typeVal = t
			var err error
			if p.Nullable, err = optionalBool(v, "nullable"); err != nil {
				return p, err
			}
			if p.Required, err = optionalBool(v, "required"); err != nil {
				return p, err
			}
			if p.Computed, err = optionalBool(v, "computed"); err != nil {
				return p, err
			}
		}
	}
	kind, err := extractKind(typeVal)
	if err != nil {
		return p, err
	}
	p.Type = kind
	return p, nil
}

var primitiveNames = map[string]model.PrimitiveKind{
	"Int64":   model.KindInt64,
	"int":     model.KindInt64,
	"String":  model.KindString,
	"string":  model.KindString,
	"Boolean": model.KindBoolean,
	"bool":    model.KindBoolean,
	"Json":    model.KindJSON,
	"json":    model.KindJSON,
}

// extractKind converts a CUE type or a kind name to a primitive kind.
// Floats are forbidden so ETags stay deterministic.
func extractKind(v cue.Value) (model.PrimitiveKind, error) {
	if s, err := v.String(); err == nil {
		if k, ok := primitiveNames[s]; ok {
			return k, nil
		}
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unknown type name %q", s),
			Pos:     v.Pos(),
		}
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return model.KindString, nil
	case cue.IntKind:
		return model.KindInt64, nil
	case cue.BoolKind:
		return model.KindBoolean, nil
	case cue.ListKind, cue.StructKind:
		return model.KindJSON, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// typeRef reads `"Order"` or `{type: "Order"}`.
func typeRef(v cue.Value) (string, error) {
	if s, err := v.String(); err == nil {
		return s, nil
	}
	return optionalString(v, "type")
}

func parseContainer(v cue.Value, spec *APISpec) error {
	err := fields(v, "entity_set", func(name string, sv cue.Value) error {
		t, err := typeRef(sv)
		if err != nil {
			return err
		}
		spec.EntitySets = append(spec.EntitySets, &model.EntitySet{Name: name, EntityType: qualifyName(spec.Namespace, t)})
		return nil
	})
	if err != nil {
		return err
	}
	return fields(v, "singleton", func(name string, sv cue.Value) error {
		t, err := typeRef(sv)
		if err != nil {
			return err
		}
		spec.Singletons = append(spec.Singletons, &model.Singleton{Name: name, EntityType: qualifyName(spec.Namespace, t)})
		return nil
	})
}

func parseOperations(v cue.Value, spec *APISpec) error {
	return fields(v, "operation", func(name string, ov cue.Value) error {
		field := "operation." + name
		kind, err := optionalString(ov, "kind")
		if err != nil {
			return err
		}
		op := &model.Operation{Namespace: spec.Namespace, Name: name}
		switch kind {
		case "function":
		case "action":
			op.IsAction = true
		default:
			return &CompileError{Field: field + ".kind", Message: `kind must be "function" or "action"`, Pos: ov.Pos()}
		}
		if op.Composable, err = optionalBool(ov, "composable"); err != nil {
			return err
		}
		if op.ReturnsCollection, err = optionalBool(ov, "collection"); err != nil {
			return err
		}
		returns, err := optionalString(ov, "returns")
		if err != nil {
			return err
		}
		if k, ok := primitiveNames[returns]; ok {
			op.ReturnType = string(k)
		} else {
			op.ReturnType = qualifyName(spec.Namespace, returns)
		}
		err = fields(ov, "parameters", func(pname string, pv cue.Value) error {
			p, err := parseProperty(pname, pv)
			if err != nil {
				return err
			}
			op.Parameters = append(op.Parameters, model.Parameter{Name: p.Name, Type: p.Type, Nullable: p.Nullable})
			return nil
		})
		if err != nil {
			return err
		}
		spec.Operations = append(spec.Operations, op)

		imported := true
		if f := ov.LookupPath(cue.ParsePath("import")); f.Exists() {
			if imported, err = f.Bool(); err != nil {
				return formatCUEError(err)
			}
		}
		if !imported {
			return nil
		}
		set, err := optionalString(ov, "entity_set")
		if err != nil {
			return err
		}
		spec.Imports = append(spec.Imports, &model.OperationImport{
			Name:      name,
			Operation: op.FullName(),
			IsAction:  op.IsAction,
			EntitySet: set,
		})
		return nil
	})
}

func parsePermissions(v cue.Value, field string) ([]security.Permission, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return nil, nil
	}
	var perms []security.Permission
	err := list(val, func(pv cue.Value) error {
		priv, err := optionalString(pv, "privilege")
		if err != nil {
			return err
		}
		on, err := optionalString(pv, "on")
		if err != nil {
			return err
		}
		role, err := optionalString(pv, "role")
		if err != nil {
			return err
		}
		privilege := security.Privilege(strings.ToLower(priv))
		p := security.Grant(privilege, on)
		if field == "deny" {
			p = security.Deny(privilege, on)
		}
		if role != "" {
			p = p.To(role)
		}
		perms = append(perms, p)
		return nil
	})
	return perms, err
}

func parseRequires(v cue.Value) ([]security.RequireRole, error) {
	val := v.LookupPath(cue.ParsePath("require"))
	if !val.Exists() {
		return nil, nil
	}
	var out []security.RequireRole
	err := list(val, func(rv cue.Value) error {
		role, err := optionalString(rv, "role")
		if err != nil {
			return err
		}
		on, err := optionalString(rv, "on")
		if err != nil {
			return err
		}
		if role == "" || on == "" {
			return &CompileError{Field: "require", Message: "role and on are required", Pos: rv.Pos()}
		}
		out = append(out, security.RequireRole{Target: on, Role: role})
		return nil
	})
	return out, err
}

func parseViews(v cue.Value) ([]ViewSpec, error) {
	var out []ViewSpec
	err := fields(v, "view", func(name string, vv cue.Value) error {
		field := "view." + name
		vs := ViewSpec{Name: name}
		var err error
		if vs.From, err = optionalString(vv, "from"); err != nil {
			return err
		}
		if vs.From == "" {
			return &CompileError{Field: field + ".from", Message: "from is required", Pos: vv.Pos()}
		}
		if vs.EntityType, err = optionalString(vv, "type"); err != nil {
			return err
		}
		if w := vv.LookupPath(cue.ParsePath("where")); w.Exists() {
			if vs.Where, err = parseWhere(field+".where", w); err != nil {
				return err
			}
		}
		if o := vv.LookupPath(cue.ParsePath("order_by")); o.Exists() {
			keys, err := stringList(o)
			if err != nil {
				return err
			}
			for _, k := range keys {
				sk, err := ParseSortKey(k)
				if err != nil {
					return &CompileError{Field: field + ".order_by", Message: err.Error(), Pos: o.Pos()}
				}
				vs.OrderBy = append(vs.OrderBy, sk)
			}
		}
		for _, paging := range []struct {
			name string
			dst  **int64
		}{{"skip", &vs.Skip}, {"take", &vs.Take}} {
			f := vv.LookupPath(cue.ParsePath(paging.name))
			if !f.Exists() {
				continue
			}
			n, err := f.Int64()
			if err != nil {
				return formatCUEError(err)
			}
			*paging.dst = &n
		}
		if a := vv.LookupPath(cue.ParsePath("assert")); a.Exists() {
			if vs.Assert, err = stringList(a); err != nil {
				return err
			}
		}
		out = append(out, vs)
		return nil
	})
	return out, err
}

// ParseSortKey reads "Field", "Field asc", or "Field desc".
func ParseSortKey(s string) (queryir.SortKey, error) {
	parts := strings.Fields(s)
	switch {
	case len(parts) == 1:
		return queryir.SortKey{Field: parts[0]}, nil
	case len(parts) == 2 && (parts[1] == "asc" || parts[1] == "desc"):
		return queryir.SortKey{Field: parts[0], Desc: parts[1] == "desc"}, nil
	}
	return queryir.SortKey{}, fmt.Errorf("order key %q must be \"Field\" or \"Field asc|desc\"", s)
}

var whereOps = map[string]queryir.CompareOp{
	"lt": queryir.OpLess,
	"le": queryir.OpLessEqual,
	"gt": queryir.OpGreater,
	"ge": queryir.OpGreaterEqual,
}

// parseWhere reads a conjunction of field conditions. A condition is a
// scalar (equality), null (is null), a "bound.<name>" string (equality with
// a bound value), or a struct of operators: eq, ne, lt, le, gt, ge.
func parseWhere(field string, v cue.Value) (queryir.Predicate, error) {
	var preds []queryir.Predicate
	err := eachField(v, func(name string, cv cue.Value) error {
		if cv.Kind() == cue.StructKind {
			return eachField(cv, func(op string, ov cue.Value) error {
				val, err := whereValue(ov)
				if err != nil {
					return err
				}
				switch op {
				case "eq":
					preds = append(preds, &queryir.Equals{Field: name, Value: val})
				case "ne":
					preds = append(preds, &queryir.NotEquals{Field: name, Value: val})
				default:
					cmp, ok := whereOps[op]
					if !ok {
						return &CompileError{Field: field + "." + name, Message: fmt.Sprintf("unknown operator %q", op), Pos: ov.Pos()}
					}
					preds = append(preds, &queryir.Compare{Field: name, Op: cmp, Value: val})
				}
				return nil
			})
		}
		if cv.Kind() == cue.NullKind {
			preds = append(preds, &queryir.IsNull{Field: name})
			return nil
		}
		if s, err := cv.String(); err == nil && strings.HasPrefix(s, "bound.") {
			preds = append(preds, &queryir.BoundEquals{Field: name, BoundVar: s})
			return nil
		}
		val, err := whereValue(cv)
		if err != nil {
			return err
		}
		preds = append(preds, &queryir.Equals{Field: name, Value: val})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return queryir.AndOf(preds...), nil
}

func whereValue(v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.FloatKind:
		return nil, &CompileError{Field: "where", Message: "float values are forbidden - use int instead", Pos: v.Pos()}
	}
	var native any
	if err := v.Decode(&native); err != nil {
		return nil, formatCUEError(err)
	}
	val, err := ir.FromNative(native)
	if err != nil {
		return nil, &CompileError{Field: "where", Message: err.Error(), Pos: v.Pos()}
	}
	return val, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
