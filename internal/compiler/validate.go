package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/queryir"
)

// Validation error codes (E100-E199)
const (
	ErrUnknownType      = "E101" // reference to an undeclared entity type
	ErrInvalidKey       = "E102" // empty key or key property not declared
	ErrDuplicateName    = "E103" // duplicate type, property, or container element
	ErrUnknownSource    = "E104" // view or operation references an unknown set
	ErrInvalidPrivilege = "E105" // grant/deny privilege is not recognised
	ErrViewCycle        = "E106" // views reference each other
	ErrInvalidView      = "E107" // view body is not a valid query
	ErrUnknownField     = "E108" // view references a property its type lacks
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the cross references of a compiled spec.
// Returns all errors found (does not fail-fast).
func Validate(spec *APISpec) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	types := make(map[string]*model.EntityType, len(spec.EntityTypes))
	for _, et := range spec.EntityTypes {
		field := "entity_type." + et.Name
		if _, dup := types[et.FullName()]; dup {
			add(ErrDuplicateName, field, "duplicate entity type %q", et.Name)
		}
		types[et.FullName()] = et

		props := make(map[string]bool, len(et.Properties))
		for _, p := range et.Properties {
			if props[p.Name] {
				add(ErrDuplicateName, field+".properties."+p.Name, "duplicate property %q", p.Name)
			}
			props[p.Name] = true
		}
		if len(et.Key) == 0 {
			add(ErrInvalidKey, field+".key", "key must name at least one property")
		}
		for _, k := range et.Key {
			p, ok := et.Property(k)
			switch {
			case !ok:
				add(ErrInvalidKey, field+".key", "key property %q is not declared", k)
			case p.Nullable:
				add(ErrInvalidKey, field+".key", "key property %q cannot be nullable", k)
			}
		}
	}

	names := make(map[string]bool)
	claim := func(field, name string) {
		if names[name] {
			add(ErrDuplicateName, field, "duplicate container element %q", name)
		}
		names[name] = true
	}
	checkType := func(field, name string) {
		if _, ok := types[name]; !ok {
			add(ErrUnknownType, field, "unknown entity type %q", name)
		}
	}
	sets := make(map[string]bool)
	for _, es := range spec.EntitySets {
		claim("entity_set."+es.Name, es.Name)
		checkType("entity_set."+es.Name, es.EntityType)
		sets[es.Name] = true
	}
	for _, sg := range spec.Singletons {
		claim("singleton."+sg.Name, sg.Name)
		checkType("singleton."+sg.Name, sg.EntityType)
		sets[sg.Name] = true
	}
	for _, imp := range spec.Imports {
		claim("operation."+imp.Name, imp.Name)
	}
	for _, v := range spec.Views {
		claim("view."+v.Name, v.Name)
		sets[v.Name] = true
	}

	for _, op := range spec.Operations {
		field := "operation." + op.Name
		if op.ReturnType != "" && !isPrimitive(op.ReturnType) {
			checkType(field+".returns", op.ReturnType)
		}
		if op.Composable && op.IsAction {
			add(ErrInvalidView, field+".composable", "actions cannot be composable")
		}
	}
	for _, imp := range spec.Imports {
		if imp.EntitySet != "" && !sets[imp.EntitySet] {
			add(ErrUnknownSource, "operation."+imp.Name+".entity_set", "unknown entity set %q", imp.EntitySet)
		}
	}

	for i, p := range spec.Permissions {
		if !p.Privilege.Valid() {
			add(ErrInvalidPrivilege, fmt.Sprintf("permissions[%d]", i), "unknown privilege %q", p.Privilege)
		}
	}

	for _, v := range spec.Views {
		field := "view." + v.Name
		if !sets[v.From] {
			add(ErrUnknownSource, field+".from", "unknown source %q", v.From)
			continue
		}
		if v.EntityType == "" {
			add(ErrUnknownType, field+".type", "cannot infer the element type of %q", v.Name)
			continue
		}
		et, ok := types[v.EntityType]
		if !ok {
			checkType(field+".type", v.EntityType)
			continue
		}
		if err := queryir.Validate(v.Body()).Err(); err != nil {
			add(ErrInvalidView, field, "%v", err)
		}
		for _, f := range viewFields(v) {
			if _, ok := et.Property(f); !ok {
				add(ErrUnknownField, field, "%s has no property %q", et.FullName(), f)
			}
		}
	}

	for _, c := range FindViewCycles(spec) {
		add(ErrViewCycle, "view."+c.Path[0], "%s", c.Message)
	}

	return errs
}

// Check validates spec and joins every validation error into one.
func Check(spec *APISpec) error {
	verrs := Validate(spec)
	if len(verrs) == 0 {
		return nil
	}
	errs := make([]error, len(verrs))
	for i, e := range verrs {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func isPrimitive(name string) bool {
	switch model.PrimitiveKind(name) {
	case model.KindString, model.KindInt64, model.KindBoolean, model.KindJSON:
		return true
	}
	return false
}

func viewFields(v ViewSpec) []string {
	out := queryir.PredicateFields(v.Where)
	for _, k := range v.OrderBy {
		out = append(out, k.Field)
	}
	return out
}
