// Package model builds the metadata model an API publishes and projects it
// through the visibility filters registered for the caller.
//
// The model is a deliberately small subset of an entity data model: entity
// and complex types, functions and actions, and one entity container holding
// entity sets, singletons, and operation imports.
package model

import "slices"

// PrimitiveKind is the value kind of a structural property.
type PrimitiveKind string

const (
	KindString  PrimitiveKind = "String"
	KindInt64   PrimitiveKind = "Int64"
	KindBoolean PrimitiveKind = "Boolean"
	KindJSON    PrimitiveKind = "Json"
)

// ElementKind classifies schema elements.
type ElementKind string

const (
	ElementEntityType  ElementKind = "EntityType"
	ElementComplexType ElementKind = "ComplexType"
	ElementFunction    ElementKind = "Function"
	ElementAction      ElementKind = "Action"
)

// SchemaElement is a named type or operation declared in a namespace.
type SchemaElement interface {
	FullName() string
	ElementKind() ElementKind
	schemaElement()
}

// Property is a structural property of an entity or complex type.
type Property struct {
	Name     string        `json:"name"`
	Type     PrimitiveKind `json:"type"`
	Nullable bool          `json:"nullable"`

	// Required marks a property that must be present and non-null on insert
	// and full replacement. It is enforced by the submit validator.
	Required bool `json:"required,omitempty"`

	// Computed properties are assigned by the store and ignored on write.
	Computed bool `json:"computed,omitempty"`
}

// EntityType is a keyed structured type.
type EntityType struct {
	Namespace  string     `json:"namespace"`
	Name       string     `json:"name"`
	Key        []string   `json:"key"`
	Properties []Property `json:"properties"`
}

func (t *EntityType) FullName() string         { return qualify(t.Namespace, t.Name) }
func (t *EntityType) ElementKind() ElementKind { return ElementEntityType }
func (*EntityType) schemaElement()             {}

// Property returns the named property.
func (t *EntityType) Property(name string) (Property, bool) {
	return findProperty(t.Properties, name)
}

// IsKey reports whether name is part of the key.
func (t *EntityType) IsKey(name string) bool {
	return slices.Contains(t.Key, name)
}

// ComplexType is an unkeyed structured type.
type ComplexType struct {
	Namespace  string     `json:"namespace"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
}

func (t *ComplexType) FullName() string         { return qualify(t.Namespace, t.Name) }
func (t *ComplexType) ElementKind() ElementKind { return ElementComplexType }
func (*ComplexType) schemaElement()             {}

// Parameter is an operation parameter.
type Parameter struct {
	Name     string        `json:"name"`
	Type     PrimitiveKind `json:"type"`
	Nullable bool          `json:"nullable"`
}

// Operation is a function (side-effect free, possibly composable) or an
// action (may have side effects, invoked through a change set).
type Operation struct {
	Namespace  string      `json:"namespace"`
	Name       string      `json:"name"`
	IsAction   bool        `json:"is_action"`
	Composable bool        `json:"composable,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`

	// ReturnType is an entity type full name or a primitive kind; empty for none.
	ReturnType        string `json:"return_type,omitempty"`
	ReturnsCollection bool   `json:"returns_collection,omitempty"`
}

func (o *Operation) FullName() string { return qualify(o.Namespace, o.Name) }

func (o *Operation) ElementKind() ElementKind {
	if o.IsAction {
		return ElementAction
	}
	return ElementFunction
}

func (*Operation) schemaElement() {}

// ContainerElementKind classifies entity container members.
type ContainerElementKind string

const (
	ContainerEntitySet      ContainerElementKind = "EntitySet"
	ContainerSingleton      ContainerElementKind = "Singleton"
	ContainerFunctionImport ContainerElementKind = "FunctionImport"
	ContainerActionImport   ContainerElementKind = "ActionImport"
)

// ContainerElement is a member of an entity container.
type ContainerElement interface {
	ElementName() string
	ContainerKind() ContainerElementKind
	containerElement()
}

// EntitySet is a queryable collection of entities.
type EntitySet struct {
	Name string `json:"name"`

	// EntityType is the full name of the element type.
	EntityType string `json:"entity_type"`
}

func (s *EntitySet) ElementName() string                 { return s.Name }
func (s *EntitySet) ContainerKind() ContainerElementKind { return ContainerEntitySet }
func (*EntitySet) containerElement()                     {}

// Singleton is a single addressable entity.
type Singleton struct {
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
}

func (s *Singleton) ElementName() string                 { return s.Name }
func (s *Singleton) ContainerKind() ContainerElementKind { return ContainerSingleton }
func (*Singleton) containerElement()                     {}

// OperationImport exposes an operation at the container level.
type OperationImport struct {
	Name string `json:"name"`

	// Operation is the full name of the imported operation.
	Operation string `json:"operation"`
	IsAction  bool   `json:"is_action"`

	// EntitySet names the set a composable function's results belong to.
	EntitySet string `json:"entity_set,omitempty"`
}

func (o *OperationImport) ElementName() string { return o.Name }

func (o *OperationImport) ContainerKind() ContainerElementKind {
	if o.IsAction {
		return ContainerActionImport
	}
	return ContainerFunctionImport
}

func (*OperationImport) containerElement() {}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

func findProperty(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}
