package model

import "slices"

// Model is the read surface shared by the built model and its projections.
type Model interface {
	// SchemaElements returns every declared type and operation in
	// declaration order.
	SchemaElements() []SchemaElement

	// EntityContainer returns the entity container, or nil when the model
	// has none.
	EntityContainer() Container

	// FindDeclaredType returns the entity or complex type with the given
	// full name.
	FindDeclaredType(fullName string) (SchemaElement, bool)

	// FindDeclaredOperations returns every operation with the given full name.
	FindDeclaredOperations(fullName string) []*Operation
}

// Container is the read surface of an entity container.
type Container interface {
	FullName() string
	Elements() []ContainerElement
	FindEntitySet(name string) (*EntitySet, bool)
	FindSingleton(name string) (*Singleton, bool)
	FindOperationImports(name string) []*OperationImport
}

// EdmModel is the mutable model that producers create and extenders modify.
// It must be treated as read-only once the model handler has published it.
type EdmModel struct {
	elements  []SchemaElement
	container *EntityContainer
}

// NewEdmModel creates an empty model.
func NewEdmModel() *EdmModel {
	return &EdmModel{}
}

// AddElement declares a schema element. An element with the same full name
// and kind is replaced in place; operations may be overloaded, so they are
// only replaced when their parameter lists also match.
func (m *EdmModel) AddElement(e SchemaElement) {
	for i, existing := range m.elements {
		if sameDeclaration(existing, e) {
			m.elements[i] = e
			return
		}
	}
	m.elements = append(m.elements, e)
}

func sameDeclaration(a, b SchemaElement) bool {
	if a.FullName() != b.FullName() || a.ElementKind() != b.ElementKind() {
		return false
	}
	ao, aok := a.(*Operation)
	bo, bok := b.(*Operation)
	if !aok || !bok {
		return true
	}
	return slices.EqualFunc(ao.Parameters, bo.Parameters, func(x, y Parameter) bool {
		return x.Name == y.Name && x.Type == y.Type
	})
}

// SchemaElements implements Model.
func (m *EdmModel) SchemaElements() []SchemaElement {
	return slices.Clone(m.elements)
}

// EnsureContainer returns the model's entity container, creating it with
// the given name if the model has none.
func (m *EdmModel) EnsureContainer(namespace, name string) *EntityContainer {
	if m.container == nil {
		m.container = &EntityContainer{Namespace: namespace, Name: name}
	}
	return m.container
}

// Container returns the concrete container, or nil.
func (m *EdmModel) Container() *EntityContainer {
	return m.container
}

// EntityContainer implements Model.
func (m *EdmModel) EntityContainer() Container {
	if m.container == nil {
		return nil
	}
	return m.container
}

// FindDeclaredType implements Model.
func (m *EdmModel) FindDeclaredType(fullName string) (SchemaElement, bool) {
	for _, e := range m.elements {
		if e.FullName() != fullName {
			continue
		}
		switch e.ElementKind() {
		case ElementEntityType, ElementComplexType:
			return e, true
		}
	}
	return nil, false
}

// FindDeclaredOperations implements Model.
func (m *EdmModel) FindDeclaredOperations(fullName string) []*Operation {
	var ops []*Operation
	for _, e := range m.elements {
		if op, ok := e.(*Operation); ok && op.FullName() == fullName {
			ops = append(ops, op)
		}
	}
	return ops
}

// EntityContainer holds the addressable members of a model.
type EntityContainer struct {
	Namespace string
	Name      string
	elements  []ContainerElement
}

// FullName implements Container.
func (c *EntityContainer) FullName() string {
	return qualify(c.Namespace, c.Name)
}

// AddElement adds a member, replacing any member with the same name.
func (c *EntityContainer) AddElement(e ContainerElement) {
	for i, existing := range c.elements {
		if existing.ElementName() == e.ElementName() {
			c.elements[i] = e
			return
		}
	}
	c.elements = append(c.elements, e)
}

// Elements implements Container.
func (c *EntityContainer) Elements() []ContainerElement {
	return slices.Clone(c.elements)
}

// FindEntitySet implements Container.
func (c *EntityContainer) FindEntitySet(name string) (*EntitySet, bool) {
	for _, e := range c.elements {
		if s, ok := e.(*EntitySet); ok && s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// FindSingleton implements Container.
func (c *EntityContainer) FindSingleton(name string) (*Singleton, bool) {
	for _, e := range c.elements {
		if s, ok := e.(*Singleton); ok && s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// FindOperationImports implements Container.
func (c *EntityContainer) FindOperationImports(name string) []*OperationImport {
	var out []*OperationImport
	for _, e := range c.elements {
		if o, ok := e.(*OperationImport); ok && o.Name == name {
			out = append(out, o)
		}
	}
	return out
}

// EntityTypeOf resolves the element type of a named entity set or singleton.
func EntityTypeOf(m Model, name string) (*EntityType, bool) {
	c := m.EntityContainer()
	if c == nil {
		return nil, false
	}
	var typeName string
	if s, ok := c.FindEntitySet(name); ok {
		typeName = s.EntityType
	} else if s, ok := c.FindSingleton(name); ok {
		typeName = s.EntityType
	} else {
		return nil, false
	}
	t, ok := m.FindDeclaredType(typeName)
	if !ok {
		return nil, false
	}
	et, ok := t.(*EntityType)
	return et, ok
}
