package model

import (
	"sync"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
)

// DomainModel is the caller's view of a model: every element passes through
// the registered visibility filters before it is returned.
//
// Filtered lists are computed on first access. Every lookup re-applies the
// filters, so there is no path to a hidden element.
type DomainModel struct {
	ic      *invocation.Context
	inner   Model
	filters []VisibilityFilter

	elementsOnce sync.Once
	elements     []SchemaElement

	mu         sync.Mutex
	containers map[string]*DomainContainer
}

// NewDomainModel projects inner through the visibility filters registered
// on the caller's configuration.
func NewDomainModel(ic *invocation.Context, inner Model) *DomainModel {
	return &DomainModel{
		ic:         ic,
		inner:      inner,
		filters:    hook.Ordered[VisibilityFilter](ic.Configuration(), hook.Reverse),
		containers: make(map[string]*DomainContainer),
	}
}

// Inner returns the unfiltered model.
func (d *DomainModel) Inner() Model {
	return d.inner
}

func (d *DomainModel) schemaVisible(e SchemaElement) bool {
	for _, f := range d.filters {
		if !f.SchemaElementVisible(d.ic, e) {
			return false
		}
	}
	return true
}

func (d *DomainModel) containerVisible(e ContainerElement) bool {
	for _, f := range d.filters {
		if !f.ContainerElementVisible(d.ic, e) {
			return false
		}
	}
	return true
}

// SchemaElements implements Model.
func (d *DomainModel) SchemaElements() []SchemaElement {
	d.elementsOnce.Do(func() {
		for _, e := range d.inner.SchemaElements() {
			if d.schemaVisible(e) {
				d.elements = append(d.elements, e)
			}
		}
	})
	return append([]SchemaElement(nil), d.elements...)
}

// EntityContainer implements Model. A container with no visible members is
// reported as absent. Repeated calls return the same wrapper.
func (d *DomainModel) EntityContainer() Container {
	inner := d.inner.EntityContainer()
	if inner == nil {
		return nil
	}

	d.mu.Lock()
	dc, ok := d.containers[inner.FullName()]
	if !ok {
		dc = &DomainContainer{model: d, inner: inner}
		d.containers[inner.FullName()] = dc
	}
	d.mu.Unlock()

	if len(dc.visibleElements()) == 0 {
		return nil
	}
	return dc
}

// FindDeclaredType implements Model.
func (d *DomainModel) FindDeclaredType(fullName string) (SchemaElement, bool) {
	e, ok := d.inner.FindDeclaredType(fullName)
	if !ok || !d.schemaVisible(e) {
		return nil, false
	}
	return e, true
}

// FindDeclaredOperations implements Model.
func (d *DomainModel) FindDeclaredOperations(fullName string) []*Operation {
	var out []*Operation
	for _, op := range d.inner.FindDeclaredOperations(fullName) {
		if d.schemaVisible(op) {
			out = append(out, op)
		}
	}
	return out
}

// DomainContainer is a filtered view of one entity container, owned by the
// DomainModel that created it.
type DomainContainer struct {
	model *DomainModel
	inner Container

	once     sync.Once
	elements []ContainerElement
}

func (c *DomainContainer) visibleElements() []ContainerElement {
	c.once.Do(func() {
		for _, e := range c.inner.Elements() {
			if c.model.containerVisible(e) {
				c.elements = append(c.elements, e)
			}
		}
	})
	return c.elements
}

// FullName implements Container.
func (c *DomainContainer) FullName() string {
	return c.inner.FullName()
}

// Elements implements Container.
func (c *DomainContainer) Elements() []ContainerElement {
	return append([]ContainerElement(nil), c.visibleElements()...)
}

// FindEntitySet implements Container.
func (c *DomainContainer) FindEntitySet(name string) (*EntitySet, bool) {
	s, ok := c.inner.FindEntitySet(name)
	if !ok || !c.model.containerVisible(s) {
		return nil, false
	}
	return s, true
}

// FindSingleton implements Container.
func (c *DomainContainer) FindSingleton(name string) (*Singleton, bool) {
	s, ok := c.inner.FindSingleton(name)
	if !ok || !c.model.containerVisible(s) {
		return nil, false
	}
	return s, true
}

// FindOperationImports implements Container.
func (c *DomainContainer) FindOperationImports(name string) []*OperationImport {
	var out []*OperationImport
	for _, o := range c.inner.FindOperationImports(name) {
		if c.model.containerVisible(o) {
			out = append(out, o)
		}
	}
	return out
}
