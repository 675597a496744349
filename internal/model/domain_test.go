package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
)

// hideFilter hides every schema element and container element whose name
// is listed, and records the order it was consulted in.
type hideFilter struct {
	id    string
	names map[string]bool
	log   *[]string
}

func (f hideFilter) SchemaElementVisible(_ *invocation.Context, e SchemaElement) bool {
	if f.log != nil {
		*f.log = append(*f.log, f.id)
	}
	return !f.names[e.FullName()]
}

func (f hideFilter) ContainerElementVisible(_ *invocation.Context, e ContainerElement) bool {
	if f.log != nil {
		*f.log = append(*f.log, f.id)
	}
	return !f.names[e.ElementName()]
}

func hide(names ...string) hideFilter {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return hideFilter{names: set}
}

func sampleModel() *EdmModel {
	m := NewEdmModel()
	m.AddElement(&EntityType{Namespace: "NS", Name: "Customer", Key: []string{"Id"}})
	m.AddElement(&EntityType{Namespace: "NS", Name: "Order", Key: []string{"Id"}})
	m.AddElement(&Operation{Namespace: "NS", Name: "Ship", IsAction: true})
	c := m.EnsureContainer("NS", "Container")
	c.AddElement(&EntitySet{Name: "Customers", EntityType: "NS.Customer"})
	c.AddElement(&EntitySet{Name: "Orders", EntityType: "NS.Order"})
	c.AddElement(&Singleton{Name: "Me", EntityType: "NS.Customer"})
	c.AddElement(&OperationImport{Name: "Ship", Operation: "NS.Ship", IsAction: true})
	return m
}

func domainWith(t *testing.T, filters ...VisibilityFilter) *DomainModel {
	t.Helper()
	cfg := hook.NewConfiguration()
	for _, f := range filters {
		require.NoError(t, hook.AddHookPoint(cfg, f))
	}
	cfg.Freeze()
	return NewDomainModel(invocation.New(cfg, nil), sampleModel())
}

func schemaNames(es []SchemaElement) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.FullName())
	}
	return out
}

func containerNames(es []ContainerElement) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ElementName())
	}
	return out
}

func TestDomainModelWithoutFiltersShowsEverything(t *testing.T) {
	d := domainWith(t)

	assert.Equal(t, []string{"NS.Customer", "NS.Order", "NS.Ship"}, schemaNames(d.SchemaElements()))
	require.NotNil(t, d.EntityContainer())
	assert.Equal(t, []string{"Customers", "Orders", "Me", "Ship"}, containerNames(d.EntityContainer().Elements()))
}

func TestVisibilityIsANDComposedOnEveryPath(t *testing.T) {
	// Each filter hides something different; the projection hides the union.
	d := domainWith(t,
		VisibilityFilter(hide("NS.Order", "Orders")),
		VisibilityFilter(hide("NS.Ship", "Ship")),
	)

	assert.Equal(t, []string{"NS.Customer"}, schemaNames(d.SchemaElements()))

	c := d.EntityContainer()
	require.NotNil(t, c)
	assert.Equal(t, []string{"Customers", "Me"}, containerNames(c.Elements()))

	_, ok := c.FindEntitySet("Orders")
	assert.False(t, ok, "FindEntitySet must apply the filters")
	_, ok = c.FindEntitySet("Customers")
	assert.True(t, ok)

	_, ok = d.FindDeclaredType("NS.Order")
	assert.False(t, ok, "FindDeclaredType must apply the filters")
	_, ok = d.FindDeclaredType("NS.Customer")
	assert.True(t, ok)

	assert.Empty(t, d.FindDeclaredOperations("NS.Ship"))
	assert.Empty(t, c.FindOperationImports("Ship"))

	_, ok = c.FindSingleton("Me")
	assert.True(t, ok)
}

func TestVisibilityFiltersRunInReverseOrderAndShortCircuit(t *testing.T) {
	var log []string
	first := hideFilter{id: "first", names: map[string]bool{}, log: &log}
	second := hideFilter{id: "second", names: map[string]bool{"NS.Customer": true}, log: &log}
	d := domainWith(t, first, second)

	_, ok := d.FindDeclaredType("NS.Customer")
	assert.False(t, ok)
	assert.Equal(t, []string{"second"}, log, "filters after the first denial must not run")

	log = nil
	_, ok = d.FindDeclaredType("NS.Order")
	assert.True(t, ok)
	assert.Equal(t, []string{"second", "first"}, log)
}

func TestEmptyContainerIsElided(t *testing.T) {
	d := domainWith(t, hide("Customers", "Orders", "Me", "Ship"))

	assert.Nil(t, d.EntityContainer())
	assert.Len(t, d.SchemaElements(), 3, "schema elements are filtered independently")
}

func TestContainerWrapperIsMemoized(t *testing.T) {
	d := domainWith(t, hide("Orders"))

	a := d.EntityContainer()
	b := d.EntityContainer()
	require.NotNil(t, a)
	assert.Same(t, a.(*DomainContainer), b.(*DomainContainer))
}

func TestSchemaElementsAreComputedLazily(t *testing.T) {
	var log []string
	d := domainWith(t, hideFilter{id: "f", names: map[string]bool{}, log: &log})
	assert.Empty(t, log, "construction must not filter")

	d.SchemaElements()
	d.SchemaElements()
	assert.Len(t, log, 3, "the filtered list is computed once")
}

func TestModelWithoutContainer(t *testing.T) {
	cfg := hook.NewConfiguration()
	d := NewDomainModel(invocation.New(cfg, nil), NewEdmModel())
	assert.Nil(t, d.EntityContainer())
	assert.Empty(t, d.SchemaElements())
}

func TestEntityTypeOf(t *testing.T) {
	m := sampleModel()

	et, ok := EntityTypeOf(m, "Orders")
	require.True(t, ok)
	assert.Equal(t, "NS.Order", et.FullName())

	et, ok = EntityTypeOf(m, "Me")
	require.True(t, ok)
	assert.Equal(t, "NS.Customer", et.FullName())

	_, ok = EntityTypeOf(m, "Missing")
	assert.False(t, ok)

	_, ok = EntityTypeOf(domainWith(t, hide("Orders")), "Orders")
	assert.False(t, ok)
}

type staticMapper struct {
	known map[string]string
	log   *[]string
	id    string
}

func (m staticMapper) TryGetRelevantType(_ context.Context, _ *invocation.Context, name string) (string, bool) {
	*m.log = append(*m.log, m.id)
	t, ok := m.known[name]
	return t, ok
}

func TestRelevantTypeMultiCastFirstThenSingleton(t *testing.T) {
	cfg := hook.NewConfiguration()
	var log []string
	require.NoError(t, hook.SetHookPoint[Mapper](cfg, staticMapper{id: "fallback", log: &log, known: map[string]string{"Orders": "NS.Order", "Views": "NS.Fallback"}}))
	require.NoError(t, hook.AddHookPoint[Mapper](cfg, staticMapper{id: "early", log: &log, known: map[string]string{"Views": "NS.Early"}}))
	require.NoError(t, hook.AddHookPoint[Mapper](cfg, staticMapper{id: "late", log: &log, known: map[string]string{"Views": "NS.Late"}}))
	ic := invocation.New(cfg, nil)

	typ, ok := RelevantType(context.Background(), ic, "Views")
	require.True(t, ok)
	assert.Equal(t, "NS.Late", typ)
	assert.Equal(t, []string{"late"}, log)

	log = nil
	typ, ok = RelevantType(context.Background(), ic, "Orders")
	require.True(t, ok)
	assert.Equal(t, "NS.Order", typ)
	assert.Equal(t, []string{"late", "early", "fallback"}, log)

	_, ok = RelevantType(context.Background(), ic, "Nothing")
	assert.False(t, ok)
}

type modelProducer struct{ m *EdmModel }

func (p modelProducer) ProduceModel(context.Context, *invocation.Context) (*EdmModel, error) {
	return p.m, nil
}

func TestContainerMapperUsesBuiltModel(t *testing.T) {
	cfg := hook.NewConfiguration()
	require.NoError(t, hook.SetHookPoint[Producer](cfg, modelProducer{m: sampleModel()}))
	h := NewHandler(cfg)
	require.NoError(t, hook.SetHookPoint[Mapper](cfg, ContainerMapper{Handler: h}))

	typ, ok := RelevantType(context.Background(), invocation.New(cfg, nil), "Customers")
	require.True(t, ok)
	assert.Equal(t, "NS.Customer", typ)
}

func TestAddElementReplacesSameDeclaration(t *testing.T) {
	m := NewEdmModel()
	m.AddElement(&EntityType{Namespace: "NS", Name: "A", Key: []string{"Id"}})
	m.AddElement(&EntityType{Namespace: "NS", Name: "A", Key: []string{"Code"}})
	m.AddElement(&Operation{Namespace: "NS", Name: "F", Parameters: []Parameter{{Name: "x", Type: KindInt64}}})
	m.AddElement(&Operation{Namespace: "NS", Name: "F", Parameters: []Parameter{{Name: "y", Type: KindString}}})

	require.Len(t, m.SchemaElements(), 3)
	et, _ := m.FindDeclaredType("NS.A")
	assert.Equal(t, []string{"Code"}, et.(*EntityType).Key)
	assert.Len(t, m.FindDeclaredOperations("NS.F"), 2, "overloads coexist")
}
