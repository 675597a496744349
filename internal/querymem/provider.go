// Package querymem is an in-memory provider for the query and submit
// pipelines. It resolves entity sets to tables held in process memory,
// evaluates rewritten expressions directly over the rows, and applies change
// sets atomically.
package querymem

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/submit"
)

// ProviderName tags the Queryable roots this provider produces.
const ProviderName = "memory"

// ETagProperty is the annotation carrying a row's ETag in query results.
const ETagProperty = "@etag"

type stored struct {
	row  ir.IRObject
	etag string
}

type table struct {
	key  []string
	rows map[string]stored
	next int64
}

func (t *table) clone() *table {
	c := &table{key: t.key, rows: make(map[string]stored, len(t.rows)), next: t.next}
	for k, v := range t.rows {
		c.rows[k] = v
	}
	return c
}

// put stores a copy of row and returns its ETag.
func (t *table) put(row ir.IRObject) (string, error) {
	key := make(ir.IRObject, len(t.key))
	for _, name := range t.key {
		v, ok := row[name]
		if !ok || ir.IsNull(v) {
			return "", fmt.Errorf("row is missing key property %s", name)
		}
		key[name] = v
		if n, ok := v.(ir.IRInt); ok && len(t.key) == 1 && int64(n) >= t.next {
			t.next = int64(n) + 1
		}
	}
	ks, err := ir.KeyString(key)
	if err != nil {
		return "", err
	}
	clean := submit.Writable(row).Clone()
	tag, err := ir.ETag(clean)
	if err != nil {
		return "", err
	}
	t.rows[ks] = stored{row: clean, etag: tag}
	return tag, nil
}

// sorted returns every row in key order.
func (t *table) sorted() []stored {
	out := make([]stored, 0, len(t.rows))
	for _, s := range t.rows {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b stored) int {
		for _, k := range t.key {
			if c := ir.Compare(a.row[k], b.row[k]); c != 0 {
				return c
			}
		}
		return 0
	})
	return out
}

// Provider holds tables keyed by entity set or singleton name.
// It is safe for concurrent use.
type Provider struct {
	mu      sync.RWMutex
	tables  map[string]*table
	version int64
}

// New creates an empty provider.
func New() *Provider {
	return &Provider{tables: make(map[string]*table)}
}

// Define creates an empty table for set. Defining an existing table keeps
// its rows.
func (p *Provider) Define(set string, key ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tables[set]; ok {
		return
	}
	p.tables[set] = &table{key: key, rows: make(map[string]stored), next: 1}
}

// DefineModel creates a table for every entity set and singleton in m.
func (p *Provider) DefineModel(m model.Model) {
	c := m.EntityContainer()
	if c == nil {
		return
	}
	for _, el := range c.Elements() {
		switch el.ContainerKind() {
		case model.ContainerEntitySet, model.ContainerSingleton:
			if et, ok := model.EntityTypeOf(m, el.ElementName()); ok {
				p.Define(el.ElementName(), et.Key...)
			}
		}
	}
}

// Load inserts or replaces rows in a defined table.
func (p *Provider) Load(set string, rows ...ir.IRObject) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tables[set]
	if !ok {
		return fmt.Errorf("querymem: table %s is not defined", set)
	}
	for i, row := range rows {
		if _, err := t.put(row); err != nil {
			return fmt.Errorf("querymem: %s row %d: %w", set, i, err)
		}
	}
	p.version++
	return nil
}

// Rows returns a copy of every row of set in key order.
func (p *Provider) Rows(set string) []ir.IRObject {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tables[set]
	if !ok {
		return nil
	}
	var out []ir.IRObject
	for _, s := range t.sorted() {
		out = append(out, s.row.Clone())
	}
	return out
}

// Install registers the provider as query sourcer and executor and as
// submit initializer and executor on cfg.
func (p *Provider) Install(cfg *hook.Configuration) error {
	if err := hook.SetHookPoint[query.Sourcer](cfg, p); err != nil {
		return err
	}
	if err := hook.SetHookPoint[query.Executor](cfg, p); err != nil {
		return err
	}
	if err := hook.SetHookPoint[submit.Initializer](cfg, p); err != nil {
		return err
	}
	return hook.SetHookPoint[submit.Executor](cfg, p)
}

// ReplaceQueryableSource implements query.Sourcer.
func (p *Provider) ReplaceQueryableSource(_ context.Context, ec *query.ExpressionContext, _ bool) (queryir.Expr, error) {
	ref := ec.ModelReference
	if ref.Kind == query.RefFunctionImport {
		return nil, apierr.NewNotImplemented("function " + ref.Name)
	}
	p.mu.RLock()
	_, ok := p.tables[ref.Name]
	p.mu.RUnlock()
	if !ok {
		return nil, apierr.NewNotFound(ref.Name, "no table for "+ref.Name)
	}
	return &queryir.Queryable{Name: ref.Name, Provider: ProviderName, Handle: ref.Name}, nil
}

// LoadRow implements submit.RowLoader.
func (p *Provider) LoadRow(_ context.Context, set string, key ir.IRObject) (ir.IRObject, string, bool, error) {
	ks, err := ir.KeyString(key)
	if err != nil {
		return nil, "", false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tables[set]
	if !ok {
		return nil, "", false, apierr.NewNotFound(set, "no table for "+set)
	}
	s, ok := t.rows[ks]
	if !ok {
		return nil, "", false, nil
	}
	return s.row.Clone(), s.etag, true, nil
}

// nextKey reserves the next integer key of set.
func (p *Provider) nextKey(_ context.Context, set string, et *model.EntityType) (ir.IRObject, error) {
	p.mu.Lock()
	t, ok := p.tables[set]
	var n int64
	if ok {
		n = t.next
		t.next++
	}
	p.mu.Unlock()
	if !ok {
		return nil, apierr.NewNotFound(set, "no table for "+set)
	}
	return submit.GenerateKey(et, n)
}

// InitializeChangeSet implements submit.Initializer.
func (p *Provider) InitializeChangeSet(ctx context.Context, sc *submit.Context) error {
	return submit.Preparer{Loader: p, Keys: p.nextKey}.InitializeChangeSet(ctx, sc)
}
