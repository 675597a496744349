package querymem

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/submit"
)

// ExecuteQuery implements query.Executor. Rows carry their ETag under
// ETagProperty.
func (p *Provider) ExecuteQuery(ctx context.Context, ic *invocation.Context, e queryir.Expr) ([]ir.IRObject, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.eval(ctx, ic, e)
}

// ExecuteCount implements query.Executor.
func (p *Provider) ExecuteCount(ctx context.Context, ic *invocation.Context, e queryir.Expr) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rows, err := p.eval(ctx, ic, e)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (p *Provider) eval(ctx context.Context, ic *invocation.Context, e queryir.Expr) ([]ir.IRObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := e.(type) {
	case *queryir.Queryable:
		if n.Provider != ProviderName {
			return nil, fmt.Errorf("querymem: cannot scan %s root %s", n.Provider, n.Name)
		}
		t, ok := p.tables[n.Name]
		if !ok {
			return nil, apierr.NewNotFound(n.Name, "no table for "+n.Name)
		}
		sorted := t.sorted()
		rows := make([]ir.IRObject, len(sorted))
		for i, s := range sorted {
			row := s.row.Clone()
			row[ETagProperty] = ir.IRString(s.etag)
			rows[i] = row
		}
		return rows, nil

	case *queryir.Where:
		rows, err := p.eval(ctx, ic, n.Input)
		if err != nil {
			return nil, err
		}
		out := rows[:0]
		for _, row := range rows {
			if queryir.Match(n.Pred, row, ic.Bound) {
				out = append(out, row)
			}
		}
		return out, nil

	case *queryir.OrderBy:
		rows, err := p.eval(ctx, ic, n.Input)
		if err != nil {
			return nil, err
		}
		// Input rows arrive in key order, so a stable sort leaves the key
		// as the final tiebreaker.
		slices.SortStableFunc(rows, func(a, b ir.IRObject) int {
			for _, k := range n.Keys {
				c := ir.Compare(a[k.Field], b[k.Field])
				if k.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
		return rows, nil

	case *queryir.Skip:
		rows, err := p.eval(ctx, ic, n.Input)
		if err != nil {
			return nil, err
		}
		if n.N >= int64(len(rows)) {
			return nil, nil
		}
		return rows[n.N:], nil

	case *queryir.Take:
		rows, err := p.eval(ctx, ic, n.Input)
		if err != nil {
			return nil, err
		}
		if n.N < int64(len(rows)) {
			rows = rows[:n.N]
		}
		return rows, nil

	case *queryir.Select:
		rows, err := p.eval(ctx, ic, n.Input)
		if err != nil {
			return nil, err
		}
		fields := append(slices.Clone(n.Fields), ETagProperty)
		for i, row := range rows {
			rows[i] = row.Project(fields)
		}
		return rows, nil

	case *queryir.Source, *queryir.Call:
		return nil, fmt.Errorf("querymem: unresolved root %s", queryir.Format(e))
	}
	return nil, fmt.Errorf("querymem: unsupported expression %T", e)
}

// ExecuteSubmit implements submit.Executor. Entries apply to a private copy
// of the tables, which replaces the live tables only if every entry
// succeeds and no other write landed in the meantime.
func (p *Provider) ExecuteSubmit(ctx context.Context, sc *submit.Context) (*submit.Result, error) {
	p.mu.RLock()
	base := p.version
	work := make(map[string]*table, len(p.tables))
	for name, t := range p.tables {
		work[name] = t.clone()
	}
	p.mu.RUnlock()

	for _, e := range sc.ChangeSet().Entries {
		var err error
		switch v := e.(type) {
		case *submit.DataModificationEntry:
			err = apply(work, v)
		case *submit.ActionInvocationEntry:
			err = submit.InvokeAction(ctx, sc, v)
		default:
			err = apierr.NewInvalidEntry(e.Kind())
		}
		if err != nil {
			return &submit.Result{Err: err}, nil
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.version != base {
		return &submit.Result{Err: apierr.NewConflict("", "tables changed during submit")}, nil
	}
	p.tables = work
	p.version++
	return &submit.Result{ChangeSet: sc.ChangeSet()}, nil
}

func apply(work map[string]*table, e *submit.DataModificationEntry) error {
	t, ok := work[e.EntitySet]
	if !ok {
		return apierr.NewNotFound(e.EntitySet, "no table for "+e.EntitySet)
	}
	ks, err := ir.KeyString(e.Key)
	if err != nil {
		return err
	}
	cur, exists := t.rows[ks]

	switch e.Operation {
	case submit.OpInsert:
		if exists {
			return apierr.NewConflict(e.EntitySet, "key "+ks+" already exists")
		}
	case submit.OpUpdate, submit.OpDelete:
		if !exists {
			return apierr.NewNotFound(e.EntitySet, "no resource with key "+ks)
		}
		if cur.etag != e.CurrentETag {
			return apierr.NewPreconditionFailed(e.EntitySet, e.CurrentETag, cur.etag)
		}
	}

	if e.Operation == submit.OpDelete {
		delete(t.rows, ks)
		return nil
	}
	tag, err := t.put(e.Resource)
	if err != nil {
		return err
	}
	e.Resource = e.Resource.Merge(ir.Obj(ir.O(ETagProperty, ir.IRString(tag))))
	e.CurrentETag = tag
	return nil
}
