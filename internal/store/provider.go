package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/hook"
	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/query"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/querysql"
	"github.com/roach88/hookpoint/internal/submit"
)

// ProviderName tags the Queryable roots this provider produces.
const ProviderName = "sql"

// ETagProperty is the annotation carrying a row's ETag in query results.
const ETagProperty = "@etag"

// Install registers the store as query sourcer and executor and as submit
// initializer and executor on cfg.
func (s *Store) Install(cfg *hook.Configuration) error {
	if err := hook.SetHookPoint[query.Sourcer](cfg, s); err != nil {
		return err
	}
	if err := hook.SetHookPoint[query.Executor](cfg, s); err != nil {
		return err
	}
	if err := hook.SetHookPoint[submit.Initializer](cfg, s); err != nil {
		return err
	}
	return hook.SetHookPoint[submit.Executor](cfg, s)
}

// ReplaceQueryableSource implements query.Sourcer.
func (s *Store) ReplaceQueryableSource(_ context.Context, ec *query.ExpressionContext, _ bool) (queryir.Expr, error) {
	ref := ec.ModelReference
	if ref.Kind == query.RefFunctionImport {
		return nil, apierr.NewNotImplemented("function " + ref.Name)
	}
	key, ok := s.keyOf(ref.Name)
	if !ok {
		return nil, apierr.NewNotFound(ref.Name, "no table for "+ref.Name)
	}
	return &queryir.Queryable{
		Name:     ref.Name,
		Provider: ProviderName,
		Handle:   querysql.Table{Set: ref.Name, Key: slices.Clone(key)},
	}, nil
}

func (s *Store) compiler(ic *invocation.Context) *querysql.Compiler {
	var bound queryir.Binder
	if ic != nil {
		bound = ic.Bound
	}
	return querysql.NewCompiler(s.dialect, bound)
}

// ExecuteQuery implements query.Executor. Rows carry their ETag under
// ETagProperty.
func (s *Store) ExecuteQuery(ctx context.Context, ic *invocation.Context, e queryir.Expr) ([]ir.IRObject, error) {
	stmt, err := s.compiler(ic).Compile(e)
	if err != nil {
		return nil, apierr.NewInvalidQuery(err)
	}
	scanned, err := s.scan(ctx, s.db, stmt)
	if err != nil {
		return nil, err
	}
	rows := make([]ir.IRObject, len(scanned))
	for i, r := range scanned {
		row := r.row
		if stmt.Fields != nil {
			row = row.Project(stmt.Fields)
		}
		row[ETagProperty] = ir.IRString(r.etag)
		rows[i] = row
	}
	return rows, nil
}

// ExecuteCount implements query.Executor.
func (s *Store) ExecuteCount(ctx context.Context, ic *invocation.Context, e queryir.Expr) (int64, error) {
	stmt, err := s.compiler(ic).CompileCount(e)
	if err != nil {
		return 0, apierr.NewInvalidQuery(err)
	}
	s.logger.Debug("executing count", "sql", stmt.SQL)
	var n int64
	if err := s.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

type scannedRow struct {
	row  ir.IRObject
	etag string
}

func (s *Store) scan(ctx context.Context, q querier, stmt *querysql.Statement) ([]scannedRow, error) {
	s.logger.Debug("executing query", "sql", stmt.SQL)
	rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var out []scannedRow
	for rows.Next() {
		var rkey, payload, etag string
		if err := rows.Scan(&rkey, &payload, &etag); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		row, err := decodeRow(payload)
		if err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", rkey, err)
		}
		out = append(out, scannedRow{row: row, etag: etag})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", err)
	}
	return out, nil
}

// InitializeChangeSet implements submit.Initializer.
func (s *Store) InitializeChangeSet(ctx context.Context, sc *submit.Context) error {
	return submit.Preparer{Loader: s, Keys: s.nextKey}.InitializeChangeSet(ctx, sc)
}

// ExecuteSubmit implements submit.Executor. The whole change set applies in
// one transaction: the first failing entry rolls back every earlier one.
func (s *Store) ExecuteSubmit(ctx context.Context, sc *submit.Context) (*submit.Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin submit: %w", err)
	}
	defer tx.Rollback()

	for i, e := range sc.ChangeSet().Entries {
		var err error
		switch v := e.(type) {
		case *submit.DataModificationEntry:
			err = s.apply(ctx, tx, v)
		case *submit.ActionInvocationEntry:
			err = submit.InvokeAction(ctx, sc, v)
		default:
			err = apierr.NewInvalidEntry(e.Kind())
		}
		if err == nil {
			err = s.journal(ctx, tx, sc.ID(), i, e)
		}
		if err != nil {
			return &submit.Result{Err: err}, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit submit: %w", err)
	}
	return &submit.Result{ChangeSet: sc.ChangeSet()}, nil
}

func (s *Store) apply(ctx context.Context, tx querier, e *submit.DataModificationEntry) error {
	key, ok := s.keyOf(e.EntitySet)
	if !ok {
		return apierr.NewNotFound(e.EntitySet, "no table for "+e.EntitySet)
	}
	ks, err := ir.KeyString(e.Key)
	if err != nil {
		return err
	}
	_, cur, exists, err := s.loadRow(ctx, tx, e.EntitySet, e.Key)
	if err != nil {
		return err
	}

	switch e.Operation {
	case submit.OpInsert:
		if exists {
			return apierr.NewConflict(e.EntitySet, "key "+ks+" already exists")
		}
	case submit.OpUpdate, submit.OpDelete:
		if !exists {
			return apierr.NewNotFound(e.EntitySet, "no resource with key "+ks)
		}
		if cur != e.CurrentETag {
			return apierr.NewPreconditionFailed(e.EntitySet, e.CurrentETag, cur)
		}
	}

	if e.Operation == submit.OpDelete {
		_, err := tx.ExecContext(ctx,
			s.rebind("DELETE FROM resources WHERE set_name = ? AND rkey = ? AND etag = ?"),
			e.EntitySet, ks, cur,
		)
		if err != nil {
			return fmt.Errorf("store: delete %s %s: %w", e.EntitySet, ks, err)
		}
		return nil
	}
	tag, err := s.put(ctx, tx, e.EntitySet, key, e.Resource)
	if err != nil {
		return err
	}
	e.Resource = e.Resource.Merge(ir.Obj(ir.O(ETagProperty, ir.IRString(tag))))
	e.CurrentETag = tag
	return nil
}

// JournalEntry is one committed change set entry.
type JournalEntry struct {
	Seq       int64
	RequestID string
	Position  int
	Kind      string
	Target    string
	Key       string
	ETag      string
}

// journal appends e at position i of request id. A replayed request leaves
// the journal unchanged.
func (s *Store) journal(ctx context.Context, tx querier, id string, i int, e submit.Entry) error {
	var ks, tag string
	if d, ok := e.(*submit.DataModificationEntry); ok {
		var err error
		if ks, err = ir.KeyString(d.Key); err != nil {
			return err
		}
		if d.Operation != submit.OpDelete {
			tag = d.CurrentETag
		}
	}
	_, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO journal (request_id, position, kind, target, rkey, etag)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id, position) DO NOTHING
	`), id, i, e.Kind(), submit.Target(e), ks, tag)
	if err != nil {
		return fmt.Errorf("store: journal: %w", err)
	}
	return nil
}

// Journal returns every committed entry in commit order.
func (s *Store) Journal(ctx context.Context) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, request_id, position, kind, target, rkey, etag
		FROM journal
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var j JournalEntry
		if err := rows.Scan(&j.Seq, &j.RequestID, &j.Position, &j.Kind, &j.Target, &j.Key, &j.ETag); err != nil {
			return nil, fmt.Errorf("store: journal scan: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
