package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/hookpoint/internal/apierr"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
	"github.com/roach88/hookpoint/internal/queryir"
	"github.com/roach88/hookpoint/internal/querysql"
	"github.com/roach88/hookpoint/internal/submit"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Define registers the key of set. Rows of undefined sets cannot be loaded
// or queried.
func (s *Store) Define(set string, key ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[set]; ok {
		return
	}
	s.keys[set] = key
}

// DefineModel defines every entity set and singleton in m.
func (s *Store) DefineModel(m model.Model) {
	c := m.EntityContainer()
	if c == nil {
		return
	}
	for _, el := range c.Elements() {
		switch el.ContainerKind() {
		case model.ContainerEntitySet, model.ContainerSingleton:
			if et, ok := model.EntityTypeOf(m, el.ElementName()); ok {
				s.Define(el.ElementName(), et.Key...)
			}
		}
	}
}

func (s *Store) keyOf(set string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[set]
	return k, ok
}

// Load inserts or replaces rows of a defined set.
func (s *Store) Load(ctx context.Context, set string, rows ...ir.IRObject) error {
	key, ok := s.keyOf(set)
	if !ok {
		return fmt.Errorf("store: set %s is not defined", set)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin load: %w", err)
	}
	defer tx.Rollback()
	for i, row := range rows {
		if _, err := s.put(ctx, tx, set, key, row); err != nil {
			return fmt.Errorf("store: %s row %d: %w", set, i, err)
		}
	}
	return tx.Commit()
}

// Rows returns every row of set in key order, without annotations.
func (s *Store) Rows(ctx context.Context, set string) ([]ir.IRObject, error) {
	key, ok := s.keyOf(set)
	if !ok {
		return nil, apierr.NewNotFound(set, "no table for "+set)
	}
	root := &queryir.Queryable{Name: set, Provider: ProviderName, Handle: querysql.Table{Set: set, Key: key}}
	stmt, err := querysql.NewCompiler(s.dialect, nil).Compile(root)
	if err != nil {
		return nil, err
	}
	scanned, err := s.scan(ctx, s.db, stmt)
	if err != nil {
		return nil, err
	}
	out := make([]ir.IRObject, len(scanned))
	for i, r := range scanned {
		out[i] = r.row
	}
	return out, nil
}

// LoadRow implements submit.RowLoader.
func (s *Store) LoadRow(ctx context.Context, set string, key ir.IRObject) (ir.IRObject, string, bool, error) {
	if _, ok := s.keyOf(set); !ok {
		return nil, "", false, apierr.NewNotFound(set, "no table for "+set)
	}
	return s.loadRow(ctx, s.db, set, key)
}

func (s *Store) loadRow(ctx context.Context, q querier, set string, key ir.IRObject) (ir.IRObject, string, bool, error) {
	ks, err := ir.KeyString(key)
	if err != nil {
		return nil, "", false, err
	}
	var payload, etag string
	err = q.QueryRowContext(ctx,
		s.rebind("SELECT payload, etag FROM resources WHERE set_name = ? AND rkey = ?"),
		set, ks,
	).Scan(&payload, &etag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("store: load %s %s: %w", set, ks, err)
	}
	row, err := decodeRow(payload)
	if err != nil {
		return nil, "", false, fmt.Errorf("store: load %s %s: %w", set, ks, err)
	}
	return row, etag, true, nil
}

// put upserts the writable part of row and returns its ETag. A single
// integer key advances the key sequence of set past it.
func (s *Store) put(ctx context.Context, q querier, set string, key []string, row ir.IRObject) (string, error) {
	keyObj := make(ir.IRObject, len(key))
	for _, name := range key {
		v, ok := row[name]
		if !ok || ir.IsNull(v) {
			return "", fmt.Errorf("row is missing key property %s", name)
		}
		keyObj[name] = v
	}
	ks, err := ir.KeyString(keyObj)
	if err != nil {
		return "", err
	}
	clean := submit.Writable(row)
	payload, err := ir.MarshalCanonical(clean)
	if err != nil {
		return "", err
	}
	tag, err := ir.ETag(clean)
	if err != nil {
		return "", err
	}
	if _, err := q.ExecContext(ctx, s.rebind(`
		INSERT INTO resources (set_name, rkey, payload, etag)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (set_name, rkey) DO UPDATE SET payload = excluded.payload, etag = excluded.etag
	`), set, ks, string(payload), tag); err != nil {
		return "", fmt.Errorf("store: write %s %s: %w", set, ks, err)
	}
	if n, ok := keyObj[key[0]].(ir.IRInt); ok && len(key) == 1 {
		if err := s.advanceSequence(ctx, q, set, int64(n)+1); err != nil {
			return "", err
		}
	}
	return tag, nil
}

func (s *Store) advanceSequence(ctx context.Context, q querier, set string, next int64) error {
	_, err := q.ExecContext(ctx, s.rebind(`
		INSERT INTO key_sequences (set_name, next)
		VALUES (?, ?)
		ON CONFLICT (set_name) DO UPDATE SET next = CASE
			WHEN key_sequences.next > excluded.next THEN key_sequences.next
			ELSE excluded.next
		END
	`), set, next)
	if err != nil {
		return fmt.Errorf("store: advance key sequence of %s: %w", set, err)
	}
	return nil
}

// nextKey reserves the next integer key of set.
func (s *Store) nextKey(ctx context.Context, set string, et *model.EntityType) (ir.IRObject, error) {
	if _, ok := s.keyOf(set); !ok {
		return nil, apierr.NewNotFound(set, "no table for "+set)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin key reservation: %w", err)
	}
	defer tx.Rollback()

	n := int64(1)
	err = tx.QueryRowContext(ctx, s.rebind("SELECT next FROM key_sequences WHERE set_name = ?"), set).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: read key sequence of %s: %w", set, err)
	}
	if err := s.advanceSequence(ctx, tx, set, n+1); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit key reservation: %w", err)
	}
	return submit.GenerateKey(et, n)
}

func decodeRow(payload string) (ir.IRObject, error) {
	v, err := ir.UnmarshalIRValue([]byte(payload))
	if err != nil {
		return nil, err
	}
	row, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("payload is a %T, not an object", v)
	}
	return row, nil
}
