package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/hookpoint/internal/ir"
)

// Dialect renders the provider-specific parts of a statement: JSON field
// access over the payload column, placeholders, and paging.
//
// Conditions returned by a dialect may evaluate to NULL. The compiler
// folds them to FALSE so that Not keeps two-valued semantics.
type Dialect interface {
	// Name is the dialect name, "sqlite" or "postgres".
	Name() string

	// Present is a condition holding when field is present and non-null.
	Present(field string) string

	// Equals is a condition holding when field has the same kind and value
	// as v. v is never null.
	Equals(field string, v ir.IRValue) (string, []any, error)

	// Compare is a condition holding when field has the same kind as the
	// scalar v and compares to it with op.
	Compare(field, op string, v ir.IRValue) (string, []any)

	// Order returns the ORDER BY terms sorting field by kind rank, then
	// value.
	Order(field string, desc bool) []string

	// Paging renders LIMIT/OFFSET for the given placeholders. Either may
	// be empty.
	Paging(limit, offset string) string

	// Rebind rewrites '?' placeholders into the dialect's form.
	Rebind(query string) string
}

// ForDriver returns the dialect of a database/sql driver name.
func ForDriver(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite{}, nil
	case "pgx", "postgres":
		return Postgres{}, nil
	}
	return nil, fmt.Errorf("no SQL dialect for driver %q", driver)
}

func direction(desc bool) string {
	if desc {
		return " DESC"
	}
	return " ASC"
}

// SQLite addresses payload fields of a TEXT column with json_type and
// json_extract.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) typeOf(field string) string {
	return fmt.Sprintf("json_type(payload, '$.%s')", field)
}

func (SQLite) extract(field string) string {
	return fmt.Sprintf("json_extract(payload, '$.%s')", field)
}

func (d SQLite) Present(field string) string {
	return fmt.Sprintf("%s <> 'null'", d.typeOf(field))
}

func (d SQLite) Equals(field string, v ir.IRValue) (string, []any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return fmt.Sprintf("(%s = 'text' AND %s = ?)", d.typeOf(field), d.extract(field)), []any{string(val)}, nil
	case ir.IRInt:
		return fmt.Sprintf("(%s = 'integer' AND %s = ?)", d.typeOf(field), d.extract(field)), []any{int64(val)}, nil
	case ir.IRBool:
		return fmt.Sprintf("%s = '%t'", d.typeOf(field), bool(val)), nil, nil
	case ir.IRArray, ir.IRObject:
		b, err := ir.MarshalCanonical(v)
		if err != nil {
			return "", nil, err
		}
		tag := "array"
		if _, ok := v.(ir.IRObject); ok {
			tag = "object"
		}
		return fmt.Sprintf("(%s = '%s' AND %s = json(?))", d.typeOf(field), tag, d.extract(field)), []any{string(b)}, nil
	}
	return "", nil, fmt.Errorf("cannot compare with %T", v)
}

func (d SQLite) Compare(field, op string, v ir.IRValue) (string, []any) {
	switch val := v.(type) {
	case ir.IRString:
		return fmt.Sprintf("(%s = 'text' AND %s %s ?)", d.typeOf(field), d.extract(field), op), []any{string(val)}
	case ir.IRInt:
		return fmt.Sprintf("(%s = 'integer' AND %s %s ?)", d.typeOf(field), d.extract(field), op), []any{int64(val)}
	case ir.IRBool:
		n := int64(0)
		if val {
			n = 1
		}
		return fmt.Sprintf("(%s IN ('true', 'false') AND %s %s ?)", d.typeOf(field), d.extract(field), op), []any{n}
	}
	return "FALSE", nil
}

// Order sorts null first, then booleans, integers, text, arrays and
// objects. Within a rank json_extract yields 0/1 for booleans and the
// minified JSON text for containers.
func (d SQLite) Order(field string, desc bool) []string {
	rank := fmt.Sprintf("(CASE %s WHEN 'true' THEN 1 WHEN 'false' THEN 1 WHEN 'integer' THEN 2 WHEN 'text' THEN 3 WHEN 'array' THEN 4 WHEN 'object' THEN 5 ELSE 0 END)", d.typeOf(field))
	value := d.extract(field) + " COLLATE BINARY"
	return []string{rank + direction(desc), value + direction(desc)}
}

func (SQLite) Paging(limit, offset string) string {
	if limit == "" && offset == "" {
		return ""
	}
	if limit == "" {
		limit = "-1"
	}
	s := " LIMIT " + limit
	if offset != "" {
		s += " OFFSET " + offset
	}
	return s
}

func (SQLite) Rebind(query string) string { return query }

// Postgres addresses payload fields of a JSONB column.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) typeOf(field string) string {
	return fmt.Sprintf("jsonb_typeof(payload->'%s')", field)
}

func (d Postgres) Present(field string) string {
	return fmt.Sprintf("%s <> 'null'", d.typeOf(field))
}

func (Postgres) Equals(field string, v ir.IRValue) (string, []any, error) {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("payload->'%s' = ?::jsonb", field), []any{string(b)}, nil
}

func (d Postgres) scalar(field, tag, cast string) string {
	return fmt.Sprintf("(CASE WHEN %s = '%s' THEN (payload->>'%s')%s END)", d.typeOf(field), tag, field, cast)
}

func (d Postgres) Compare(field, op string, v ir.IRValue) (string, []any) {
	switch val := v.(type) {
	case ir.IRString:
		return fmt.Sprintf(`%s %s ? COLLATE "C"`, d.scalar(field, "string", ` COLLATE "C"`), op), []any{string(val)}
	case ir.IRInt:
		return fmt.Sprintf("%s %s ?", d.scalar(field, "number", "::bigint"), op), []any{int64(val)}
	case ir.IRBool:
		return fmt.Sprintf("%s %s ?", d.scalar(field, "boolean", "::boolean"), op), []any{bool(val)}
	}
	return "FALSE", nil
}

// Order uses the same kind ranks as SQLite so both dialects page a mixed
// column identically. Integers sort numerically and everything else by its
// text under the "C" collation.
func (d Postgres) Order(field string, desc bool) []string {
	rank := fmt.Sprintf("(CASE %s WHEN 'boolean' THEN 1 WHEN 'number' THEN 2 WHEN 'string' THEN 3 WHEN 'array' THEN 4 WHEN 'object' THEN 5 ELSE 0 END)", d.typeOf(field))
	return []string{
		rank + direction(desc),
		d.scalar(field, "number", "::bigint") + direction(desc),
		fmt.Sprintf(`(payload->>'%s') COLLATE "C"`, field) + direction(desc),
	}
}

func (Postgres) Paging(limit, offset string) string {
	var s string
	if limit != "" {
		s += " LIMIT " + limit
	}
	if offset != "" {
		s += " OFFSET " + offset
	}
	return s
}

// Rebind numbers placeholders $1, $2, ... The compiler never emits string
// literals containing '?', so every '?' is a placeholder.
func (Postgres) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
