package multimap

import (
	"context"
	"database/sql"
	"reflect"
)

// Query executes the SQL query and scans all result rows into a slice of T.
//
// T may be a struct (supports `db` tags and ,inline), a primitive, or any type
// implementing [sql.Scanner]. Column mapping prefers `db:"name"` tags;
// otherwise it matches case-insensitive field names.
//
// The binding plan is derived once per query from the result's columns and
// reused for every row. Plans are cached across queries by the [FieldMap] of
// the result, so a repeated query shape skips reflection entirely. Safe for
// concurrent use.
//
// Example:
//
//	type User struct {
//	    ID    int64  `db:"id"`
//	    Email string `db:"email"`
//	}
//
//	users, err := multimap.Query[User](ctx, db, `SELECT id, email FROM users ORDER BY id`)
func Query[T any](ctx context.Context, q Querier, query string, args ...any) ([]T, error) {
	return QueryWith[T](ctx, nil, q, query, args...)
}

// QueryWith is [Query] using the plans and options of m. A nil m uses the
// package Mapper.
func QueryWith[T any](ctx context.Context, m *Mapper, q Querier, query string, args ...any) (out []T, err error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Propagate rows.Close() error if nothing else failed.
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	pl, err := m.or().rowPlan(reflect.TypeOf((*T)(nil)).Elem(), rows)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		v, scanErr := scanRow[T](pl, rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, v)
	}
	if ne := rows.Err(); ne != nil {
		return nil, ne
	}
	return out, nil
}

// scanRow scans the current row into a new T.
func scanRow[T any](pl *plan, rows *sql.Rows) (T, error) {
	var zero T
	rv := reflect.New(pl.rt) // *T
	dests, cleanup, err := pl.destPtrs(rv)
	if err != nil {
		return zero, err
	}
	if err := rows.Scan(dests...); err != nil {
		return zero, err
	}
	if err := cleanup(); err != nil {
		return zero, err
	}
	return rv.Elem().Interface().(T), nil
}
