package multimap

import (
	"context"
	"database/sql"
	"reflect"
)

// Get executes the SQL query and scans the first row into a value of type T.
//
// It returns [sql.ErrNoRows] if the query yields no rows and does not enforce
// "exactly one row" beyond the first; if more rows exist, they are ignored.
// Use LIMIT 1 (or an equivalent WHERE clause) when you require at-most-one
// row. Mapping rules are the same as [Query].
func Get[T any](ctx context.Context, q Querier, query string, args ...any) (T, error) {
	return GetWith[T](ctx, nil, q, query, args...)
}

// GetWith is [Get] using the plans and options of m. A nil m uses the
// package Mapper.
func GetWith[T any](ctx context.Context, m *Mapper, q Querier, query string, args ...any) (out T, err error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return out, err
	}
	// Ensure Close error is propagated if no earlier error occurred.
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if !rows.Next() {
		if ne := rows.Err(); ne != nil {
			return out, ne
		}
		return out, sql.ErrNoRows
	}

	pl, err := m.or().rowPlan(reflect.TypeOf((*T)(nil)).Elem(), rows)
	if err != nil {
		return out, err
	}
	return scanRow[T](pl, rows)
}
