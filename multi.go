package multimap

import (
	"context"
	"reflect"
)

// Pair is one flattened row holding a primary entity and an optional second
// entity. Second is nil when the row carries no match for it (its first
// column is NULL), as in a LEFT JOIN.
type Pair[A, B any] struct {
	First  A
	Second *B
}

// Triple is Pair with a third optional entity.
type Triple[A, B, C any] struct {
	First  A
	Second *B
	Third  *C
}

// QueryPair executes the query and splits each row between A and B by column
// prefix: columns whose name starts with prefix (ignoring case) bind to B with
// the prefix removed, every other column binds to A.
//
// Example:
//
//	type Person struct{ ID int64; Name string }
//	type Address struct{ Street, City string }
//
//	rows, err := multimap.QueryPair[Person, Address](ctx, db, "Address_", `
//	    SELECT p.id, p.name, a.street AS Address_Street, a.city AS Address_City
//	    FROM person p LEFT JOIN address a ON a.person_id = p.id`)
func QueryPair[A, B any](ctx context.Context, q Querier, prefix string, query string, args ...any) ([]Pair[A, B], error) {
	return QueryPairWith[A, B](ctx, nil, q, prefix, query, args...)
}

// QueryPairWith is [QueryPair] using the plans and options of m. A nil m uses
// the package Mapper.
func QueryPairWith[A, B any](ctx context.Context, m *Mapper, q Querier, prefix string, query string, args ...any) ([]Pair[A, B], error) {
	var out []Pair[A, B]
	err := m.or().queryMulti(ctx, q, prefixLayout("", prefix), []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B]()}, query, args, func(vals []reflect.Value) {
		out = append(out, Pair[A, B]{
			First:  vals[0].Elem().Interface().(A),
			Second: entityPtr[B](vals[1]),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryTriple is QueryPair with a third entity claimed by prefixC. When one
// prefix starts with the other, the longer prefix claims its columns.
func QueryTriple[A, B, C any](ctx context.Context, q Querier, prefixB, prefixC string, query string, args ...any) ([]Triple[A, B, C], error) {
	return QueryTripleWith[A, B, C](ctx, nil, q, prefixB, prefixC, query, args...)
}

// QueryTripleWith is [QueryTriple] using the plans and options of m.
func QueryTripleWith[A, B, C any](ctx context.Context, m *Mapper, q Querier, prefixB, prefixC string, query string, args ...any) ([]Triple[A, B, C], error) {
	var out []Triple[A, B, C]
	err := m.or().queryMulti(ctx, q, prefixLayout("", prefixB, prefixC), []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C]()}, query, args, func(vals []reflect.Value) {
		out = append(out, Triple[A, B, C]{
			First:  vals[0].Elem().Interface().(A),
			Second: entityPtr[B](vals[1]),
			Third:  entityPtr[C](vals[2]),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QuerySplit executes the query and splits each row between A and B at a
// split column: B starts at the first column after the leading one whose name
// is splitOn, ignoring case. Column names are not rewritten.
//
//	// SELECT p.id, p.name, a.id, a.street FROM ... splits at the second id.
//	rows, err := multimap.QuerySplit[Person, Address](ctx, db, "id", query)
func QuerySplit[A, B any](ctx context.Context, q Querier, splitOn string, query string, args ...any) ([]Pair[A, B], error) {
	return QuerySplitWith[A, B](ctx, nil, q, splitOn, query, args...)
}

// QuerySplitWith is [QuerySplit] using the plans and options of m.
func QuerySplitWith[A, B any](ctx context.Context, m *Mapper, q Querier, splitOn string, query string, args ...any) ([]Pair[A, B], error) {
	var out []Pair[A, B]
	err := m.or().queryMulti(ctx, q, splitLayout(splitOn), []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B]()}, query, args, func(vals []reflect.Value) {
		out = append(out, Pair[A, B]{
			First:  vals[0].Elem().Interface().(A),
			Second: entityPtr[B](vals[1]),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
