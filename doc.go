/*
Package multimap binds the columns of a database/sql result to one or more Go
types and caches the binding per result shape.

# Overview

A flattened join row carries several entities side by side:

	Id | Name | Address_Street | Address_City

multimap decides, once per distinct shape, which ordinals belong to which
entity, under which names and declared types. That decision is a value:

  - [FieldMap] is the plan for one entity: ordered (ordinal, name, type)
    fields plus ReturnNullIfFirstMissing.
  - [QueryFieldMap] is the plan for a whole row: one FieldMap per entity.

Both are immutable, comparable with Equal and carry a precomputed Hash, so two
plans built independently from the same shape are interchangeable cache keys.

# Partitioning

[NewQueryFieldMap] assigns each column to the entity with the longest prefix
that starts its name, ignoring case, and strips that prefix. The empty prefix,
given for the first (primary) entity, claims everything else. An entity that
receives no columns is an error (*[PrefixError]).

[NewSplitFieldMap] cuts the row at split columns instead, the way key columns
named "Id" separate the tables of a join.

Every entity but the first has ReturnNullIfFirstMissing set: when its first
column is NULL the entity is absent from that row.

# Mapping rules

  - Fields bind by `db:"name"` first; otherwise case-insensitive field ←→ column name.
  - Nested structs can be flattened with `db:",inline"`.
  - If a destination type (or field) implements sql.Scanner, its Scan method receives the driver value.
  - Extra columns are ignored (or rejected by a Mapper built with WithStrict); missing columns yield zero values.

# Performance

[Query], [Get], [QueryPair], [QueryTriple] and [QuerySplit] read the result
shape once per query, build its plan, and look up the compiled scan plan in a
concurrency-safe cache keyed by the plan's value. Subsequent rows and repeated
queries of the same shape avoid reflection on the hot path.

Those helpers share one package [Mapper]. Each has a With variant
([QueryWith], [GetWith], [QueryPairWith], [QueryTripleWith], [QuerySplitWith])
taking its own Mapper, such as one built with [WithStrict]; plans are never
shared between Mappers.

# Error handling

Structural mismatches surface before any row is read and are never retried:
[ErrEmptyShape], [ErrMismatchedArity], [ErrInvalidSplit] and
[ErrNoColumnsForEntity]. Match them with errors.Is. Driver errors are
propagated unchanged; Get returns sql.ErrNoRows when no row matches.
*/
package multimap
