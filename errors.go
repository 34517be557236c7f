package multimap

import (
	"errors"
	"fmt"
)

// ErrEmptyShape is returned when a result set has no columns. A query that
// selects nothing cannot be bound to any entity.
var ErrEmptyShape = errors.New("multimap: no columns were selected")

// ErrMismatchedArity is returned when the number of entity types and the
// number of prefixes (or split names) disagree.
var ErrMismatchedArity = errors.New("multimap: number of prefixes does not match number of types")

// ErrInvalidSplit is returned when a split point does not correspond to a
// column of the result set. When using the multi-mapping helpers, set the
// split column explicitly if the key column is not named "Id".
var ErrInvalidSplit = errors.New("multimap: split point is beyond the selected columns")

// ErrNoColumnsForEntity is returned when an entity slot claims no columns
// after partitioning. Use errors.As with *PrefixError to get the prefix.
var ErrNoColumnsForEntity = errors.New("multimap: no columns found for entity")

// ErrUnmappedColumn is returned in strict mode when a bound column matches no
// destination field.
var ErrUnmappedColumn = errors.New("multimap: column has no destination field")

// PrefixError reports the prefix of an entity that received no columns.
type PrefixError struct {
	Prefix string
}

func (e *PrefixError) Error() string {
	if e.Prefix == "" {
		return "multimap: no columns found for empty prefix"
	}
	return fmt.Sprintf("multimap: no columns found for prefix %q", e.Prefix)
}

func (e *PrefixError) Unwrap() error { return ErrNoColumnsForEntity }
