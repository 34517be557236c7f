package multimap

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Unassigned marks a column that no entity prefix claims.
const Unassigned = -1

// QueryFieldMap is the binding plan of a flattened multi-entity row: one
// FieldMap per requested entity, index-aligned with the requested types.
//
// Entity 0 is the primary entity. Every other entity has
// ReturnNullIfFirstMissing set.
type QueryFieldMap struct {
	maps []FieldMap
	hash uint64
}

// NewQueryFieldMap partitions the columns of shape across types by prefix.
//
// A column belongs to the entity with the longest prefix that
// case-insensitively starts its name, and the prefix is stripped from the
// field name. The empty prefix, conventionally given for entity 0, claims
// whatever no other prefix does.
//
// Every entity must receive at least one column; otherwise the returned error
// is a *PrefixError wrapping ErrNoColumnsForEntity.
func NewQueryFieldMap(types []TypeID, prefixes []string, shape Shape) (QueryFieldMap, error) {
	if shape == nil || shape.FieldCount() == 0 {
		return QueryFieldMap{}, ErrEmptyShape
	}
	if len(types) != len(prefixes) {
		return QueryFieldMap{}, fmt.Errorf("%w: %d types, %d prefixes", ErrMismatchedArity, len(types), len(prefixes))
	}

	assignment := Assign(prefixes, shape)
	maps := make([]FieldMap, len(types))
	for i, typ := range types {
		maps[i] = NewAssignedFieldMap(typ, assignment, i, len(prefixes[i]), i != 0, shape)
		if maps[i].Count() == 0 {
			return QueryFieldMap{}, &PrefixError{Prefix: prefixes[i]}
		}
	}
	return newQueryFieldMap(maps), nil
}

// NewSplitFieldMap partitions the columns of shape across types at split
// columns. Entity i+1 starts at the first column after the start of entity i
// whose name equals splitOn[i], ignoring case. A single split name is used for
// every boundary.
//
// Column names are kept as reported. A split column that cannot be found
// fails with ErrInvalidSplit.
func NewSplitFieldMap(types []TypeID, splitOn []string, shape Shape) (QueryFieldMap, error) {
	if shape == nil || shape.FieldCount() == 0 {
		return QueryFieldMap{}, ErrEmptyShape
	}
	if len(types) == 0 {
		return QueryFieldMap{}, fmt.Errorf("%w: no types", ErrMismatchedArity)
	}
	if len(types) > 1 && len(splitOn) != 1 && len(splitOn) != len(types)-1 {
		return QueryFieldMap{}, fmt.Errorf("%w: %d types, %d split columns", ErrMismatchedArity, len(types), len(splitOn))
	}

	starts := make([]int, len(types))
	for i := 1; i < len(types); i++ {
		name := splitOn[0]
		if len(splitOn) > 1 {
			name = splitOn[i-1]
		}
		ord := findColumn(shape, name, starts[i-1]+1)
		if ord < 0 {
			return QueryFieldMap{}, fmt.Errorf("%w: no column %q after ordinal %d", ErrInvalidSplit, name, starts[i-1])
		}
		starts[i] = ord
	}

	maps := make([]FieldMap, len(types))
	for i, typ := range types {
		length := -1
		if i+1 < len(starts) {
			length = starts[i+1] - starts[i]
		}
		m, err := NewFieldMap(typ, starts[i], length, i != 0, shape)
		if err != nil {
			return QueryFieldMap{}, err
		}
		maps[i] = m
	}
	return newQueryFieldMap(maps), nil
}

func findColumn(shape Shape, name string, from int) int {
	for ord := from; ord < shape.FieldCount(); ord++ {
		if strings.EqualFold(shape.Name(ord), name) {
			return ord
		}
	}
	return -1
}

func newQueryFieldMap(maps []FieldMap) QueryFieldMap {
	h := uint64(17)
	for _, m := range maps {
		h = 31*h + m.Hash()
	}
	return QueryFieldMap{maps: maps, hash: h}
}

type fieldPrefix struct {
	index  int
	prefix string
}

// Assign returns, for every ordinal of shape, the index of the prefix that
// claims it, or Unassigned.
//
// Matching ignores ASCII letter case only. Longer prefixes are tried first.
// Prefixes of equal length are tried in descending case-insensitive order, and
// duplicates by ascending index.
func Assign(prefixes []string, shape Shape) []int {
	sorted := make([]fieldPrefix, len(prefixes))
	for i, p := range prefixes {
		sorted[i] = fieldPrefix{index: i, prefix: p}
	}
	slices.SortStableFunc(sorted, func(a, b fieldPrefix) int {
		if c := cmp.Compare(len(b.prefix), len(a.prefix)); c != 0 {
			return c
		}
		return cmp.Compare(toLowerAscii(b.prefix), toLowerAscii(a.prefix))
	})

	assignment := make([]int, shape.FieldCount())
	for ord := range assignment {
		name := shape.Name(ord)
		assignment[ord] = Unassigned
		for _, p := range sorted {
			if hasPrefixFold(name, p.prefix) {
				assignment[ord] = p.index
				break
			}
		}
	}
	return assignment
}

// hasPrefixFold reports whether s starts with prefix, folding ASCII letters
// only. Other bytes must match exactly, so a match always ends on a rune
// boundary of s and stripping len(prefix) bytes leaves valid UTF-8.
func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if lowerASCII(s[i]) != lowerASCII(prefix[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// Len is the number of entities.
func (q QueryFieldMap) Len() int { return len(q.maps) }

// At returns the FieldMap of entity i.
func (q QueryFieldMap) At(i int) FieldMap { return q.maps[i] }

// All yields the entity maps in order.
func (q QueryFieldMap) All() iter.Seq2[int, FieldMap] {
	return func(yield func(int, FieldMap) bool) {
		for i, m := range q.maps {
			if !yield(i, m) {
				return
			}
		}
	}
}

func (q QueryFieldMap) Hash() uint64 { return q.hash }

func (q QueryFieldMap) Equal(o QueryFieldMap) bool {
	if q.hash != o.hash || len(q.maps) != len(o.maps) {
		return false
	}
	for i := range q.maps {
		if !q.maps[i].Equal(o.maps[i]) {
			return false
		}
	}
	return true
}

func (q QueryFieldMap) String() string {
	var b strings.Builder
	for i, m := range q.maps {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s{%s}", m.Type(), m)
	}
	return b.String()
}
