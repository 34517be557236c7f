package multimap

import (
	"fmt"
	"strings"
)

// Field is one bound column of an entity.
type Field struct {
	Ordinal int
	Name    string // column name with the entity prefix removed
	Type    TypeID
}

// Equal compares ordinal, type and name (case-sensitive).
func (f Field) Equal(o Field) bool {
	return f.Ordinal == o.Ordinal && f.Type == o.Type && f.Name == o.Name
}

func (f Field) String() string { return fmt.Sprintf("[%d] => %s: <%s>", f.Ordinal, f.Name, f.Type) }

func (f Field) hash() uint64 {
	h := uint64(17)
	h = 31*h + uint64(f.Ordinal)
	h = 31*h + stringHash(f.Name)
	h = 31*h + f.Type.hash()
	return h
}

// nullableMix is -27 in two's complement.
const nullableMix = ^uint64(26)

// FieldMap is the binding plan of one entity against one result shape: which
// ordinals belong to the entity, in ascending order, under which names and
// declared types.
//
// A FieldMap is immutable. Two maps built independently from the same shape
// are Equal and have the same Hash, so they can key a plan cache.
type FieldMap struct {
	typ                      TypeID
	fields                   []Field
	returnNullIfFirstMissing bool
	hash                     uint64
}

// NewFieldMap binds the columns [start, start+length) of shape to typ. A
// negative length takes every column from start to the end. Column names are
// kept as reported.
//
// It fails with ErrEmptyShape when shape has no columns and with
// ErrInvalidSplit when the range falls outside the shape.
func NewFieldMap(typ TypeID, start, length int, returnNullIfFirstMissing bool, shape Shape) (FieldMap, error) {
	if shape == nil || shape.FieldCount() == 0 {
		return FieldMap{}, ErrEmptyShape
	}
	n := shape.FieldCount()
	if start < 0 || start >= n {
		return FieldMap{}, fmt.Errorf("%w: start ordinal %d, %d columns", ErrInvalidSplit, start, n)
	}
	if length < 0 {
		length = n - start
	}
	if length > n-start {
		return FieldMap{}, fmt.Errorf("%w: %d columns from ordinal %d, %d columns", ErrInvalidSplit, length, start, n)
	}

	fields := make([]Field, length)
	for i := range fields {
		fields[i] = newField(start+i, 0, shape)
	}
	return newFieldMap(typ, fields, returnNullIfFirstMissing), nil
}

// NewAssignedFieldMap binds every ordinal whose assignment equals index, in
// ascending order. prefixLen bytes are removed from the front of each column
// name. An entity with no assigned columns yields an empty map, not an error.
func NewAssignedFieldMap(typ TypeID, assignment []int, index, prefixLen int, returnNullIfFirstMissing bool, shape Shape) FieldMap {
	count := 0
	for _, a := range assignment {
		if a == index {
			count++
		}
	}
	fields := make([]Field, 0, count)
	for ord, a := range assignment {
		if a == index {
			fields = append(fields, newField(ord, prefixLen, shape))
		}
	}
	return newFieldMap(typ, fields, returnNullIfFirstMissing)
}

func newField(ordinal, prefixLen int, shape Shape) Field {
	name := shape.Name(ordinal)
	if prefixLen > 0 {
		if prefixLen >= len(name) {
			name = ""
		} else {
			name = name[prefixLen:]
		}
	}
	return Field{Ordinal: ordinal, Name: name, Type: shape.FieldType(ordinal)}
}

func newFieldMap(typ TypeID, fields []Field, returnNullIfFirstMissing bool) FieldMap {
	h := uint64(17)
	h = 31*h + typ.hash()
	for _, f := range fields {
		h = 31*h + f.hash()
	}
	if returnNullIfFirstMissing {
		h *= nullableMix
	}
	return FieldMap{
		typ:                      typ,
		fields:                   fields,
		returnNullIfFirstMissing: returnNullIfFirstMissing,
		hash:                     h,
	}
}

// Type is the target entity type.
func (m FieldMap) Type() TypeID { return m.typ }

// Count is the number of bound columns.
func (m FieldMap) Count() int { return len(m.fields) }

func (m FieldMap) Ordinal(i int) int      { return m.fields[i].Ordinal }
func (m FieldMap) Name(i int) string      { return m.fields[i].Name }
func (m FieldMap) FieldType(i int) TypeID { return m.fields[i].Type }
func (m FieldMap) Field(i int) Field      { return m.fields[i] }
func (m FieldMap) Fields() []Field        { return append([]Field(nil), m.fields...) }
func (m FieldMap) Hash() uint64           { return m.hash }

// ReturnNullIfFirstMissing reports whether a NULL in the first bound column
// means the entity is absent from the row (an outer join without a match).
func (m FieldMap) ReturnNullIfFirstMissing() bool { return m.returnNullIfFirstMissing }

// Equal reports whether m and o bind the same type, flag and fields in order.
func (m FieldMap) Equal(o FieldMap) bool {
	if m.hash != o.hash || m.typ != o.typ ||
		m.returnNullIfFirstMissing != o.returnNullIfFirstMissing ||
		len(m.fields) != len(o.fields) {
		return false
	}
	for i := range m.fields {
		if !m.fields[i].Equal(o.fields[i]) {
			return false
		}
	}
	return true
}

func (m FieldMap) String() string {
	parts := make([]string, len(m.fields))
	for i, f := range m.fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}
