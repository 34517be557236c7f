package multimap

import (
	"hash/fnv"
	"reflect"
)

// TypeID identifies a declared column type or a target entity type.
//
// It is comparable with ==. Two TypeIDs built from the same reflect.Type, or
// from the same driver type name, are equal.
type TypeID struct {
	rt   reflect.Type
	name string
}

// TypeOf returns the TypeID for a Go type. A nil type yields the zero TypeID.
func TypeOf(rt reflect.Type) TypeID {
	if rt == nil {
		return TypeID{}
	}
	return TypeID{rt: rt, name: rt.String()}
}

// NamedType returns a TypeID for a driver-reported type name such as "INTEGER".
func NamedType(name string) TypeID { return TypeID{name: name} }

// Reflect returns the Go type behind t, or nil for named driver types.
func (t TypeID) Reflect() reflect.Type { return t.rt }

// IsZero reports whether t carries no type information.
func (t TypeID) IsZero() bool { return t.rt == nil && t.name == "" }

func (t TypeID) String() string { return t.name }

func (t TypeID) hash() uint64 {
	if t.IsZero() {
		return 0
	}
	return stringHash(t.name)
}

func stringHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
