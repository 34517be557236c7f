package multimap

import (
	"database/sql"
	"fmt"
)

// Shape describes the columns of one result set, independent of row data.
//
// Ordinals run from 0 to FieldCount()-1. Name may return an empty string.
type Shape interface {
	FieldCount() int
	Name(ordinal int) string
	FieldType(ordinal int) TypeID
}

// Column is one named, typed column of a result set.
type Column struct {
	Name string
	Type TypeID
}

// Columns is an in-memory Shape.
type Columns []Column

func (c Columns) FieldCount() int              { return len(c) }
func (c Columns) Name(ordinal int) string      { return c[ordinal].Name }
func (c Columns) FieldType(ordinal int) TypeID { return c[ordinal].Type }

// RowsShape reads the shape of rows. Identifier quoting is removed from column
// names; letter case is kept.
//
// The declared type is the driver's database type name (such as "INTEGER")
// when it reports one, otherwise the Go type it scans into.
func RowsShape(rows *sql.Rows) (Columns, error) {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("multimap: column types: %w", err)
	}
	cols := make(Columns, len(cts))
	for i, ct := range cts {
		cols[i].Name = unquoteIdent(ct.Name())
		if name := ct.DatabaseTypeName(); name != "" {
			cols[i].Type = NamedType(name)
		} else {
			cols[i].Type = TypeOf(ct.ScanType())
		}
	}
	return cols, nil
}

func unquoteIdent(s string) string {
	if l := len(s); l >= 2 {
		switch s[0] {
		case '"':
			if s[l-1] == '"' {
				return s[1 : l-1]
			}
		case '`':
			if s[l-1] == '`' {
				return s[1 : l-1]
			}
		case '[':
			if s[l-1] == ']' {
				return s[1 : l-1]
			}
		}
	}
	return s
}
