package multimap

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1) // every connection to :memory: is a separate database
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
		CREATE TABLE address (person_id INTEGER NOT NULL, street TEXT NOT NULL, city TEXT);
		INSERT INTO person (id, name) VALUES (1, 'alice'), (2, 'bob');
		INSERT INTO address (person_id, street, city) VALUES (1, 'Main St', 'Oslo');
	`)
	require.NoError(t, err)
	return db
}

const personAddressQuery = `
	SELECT p.id, p.name, a.street AS Address_Street, a.city AS Address_City
	FROM person p LEFT JOIN address a ON a.person_id = p.id
	ORDER BY p.id`

func TestSQLite_RowsShape(t *testing.T) {
	db := openSQLite(t)

	shapeOf := func() Columns {
		rows, err := db.QueryContext(context.Background(), personAddressQuery)
		require.NoError(t, err)
		defer func() { _ = rows.Close() }()
		shape, err := RowsShape(rows)
		require.NoError(t, err)
		return shape
	}

	first := shapeOf()
	require.Equal(t, 4, first.FieldCount())
	assert.Equal(t, "id", first.Name(0))
	assert.Equal(t, "Address_Street", first.Name(2))
	assert.False(t, first.FieldType(0).IsZero())
	assert.NotEqual(t, first.FieldType(0), first.FieldType(1), "INTEGER and TEXT columns")

	types := []TypeID{personType, addressType}
	prefixes := []string{"", "Address_"}
	a, err := NewQueryFieldMap(types, prefixes, first)
	require.NoError(t, err)
	b, err := NewQueryFieldMap(types, prefixes, shapeOf())
	require.NoError(t, err)
	assert.True(t, a.Equal(b), "re-executing a query yields the same plan")
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, [][2]any{{2, "Street"}, {3, "City"}}, fieldsOf(a.At(1)))
}

func TestSQLite_QueryPair(t *testing.T) {
	db := openSQLite(t)

	got, err := QueryPair[personRow, addressRow](context.Background(), db, "Address_", personAddressQuery)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, personRow{ID: 1, Name: "alice"}, got[0].First)
	require.NotNil(t, got[0].Second)
	assert.Equal(t, addressRow{Street: "Main St", City: "Oslo"}, *got[0].Second)

	assert.Equal(t, personRow{ID: 2, Name: "bob"}, got[1].First)
	assert.Nil(t, got[1].Second)
}

func TestSQLite_QueryAndGet(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	people, err := Query[personRow](ctx, db, `SELECT id, name FROM person ORDER BY id`)
	require.NoError(t, err)
	assert.Equal(t, []personRow{{ID: 1, Name: "alice"}, {ID: 2, Name: "bob"}}, people)

	name, err := Get[string](ctx, db, `SELECT name FROM person WHERE id = ?`, 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)

	_, err = Get[string](ctx, db, `SELECT name FROM person WHERE id = ?`, 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
