package multimap

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_Structs(t *testing.T) {
	db := newTestDB(t, rowsHandler(
		[]string{"`ID`", `"NAME"`},
		[]driver.Value{int64(1), []byte("alice")},
		[]driver.Value{int64(2), nil},
	))
	defer func() { _ = db.Close() }()

	got, err := Query[userRow](context.Background(), db, "q")
	require.NoError(t, err)
	assert.Equal(t, []userRow{{ID: 1, Name: "alice"}, {ID: 2}}, got)
}

func TestQuery_Primitives(t *testing.T) {
	rows := []driver.Value{int64(10)}
	db := newTestDB(t, rowsHandler([]string{"n"}, rows, []driver.Value{int64(20)}))
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	ints, err := Query[int64](ctx, db, "q")
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, ints)

	// int32 scans through an int64 temporary.
	small, err := Query[int32](ctx, db, "q")
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20}, small)
}

func TestQuery_FieldConversions(t *testing.T) {
	type label string
	type row struct {
		Label label `db:"label"`
		Any   any   `db:"v"`
	}
	db := newTestDB(t, rowsHandler([]string{"label", "v"}, []driver.Value{"hello", int64(42)}))
	defer func() { _ = db.Close() }()

	got, err := Query[row](context.Background(), db, "q")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, label("hello"), got[0].Label)
	assert.Equal(t, int64(42), got[0].Any)
}

func TestQuery_NoRows(t *testing.T) {
	db := newTestDB(t, rowsHandler([]string{"id"}))
	defer func() { _ = db.Close() }()

	got, err := Query[int64](context.Background(), db, "q")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	failing := newTestDB(t, func(string, []driver.NamedValue) ([]string, [][]driver.Value, error) {
		return nil, nil, boom
	})
	defer func() { _ = failing.Close() }()
	_, err := Query[userRow](ctx, failing, "q")
	assert.ErrorIs(t, err, boom)

	// A failure after the first row discards the partial result.
	broken := newFailingDB(t, boom, []string{"id", "name"}, []driver.Value{int64(1), "alice"})
	defer func() { _ = broken.Close() }()
	got, err := Query[userRow](ctx, broken, "q")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)

	empty := newTestDB(t, rowsHandler([]string{}))
	defer func() { _ = empty.Close() }()
	_, err = Query[int64](ctx, empty, "q")
	assert.ErrorIs(t, err, ErrEmptyShape)

	wide := newTestDB(t, rowsHandler([]string{"a", "b"}, []driver.Value{int64(1), int64(2)}))
	defer func() { _ = wide.Close() }()
	_, err = Query[int64](ctx, wide, "q")
	assert.Error(t, err)
}

func TestQuery_ReusesPlanAcrossQueries(t *testing.T) {
	type row struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	db := newTestDB(t, rowsHandler([]string{"id", "name"}, []driver.Value{int64(1), "a"}))
	defer func() { _ = db.Close() }()

	for range 3 {
		_, err := Query[row](context.Background(), db, "q")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cachedPlans(getMapper(), reflect.TypeOf(row{})))
}

func TestQueryWith_StrictRejectsExtraColumn(t *testing.T) {
	db := newTestDB(t, rowsHandler([]string{"id", "name", "email"}, []driver.Value{int64(1), "a", "b"}))
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	m := NewMapper(WithStrict())
	_, err := QueryWith[userRow](ctx, m, db, "q")
	require.ErrorIs(t, err, ErrUnmappedColumn)
	assert.Contains(t, err.Error(), `"email"`)
	assert.Zero(t, cachedPlans(m, reflect.TypeOf(userRow{})), "failed plans are not cached")

	got, err := QueryWith[userRow](ctx, NewMapper(), db, "q")
	require.NoError(t, err)
	assert.Equal(t, []userRow{{ID: 1, Name: "a"}}, got)
}
