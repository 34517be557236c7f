package multimap

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
)

// DBHandler answers one query against the fake driver.
type DBHandler func(query string, args []driver.NamedValue) (cols []string, rows [][]driver.Value, err error)

// fakeConnector serves every connection from h. When nextErr is set, Next
// returns it instead of io.EOF once the rows run out.
type fakeConnector struct {
	h       DBHandler
	nextErr error
}

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) { return &fakeConn{c}, nil }
func (c *fakeConnector) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fakeDriver: open through sql.OpenDB")
}

type fakeConn struct{ c *fakeConnector }

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (c *fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	cols, data, err := c.c.h(query, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{cols: cols, data: data, end: c.c.nextErr}, nil
}

type fakeRows struct {
	cols []string
	data [][]driver.Value
	end  error
}

func (r *fakeRows) Columns() []string { return append([]string(nil), r.cols...) }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if len(r.data) == 0 {
		if r.end != nil {
			return r.end
		}
		return io.EOF
	}
	row := r.data[0]
	r.data = r.data[1:]
	for i := range dest {
		dest[i] = nil
		if i < len(row) {
			dest[i] = row[i]
		}
	}
	return nil
}

// rowsHandler answers every query with cols and rows.
func rowsHandler(cols []string, rows ...[]driver.Value) DBHandler {
	return func(string, []driver.NamedValue) ([]string, [][]driver.Value, error) {
		return cols, rows, nil
	}
}

// newTestDB creates a *sql.DB backed by the fake driver.
func newTestDB(t *testing.T, h DBHandler) *sql.DB {
	t.Helper()
	return sql.OpenDB(&fakeConnector{h: h})
}

// newFailingDB yields rows of cols and then fails with err instead of ending.
func newFailingDB(t *testing.T, err error, cols []string, rows ...[]driver.Value) *sql.DB {
	t.Helper()
	return sql.OpenDB(&fakeConnector{h: rowsHandler(cols, rows...), nextErr: err})
}
