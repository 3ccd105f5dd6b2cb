package fastmssql

import (
	"context"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// fakeConnector stands in for the TDS driver so the full pipeline runs
// without a server. It counts dials and can be scripted to fail.
type fakeConnector struct {
	dials     atomic.Int64
	failDials atomic.Int64 // fail this many dials before succeeding

	mu    sync.Mutex
	conns []*fakeConn

	// script for new connections
	rows       func(query string) *fakeRows
	execResult func(query string) driver.Result
	queryErr   error
	execErr    error
	pingErr    error
}

func (f *fakeConnector) Connect(context.Context) (driver.Conn, error) {
	f.dials.Add(1)
	for {
		n := f.failDials.Load()
		if n <= 0 {
			break
		}
		if f.failDials.CompareAndSwap(n, n-1) {
			return nil, errFakeDial
		}
	}
	c := &fakeConn{connector: f}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeConnector) Driver() driver.Driver { return nil }

func (f *fakeConnector) openConns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.conns {
		if !c.closed.Load() {
			n++
		}
	}
	return n
}

var errFakeDial = &fakeNetError{"dial refused"}

// gatedConnector parks every dial at a gate until the test releases it, so
// tests can interleave other calls with an in-flight dial.
type gatedConnector struct {
	fakeConnector
	started chan struct{}
	release chan struct{}
}

func (g *gatedConnector) Connect(ctx context.Context) (driver.Conn, error) {
	g.started <- struct{}{}
	<-g.release
	return g.fakeConnector.Connect(ctx)
}

// slowFailConnector fails its first dial immediately and serves later ones
// after a short delay.
type slowFailConnector struct {
	fakeConnector
	n atomic.Int64
}

func (s *slowFailConnector) Connect(ctx context.Context) (driver.Conn, error) {
	if s.n.Add(1) == 1 {
		return nil, errFakeDial
	}
	time.Sleep(50 * time.Millisecond)
	return s.fakeConnector.Connect(ctx)
}

type fakeNetError struct{ msg string }

func (e *fakeNetError) Error() string { return e.msg }

type fakeConn struct {
	connector *fakeConnector
	closed    atomic.Bool
	queries   atomic.Int64
	pings     atomic.Int64
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *fakeConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) Ping(context.Context) error {
	c.pings.Add(1)
	return c.connector.pingErr
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.queries.Add(1)
	if c.connector.queryErr != nil {
		return nil, c.connector.queryErr
	}
	if c.connector.rows != nil {
		return c.connector.rows(query), nil
	}
	return &fakeRows{}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.queries.Add(1)
	if c.connector.execErr != nil {
		return nil, c.connector.execErr
	}
	if c.connector.execResult != nil {
		return c.connector.execResult(query), nil
	}
	return fakeResult{}, nil
}

var (
	_ driver.QueryerContext = (*fakeConn)(nil)
	_ driver.ExecerContext  = (*fakeConn)(nil)
	_ driver.Pinger         = (*fakeConn)(nil)
)

// fakeResult emulates the driver's accumulated affected count for a batch:
// each ;-separated statement contributes its own count and the driver
// reports the sum.
type fakeResult struct{ affected int64 }

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

// batchResult sums per-statement counts the way the driver accumulates done
// tokens across a multi-statement batch.
func batchResult(perStatement ...int64) func(string) driver.Result {
	return func(query string) driver.Result {
		var total int64
		n := len(strings.Split(query, ";"))
		for i := 0; i < n && i < len(perStatement); i++ {
			total += perStatement[i]
		}
		return fakeResult{affected: total}
	}
}

type fakeRows struct {
	names []string
	types []string
	data  [][]driver.Value
	pos   int
}

func (r *fakeRows) Columns() []string { return r.names }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.pos])
	r.pos++
	return nil
}

func (r *fakeRows) ColumnTypeDatabaseTypeName(i int) string { return r.types[i] }

var _ driver.RowsColumnTypeDatabaseTypeName = (*fakeRows)(nil)
