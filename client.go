package fastmssql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/riveranda/fastmssql/columnar"
)

// Connection is a pooled client handle for one SQL Server endpoint. It is
// safe for concurrent use; all goroutines sharing the handle share one pool.
type Connection struct {
	config  *Config
	poolCfg PoolConfig
	cred    *Credential
	logger  ContextLogger

	connector driver.Connector

	// pool is write-once in the handle's lifetime: nil until the
	// single-flight initialization succeeds, then stable until Close.
	pool   atomic.Pointer[pool]
	initMu sync.Mutex
	closed atomic.Bool
}

// ConnOption configures a Connection beyond its target Config.
type ConnOption func(*Connection)

// WithPoolConfig overrides DefaultPoolConfig.
func WithPoolConfig(cfg PoolConfig) ConnOption {
	return func(c *Connection) { c.poolCfg = cfg }
}

// WithCredential authenticates with Azure AD instead of the credentials in
// the target Config.
func WithCredential(cred *Credential) ConnOption {
	return func(c *Connection) { c.cred = cred }
}

// WithContextLogger routes pool and execution diagnostics to the given
// logger, filtered by the Config's log flags.
func WithContextLogger(logger ContextLogger) ConnOption {
	return func(c *Connection) { c.logger = logger }
}

// NewConnection builds a handle bound to one endpoint and auth method. No
// network activity happens here; the pool is established by Connect or
// lazily by the first Execute.
func NewConnection(config *Config, opts ...ConnOption) (*Connection, error) {
	if config == nil {
		return nil, configErr("target", "config must not be nil")
	}
	c := &Connection{
		config:  config,
		poolCfg: DefaultPoolConfig(),
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.poolCfg.validate(); err != nil {
		return nil, err
	}

	if c.cred != nil {
		connector, err := mssql.NewSecurityTokenConnector(config.msdsnConfig(), c.cred.token)
		if err != nil {
			return nil, configErr("credential", "unable to build token connector: %v", err)
		}
		c.connector = connector
	} else {
		c.connector = mssql.NewConnectorConfig(config.msdsnConfig())
	}
	return c, nil
}

// newConnectionWithConnector is the seam tests use to run the full pipeline
// over a fake driver.
func newConnectionWithConnector(connector driver.Connector, poolCfg PoolConfig) *Connection {
	cfg := &Config{}
	return &Connection{
		config:    cfg,
		poolCfg:   poolCfg,
		logger:    nopLogger{},
		connector: connector,
	}
}

// Connect establishes the connection pool. It is idempotent and safe under
// concurrent first-call storms: exactly one dial sequence runs, every caller
// observes the same pool, and the fast path takes no lock once the pool
// exists. On failure the handle stays uninitialized and a later call
// retries.
func (c *Connection) Connect(ctx context.Context) error {
	_, err := c.ensurePool(ctx)
	return err
}

func (c *Connection) ensurePool(ctx context.Context) (*pool, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if p := c.pool.Load(); p != nil {
		return p, nil
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()
	// Double-check: another caller may have initialized while we waited.
	if p := c.pool.Load(); p != nil {
		return p, nil
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	p := newPool(c.connector, c.poolCfg, c.logger, c.config.LogFlags())
	if err := p.warmup(ctx); err != nil {
		p.close()
		return nil, &ConnectError{Err: err}
	}
	p.start()
	c.pool.Store(p)
	logf(ctx, c.logger, c.config.LogFlags(), msdsn.LogDebug, "fastmssql: connection pool ready")
	return p, nil
}

// Execute runs one SQL batch. Statements classified as row-returning go
// through the query path and yield materialized rows; everything else goes
// through the exec path and yields the total affected-row count for the
// batch.
//
// Cancelling ctx always abandons a pending pool checkout. Once the
// statement is on the wire, cancellation is forwarded to the driver's
// attention protocol and is best-effort: the server may run the statement
// to completion with its result discarded.
func (c *Connection) Execute(ctx context.Context, query string, args ...interface{}) (*Result, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	params, err := encodeParams(args)
	if err != nil {
		return nil, err
	}

	p, err := c.ensurePool(ctx)
	if err != nil {
		return nil, err
	}
	pc, err := p.get(ctx)
	if err != nil {
		return nil, err
	}

	if returnsRows(query) {
		return c.dispatchQuery(ctx, p, pc, query, params)
	}
	return c.dispatchExec(ctx, p, pc, query, params)
}

// Query is a convenience wrapper over Execute that always yields rows: a
// statement that only reports an affected count produces an empty result
// set.
func (c *Connection) Query(ctx context.Context, query string, args ...interface{}) (*Rows, error) {
	res, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if res.HasRows() {
		return res.Rows(), nil
	}
	return &Rows{info: newColumnInfo(nil, nil)}, nil
}

func (c *Connection) dispatchQuery(ctx context.Context, p *pool, pc *pooledConn, query string, params []driver.NamedValue) (*Result, error) {
	queryer, ok := pc.dc.(driver.QueryerContext)
	if !ok {
		p.put(pc, false)
		return nil, fmt.Errorf("fastmssql: driver connection does not support queries")
	}

	logf(ctx, c.logger, c.config.LogFlags(), msdsn.LogSQL, query)
	dr, err := queryer.QueryContext(ctx, query, params)
	if err != nil {
		p.put(pc, isBadConn(err))
		return nil, execErr(err)
	}

	rows, rerr := collectRows(dr)
	cerr := dr.Close()
	p.put(pc, rerr != nil || isBadConn(cerr))
	if rerr != nil {
		return nil, execErr(rerr)
	}
	return rowsResult(rows), nil
}

func (c *Connection) dispatchExec(ctx context.Context, p *pool, pc *pooledConn, query string, params []driver.NamedValue) (*Result, error) {
	execer, ok := pc.dc.(driver.ExecerContext)
	if !ok {
		p.put(pc, false)
		return nil, fmt.Errorf("fastmssql: driver connection does not support exec")
	}

	logf(ctx, c.logger, c.config.LogFlags(), msdsn.LogSQL, query)
	res, err := execer.ExecContext(ctx, query, params)
	if err != nil {
		p.put(pc, isBadConn(err))
		return nil, execErr(err)
	}
	p.put(pc, false)

	// The driver accumulates affected counts across every statement of
	// the batch, so this is the batch total, not the last statement's.
	affected, err := res.RowsAffected()
	if err != nil || affected < 0 {
		affected = 0
	}
	return affectedResult(uint64(affected)), nil
}

// ExecuteTable runs a row-returning statement and materializes the result
// as a typed columnar table: exact decimals at fixed scale for money and
// decimal columns, microsecond-precision timestamps, and per-column
// validity. A zero-row result still yields the full typed schema.
func (c *Connection) ExecuteTable(ctx context.Context, query string, args ...interface{}) (*columnar.Table, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	params, err := encodeParams(args)
	if err != nil {
		return nil, err
	}
	p, err := c.ensurePool(ctx)
	if err != nil {
		return nil, err
	}
	pc, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	queryer, ok := pc.dc.(driver.QueryerContext)
	if !ok {
		p.put(pc, false)
		return nil, fmt.Errorf("fastmssql: driver connection does not support queries")
	}

	logf(ctx, c.logger, c.config.LogFlags(), msdsn.LogSQL, query)
	dr, err := queryer.QueryContext(ctx, query, params)
	if err != nil {
		p.put(pc, isBadConn(err))
		return nil, execErr(err)
	}
	names, types, raw, rerr := collectRaw(dr)
	cerr := dr.Close()
	p.put(pc, rerr != nil || isBadConn(cerr))
	if rerr != nil {
		return nil, execErr(rerr)
	}
	return columnar.Build(names, types, raw)
}

// collectRaw drains a driver result set without materializing host values,
// for conversion paths that need the raw cells. Byte cells are copied out
// of the driver's reused row buffer.
func collectRaw(dr driver.Rows) (names, types []string, rows [][]driver.Value, err error) {
	names = dr.Columns()
	types = make([]string, len(names))
	if typed, ok := dr.(driver.RowsColumnTypeDatabaseTypeName); ok {
		for i := range types {
			types[i] = typed.ColumnTypeDatabaseTypeName(i)
		}
	}

	buf := make([]driver.Value, len(names))
	for {
		nerr := dr.Next(buf)
		if nerr == io.EOF {
			break
		}
		if nerr != nil {
			return nil, nil, nil, nerr
		}
		row := make([]driver.Value, len(buf))
		for i, v := range buf {
			if b, ok := v.([]byte); ok {
				cp := make([]byte, len(b))
				copy(cp, b)
				row[i] = cp
				continue
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return names, types, rows, nil
}

// collectRows drains a driver result set into materialized rows. The schema
// is built exactly once, from the column descriptors, and shared by
// reference across every row. Only the first result set of a batch is
// collected.
func collectRows(dr driver.Rows) (*Rows, error) {
	names := dr.Columns()
	types := make([]string, len(names))
	if typed, ok := dr.(driver.RowsColumnTypeDatabaseTypeName); ok {
		for i := range types {
			types[i] = typed.ColumnTypeDatabaseTypeName(i)
		}
	}
	info := newColumnInfo(names, types)

	out := &Rows{info: info}
	buf := make([]driver.Value, len(names))
	for {
		err := dr.Next(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out.rows = append(out.rows, materializeRow(info, buf))
	}
	return out, nil
}

// isBadConn reports whether the transport itself broke, in which case the
// connection must not go back to the pool.
func isBadConn(err error) bool {
	return err != nil && errors.Is(err, driver.ErrBadConn)
}

// execErr translates a dispatch failure into the library's taxonomy,
// preserving the server message and error number when the driver exposed
// them.
func execErr(err error) error {
	var serr mssql.Error
	if errors.As(err, &serr) {
		return &ExecutionError{Message: serr.Message, Number: serr.Number, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ExecutionError{Message: err.Error(), Err: err}
}

// IsConnected reports whether the pool has been established and the handle
// is still open.
func (c *Connection) IsConnected() bool {
	return !c.closed.Load() && c.pool.Load() != nil
}

// Stats returns a snapshot of the pool. Before Connect it reports only the
// configured bounds with Connected false.
func (c *Connection) Stats() PoolStats {
	p := c.pool.Load()
	if p == nil || c.closed.Load() {
		return PoolStats{MaxSize: c.poolCfg.MaxSize, MinIdle: c.poolCfg.MinIdle}
	}
	return p.stats()
}

// Close permanently retires the handle, closing every idle physical
// connection. Connections checked out by in-flight queries are closed as
// they are returned. A closed handle cannot be reopened; every later
// operation returns ErrClosed.
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	// A concurrent Connect may be mid-initialization holding initMu;
	// taking it here means Close either sees no pool at all or the fully
	// stored one, never a pool about to appear.
	c.initMu.Lock()
	p := c.pool.Load()
	c.initMu.Unlock()
	if p != nil {
		p.close()
	}
	return nil
}
