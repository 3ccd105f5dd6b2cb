package fastmssql

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// warmupConcurrency caps simultaneous warmup dials so a large MinIdle does
// not stampede the server.
const warmupConcurrency = 4

// dialRetryDelay is the backoff before the single RetryOnConnect retry.
const dialRetryDelay = 100 * time.Millisecond

// reapInterval is how often the background replenisher runs.
const reapInterval = 15 * time.Second

// PoolStats is a point-in-time snapshot of the pool.
type PoolStats struct {
	// Connected is false until the pool has been initialized.
	Connected bool
	// ActiveConnections is the number of connections currently checked
	// out.
	ActiveConnections int
	// IdleConnections is the number of connections waiting in the pool.
	IdleConnections int
	MaxSize         int
	MinIdle         int
}

// pooledConn is one physical connection plus the metadata the pool needs to
// recycle it.
type pooledConn struct {
	id        uuid.UUID
	dc        driver.Conn
	createdAt time.Time
	idleSince time.Time
}

// expired reports whether the connection exceeded its lifetime or idle
// budget.
func (pc *pooledConn) expired(cfg *PoolConfig, now time.Time) bool {
	if cfg.MaxLifetime > 0 && now.Sub(pc.createdAt) >= cfg.MaxLifetime {
		return true
	}
	if cfg.IdleTimeout > 0 && !pc.idleSince.IsZero() && now.Sub(pc.idleSince) >= cfg.IdleTimeout {
		return true
	}
	return false
}

// pool owns up to cfg.MaxSize physical connections. Capacity is a permit
// channel: holding a permit is the right to own one physical connection,
// whether checked out or idle. Idle connections wait in a buffered channel
// together with their permit; returning a connection to idle does not free
// its permit, discarding it does.
type pool struct {
	connector driver.Connector
	cfg       PoolConfig
	logger    ContextLogger
	logFlags  uint64

	permits chan struct{}
	idle    chan *pooledConn

	done      chan struct{}
	closeOnce sync.Once
}

func newPool(connector driver.Connector, cfg PoolConfig, logger ContextLogger, logFlags uint64) *pool {
	if logger == nil {
		logger = nopLogger{}
	}
	p := &pool{
		connector: connector,
		cfg:       cfg,
		logger:    logger,
		logFlags:  logFlags,
		permits:   make(chan struct{}, cfg.MaxSize),
		idle:      make(chan *pooledConn, cfg.MaxSize),
		done:      make(chan struct{}),
	}
	for i := 0; i < cfg.MaxSize; i++ {
		p.permits <- struct{}{}
	}
	return p
}

// start launches the background replenisher. Split from newPool so warmup
// runs before any maintenance pass.
func (p *pool) start() {
	if p.cfg.MinIdle > 0 || p.cfg.IdleTimeout > 0 || p.cfg.MaxLifetime > 0 {
		go p.maintain()
	}
}

// dial opens one physical connection, retrying a transient failure once
// when RetryOnConnect is set. The caller must already hold a permit.
func (p *pool) dial(ctx context.Context) (*pooledConn, error) {
	dc, err := p.connector.Connect(ctx)
	if err != nil && p.cfg.RetryOnConnect && ctx.Err() == nil {
		logf(ctx, p.logger, p.logFlags, msdsn.LogRetries, fmt.Sprintf("fastmssql pool: dial failed, retrying: %v", err))
		select {
		case <-time.After(dialRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		dc, err = p.connector.Connect(ctx)
	}
	if err != nil {
		return nil, err
	}
	pc := &pooledConn{id: uuid.New(), dc: dc, createdAt: time.Now()}
	logf(ctx, p.logger, p.logFlags, msdsn.LogDebug, fmt.Sprintf("fastmssql pool: established connection %s", pc.id))
	return pc, nil
}

// discard closes a connection and frees its permit so a new dial can happen
// on demand.
func (p *pool) discard(pc *pooledConn, reason string) {
	_ = pc.dc.Close()
	p.permits <- struct{}{}
	logf(context.Background(), p.logger, p.logFlags, msdsn.LogDebug,
		fmt.Sprintf("fastmssql pool: discarded connection %s (%s)", pc.id, reason))
}

// get checks a connection out of the pool. The wait is bounded by
// ConnectionTimeout when set and by the caller's context always.
func (p *pool) get(ctx context.Context) (*pooledConn, error) {
	if p.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
		defer cancel()
	}

	for {
		select {
		case <-p.done:
			return nil, ErrClosed
		default:
		}

		var pc *pooledConn
		var fresh bool
		select {
		case pc = <-p.idle:
		default:
			select {
			case pc = <-p.idle:
			case <-p.permits:
				fresh = true
			case <-p.done:
				return nil, ErrClosed
			case <-ctx.Done():
				return nil, p.checkoutErr(ctx.Err())
			}
		}

		if fresh {
			pc, err := p.dial(ctx)
			if err != nil {
				p.permits <- struct{}{}
				if ctx.Err() != nil {
					return nil, p.checkoutErr(ctx.Err())
				}
				return nil, &PoolError{Kind: PoolDialFailed, Err: err}
			}
			return pc, nil
		}

		if pc.expired(&p.cfg, time.Now()) {
			p.discard(pc, "expired at checkout")
			continue
		}
		if p.cfg.TestOnCheckout {
			if pinger, ok := pc.dc.(driver.Pinger); ok {
				if err := pinger.Ping(ctx); err != nil {
					p.discard(pc, "failed checkout ping")
					continue
				}
			}
		}
		pc.idleSince = time.Time{}
		return pc, nil
	}
}

// checkoutErr classifies a context failure during checkout: a saturated
// pool reads as exhaustion, anything else as a timeout.
func (p *pool) checkoutErr(ctxErr error) error {
	if len(p.permits) == 0 && len(p.idle) == 0 {
		return &PoolError{Kind: PoolExhausted, Err: ctxErr}
	}
	return &PoolError{Kind: PoolTimeout, Err: ctxErr}
}

// put returns a connection to the pool, discarding it when it broke mid-use
// or aged out.
func (p *pool) put(pc *pooledConn, damaged bool) {
	select {
	case <-p.done:
		_ = pc.dc.Close()
		p.permits <- struct{}{}
		return
	default:
	}
	if damaged {
		p.discard(pc, "broken in use")
		return
	}
	if pc.expired(&p.cfg, time.Now()) {
		p.discard(pc, "exceeded max lifetime")
		return
	}
	pc.idleSince = time.Now()
	select {
	case p.idle <- pc:
	default:
		// Idle buffer full can only happen if accounting broke; close
		// rather than leak.
		p.discard(pc, "idle overflow")
	}
}

// warmup pre-establishes MinIdle connections with bounded concurrency so
// first queries do not pay cold-start dial latency. Any dial failure fails
// the warmup; partial warmup is not silently accepted.
func (p *pool) warmup(ctx context.Context) error {
	target := p.cfg.MinIdle
	if target <= 0 {
		return nil
	}

	// Same fan-out shape as parallel endpoint dials: results funneled
	// through a pair of channels, first error collected after all workers
	// finish.
	workers := warmupConcurrency
	if target < workers {
		workers = target
	}
	jobs := make(chan struct{}, target)
	for i := 0; i < target; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	errChan := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			for range jobs {
				select {
				case <-p.permits:
				default:
					// Pool already at capacity; nothing left to warm.
					continue
				}
				pc, err := p.dial(ctx)
				if err != nil {
					p.permits <- struct{}{}
					errChan <- err
					return
				}
				pc.idleSince = time.Now()
				p.idle <- pc
			}
			errChan <- nil
		}()
	}

	// Wait for every worker, not just the first failure: a dial still in
	// flight may yet succeed and push into p.idle, and the caller closes
	// the pool the moment this returns.
	var firstErr error
	for i := 0; i < workers; i++ {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("connection warmup failed: %w", firstErr)
	}
	logf(ctx, p.logger, p.logFlags, msdsn.LogDebug,
		fmt.Sprintf("fastmssql pool: warmup established %d idle connections", len(p.idle)))
	return nil
}

// maintain periodically reaps expired idle connections and replenishes the
// idle floor. Replenishment is best-effort: a failed top-up dial is logged
// and retried on the next tick, unlike warmup failures which fail
// initialization.
func (p *pool) maintain() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.reapIdle()
			p.replenish()
		}
	}
}

// reapIdle drains the idle buffer, closes aged-out connections and puts the
// survivors back.
func (p *pool) reapIdle() {
	now := time.Now()
	var keep []*pooledConn
	for {
		select {
		case pc := <-p.idle:
			if pc.expired(&p.cfg, now) {
				p.discard(pc, "reaped")
			} else {
				keep = append(keep, pc)
			}
			continue
		default:
		}
		break
	}
	for _, pc := range keep {
		p.idle <- pc
	}
}

// replenish dials until the idle floor is met or capacity runs out.
func (p *pool) replenish() {
	for len(p.idle) < p.cfg.MinIdle {
		select {
		case <-p.done:
			return
		case <-p.permits:
		default:
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		pc, err := p.dial(ctx)
		cancel()
		if err != nil {
			p.permits <- struct{}{}
			logf(context.Background(), p.logger, p.logFlags, msdsn.LogErrors,
				fmt.Sprintf("fastmssql pool: idle replenishment dial failed: %v", err))
			return
		}
		pc.idleSince = time.Now()
		p.idle <- pc
	}
}

// stats returns a snapshot. Channel lengths race with concurrent checkouts
// by nature; the snapshot is advisory.
func (p *pool) stats() PoolStats {
	idle := len(p.idle)
	open := p.cfg.MaxSize - len(p.permits)
	return PoolStats{
		Connected:         true,
		ActiveConnections: open - idle,
		IdleConnections:   idle,
		MaxSize:           p.cfg.MaxSize,
		MinIdle:           p.cfg.MinIdle,
	}
}

// close releases every idle connection back to the operating system and
// wakes all waiters. Connections checked out at close time are closed when
// they are returned.
func (p *pool) close() {
	p.closeOnce.Do(func() { close(p.done) })
	for {
		select {
		case pc := <-p.idle:
			_ = pc.dc.Close()
			p.permits <- struct{}{}
		default:
			return
		}
	}
}
