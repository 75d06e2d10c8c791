// Package pool implements a fixed-capacity, thread-safe pool of database
// connections, gated by a counting semaphore whose permit count equals the
// pool's capacity. It is the async connection pool described for the store:
// acquisition is FIFO with respect to semaphore wake-up, no connection is
// ever handed to two holders concurrently, and a holder that panics poisons
// its connection rather than returning a connection left mid-transaction.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Acquire once the pool has been closed.
var ErrClosed = errors.New("pool: closed")

// Pool is a bounded queue of open *sql.Conn values.
type Pool struct {
	db  *sql.DB
	sem *semaphore.Weighted

	mu     sync.Mutex
	queue  []*sql.Conn
	closed bool
}

// Open opens capacity connections from db and returns a Pool that owns db. Each connection has pragmas applied via
// configure before being queued. If any connection fails to open, all
// previously opened connections are closed and the error is returned.
func Open(ctx context.Context, db *sql.DB, capacity int, configure func(ctx context.Context, conn *sql.Conn) error) (*Pool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("pool: capacity must be >= 1, got %d", capacity)
	}

	db.SetMaxOpenConns(capacity)
	db.SetMaxIdleConns(capacity)

	p := &Pool{
		db:    db,
		sem:   semaphore.NewWeighted(int64(capacity)),
		queue: make([]*sql.Conn, 0, capacity),
	}

	for i := 0; i < capacity; i++ {
		conn, err := db.Conn(ctx)
		if err != nil {
			p.closeQueued()
			return nil, fmt.Errorf("pool: opening connection %d/%d: %w", i+1, capacity, err)
		}
		if configure != nil {
			if err := configure(ctx, conn); err != nil {
				conn.Close()
				p.closeQueued()
				return nil, fmt.Errorf("pool: configuring connection %d/%d: %w", i+1, capacity, err)
			}
		}
		p.queue = append(p.queue, conn)
	}

	return p, nil
}

// Capacity returns the total number of connections managed by the pool.
func (p *Pool) Capacity() int64 {
	return int64(cap(p.queue))
}

// Handle is a scoped, owned reference to one pooled connection. It must be
// released exactly once, on every exit path including cancellation and
// panic — callers should acquire it with a defer release, or use Do below.
type Handle struct {
	pool     *Pool
	conn     *sql.Conn
	poisoned bool
	released bool
}

// Conn returns the underlying connection for use in queries/transactions.
func (h *Handle) Conn() *sql.Conn {
	return h.conn
}

// Poison marks the connection as unfit for reuse; Release will close it
// instead of returning it to the queue. Call this before Release when the
// connection was left in a bad state (e.g. a panic occurred mid-transaction).
func (h *Handle) Poison() {
	h.poisoned = true
}

// Release returns the connection to the pool's queue (or closes it, if
// poisoned) and releases the semaphore permit. Safe to call more than once;
// only the first call has an effect.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true

	if h.poisoned {
		h.conn.Close()
		h.pool.sem.Release(1)
		return
	}

	h.pool.mu.Lock()
	closed := h.pool.closed
	if !closed {
		h.pool.queue = append(h.pool.queue, h.conn)
	}
	h.pool.mu.Unlock()

	if closed {
		h.conn.Close()
	}
	h.pool.sem.Release(1)
}

// Acquire waits for a permit and then pops a connection from the queue. The
// permit guarantees a connection is available, so the pop never blocks.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrClosed
	}
	n := len(p.queue)
	conn := p.queue[n-1]
	p.queue = p.queue[:n-1]
	p.mu.Unlock()

	return &Handle{pool: p, conn: conn}, nil
}

// Do acquires a connection, invokes fn, and releases it on every return path.
// If fn panics, the connection is poisoned (closed rather than reused) and
// the panic is re-raised after the permit is returned.
func (p *Pool) Do(ctx context.Context, fn func(conn *sql.Conn) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			h.Poison()
		}
		h.Release()
	}()

	err = fn(h.Conn())
	done = true
	return err
}

// CloseAll drains the queue, closes every connection in it, and prevents
// further acquisitions. In-flight handles remain valid until released; their
// connections are closed on release instead of being requeued.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	p.closed = true
	queued := p.queue
	p.queue = nil
	p.mu.Unlock()

	var firstErr error
	for _, c := range queued {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (p *Pool) closeQueued() {
	for _, c := range p.queue {
		c.Close()
	}
	p.queue = nil
}
