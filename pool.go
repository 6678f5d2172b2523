package memd

import (
	"context"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// PoolStats contains connection pool statistics.
type PoolStats struct {
	TotalConns        int32
	IdleConns         int32
	ActiveConns       int32
	AcquireCount      uint64
	AcquireWaitCount  uint64 // Acquires that had to wait for a connection
	CreatedConns      uint64
	DestroyedConns    uint64
	AcquireErrors     uint64
	AcquireWaitTimeNs uint64
}

// connPool hands out multiplexed connections. A connection is held only
// while a request is written; responses are matched on its read loop.
type connPool struct {
	pool           *puddle.Pool[*Connection]
	createdConns   atomic.Int64
	destroyedConns atomic.Int64
}

func newConnPool(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (*connPool, error) {
	p := &connPool{}

	poolConfig := &puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			conn, err := constructor(ctx)
			if err == nil {
				p.createdConns.Add(1)
			}
			return conn, err
		},
		Destructor: func(c *Connection) {
			p.destroyedConns.Add(1)
			_ = c.Close()
		},
		MaxSize: maxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// acquire returns a live connection, destroying closed ones it comes across.
func (p *connPool) acquire(ctx context.Context) (*puddle.Resource[*Connection], error) {
	for {
		res, err := p.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !res.Value().IsClosed() {
			return res, nil
		}
		res.Destroy()
	}
}

// reap destroys idle connections whose read loop has exited.
func (p *connPool) reap() int {
	var n int
	for _, res := range p.pool.AcquireAllIdle() {
		if res.Value().IsClosed() {
			res.Destroy()
			n++
			continue
		}
		res.Release()
	}
	return n
}

func (p *connPool) close() {
	p.pool.Close()
}

func (p *connPool) stats() PoolStats {
	s := p.pool.Stat()

	return PoolStats{
		TotalConns:        s.TotalResources(),
		IdleConns:         s.IdleResources(),
		ActiveConns:       s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
		CreatedConns:      uint64(p.createdConns.Load()),
		DestroyedConns:    uint64(p.destroyedConns.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
	}
}
