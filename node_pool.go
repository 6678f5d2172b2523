package memd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/pior/memd/mcbp"
	"github.com/sony/gobreaker/v2"
)

// NodePool wraps the connection pool and circuit breaker of one data node.
type NodePool struct {
	addr           string
	index          int
	pool           *connPool
	circuitBreaker *gobreaker.CircuitBreaker[Result]
}

// NewNodePool creates the pool for the node at position index of the cluster
// map. Connections are dialed lazily.
func NewNodePool(addr string, index int, dispatcher *Dispatcher, config *Config) (*NodePool, error) {
	dialer := config.Dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: config.DialTimeout}
	}

	constructor := func(ctx context.Context) (*Connection, error) {
		netConn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &mcbp.ConnectionError{Op: "dial", Err: err}
		}
		return NewConnection(netConn, index, dispatcher), nil
	}

	pool, err := newConnPool(constructor, config.MaxConnsPerNode)
	if err != nil {
		return nil, err
	}

	return &NodePool{
		addr:           addr,
		index:          index,
		pool:           pool,
		circuitBreaker: newCircuitBreaker(addr, config.CircuitBreaker),
	}, nil
}

func (np *NodePool) Address() string {
	return np.addr
}

func (np *NodePool) Index() int {
	return np.index
}

// NodeStats contains stats for a single node pool.
type NodeStats struct {
	Addr                 string
	Index                int
	PoolStats            PoolStats
	CircuitBreakerState  gobreaker.State
	CircuitBreakerCounts gobreaker.Counts
}

func (np *NodePool) Stats() NodeStats {
	stats := NodeStats{
		Addr:      np.addr,
		Index:     np.index,
		PoolStats: np.pool.stats(),
	}
	if np.circuitBreaker != nil {
		stats.CircuitBreakerState = np.circuitBreaker.State()
		stats.CircuitBreakerCounts = np.circuitBreaker.Counts()
	}
	return stats
}

// Execute sends req and waits for its single result. The request's
// continuation is replaced by a private callback.
//
// A server-side failure is reported through the result status, not the
// returned error. The error is non-nil only when the request could not be
// sent, the breaker is open or ctx ended before a result arrived.
func (np *NodePool) Execute(ctx context.Context, req *Request) (Result, error) {
	if np.circuitBreaker == nil {
		return np.execDirect(ctx, req)
	}

	res, err := np.circuitBreaker.Execute(func() (Result, error) {
		res, err := np.execDirect(ctx, req)
		if err == nil && res.Ctx().ClientGenerated {
			return res, res.Ctx().Status
		}
		return res, err
	})

	var kind ErrorKind
	if errors.As(err, &kind) && res != nil {
		return res, nil
	}
	return res, err
}

func (np *NodePool) execDirect(ctx context.Context, req *Request) (Result, error) {
	results := make(chan Result, 1)
	req.Flags |= FlagPrivateCallback
	req.Ext = nil
	req.Callback = func(_ any, _ CallbackType, res Result) {
		select {
		case results <- detach(res):
		default:
		}
	}

	if err := np.send(ctx, req); err != nil {
		return nil, err
	}

	select {
	case res := <-results:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// detach copies values that are only valid until the callback returns.
func detach(res Result) Result {
	switch r := res.(type) {
	case *GetResult:
		r.Value = bytes.Clone(r.Value)
	case *ReplicaResult:
		r.Value = bytes.Clone(r.Value)
	}
	return res
}

// Stream sends req and calls fn, on the connection's read loop, for every
// result until the terminal one. fn receives nil for a terminal delivery that
// carries no result, kind then holds the status. Stream returns the terminal
// status.
func (np *NodePool) Stream(ctx context.Context, req *Request, fn func(kind ErrorKind, res Result)) (ErrorKind, error) {
	if np.circuitBreaker != nil && np.circuitBreaker.State() == gobreaker.StateOpen {
		return Success, gobreaker.ErrOpenState
	}

	done := make(chan ErrorKind, 1)
	var stopped atomic.Bool
	req.Flags |= FlagExtended
	req.Ext = func(_ *Pipeline, _ *Request, kind ErrorKind, res Result) {
		terminal := res == nil || res.Ctx().Final
		if !stopped.Load() {
			fn(kind, res)
		}
		if terminal {
			done <- kind
		}
	}

	if err := np.send(ctx, req); err != nil {
		return Success, err
	}

	select {
	case kind := <-done:
		return kind, nil
	case <-ctx.Done():
		stopped.Store(true)
		return Success, ctx.Err()
	}
}

// send writes req on a pooled connection. The connection goes back to the
// pool as soon as the request is written.
func (np *NodePool) send(ctx context.Context, req *Request) error {
	resource, err := np.pool.acquire(ctx)
	if err != nil {
		return err
	}

	conn := resource.Value()
	if err := conn.Send(ctx, req); err != nil {
		if ctx.Err() != nil && !conn.IsClosed() {
			resource.Release()
		} else if errors.Is(err, ErrConnectionClosed) || mcbp.ShouldCloseConnection(err) {
			resource.Destroy()
		} else {
			resource.Release()
		}
		return err
	}

	resource.Release()
	return nil
}

// Reap destroys idle connections that were closed by the peer.
func (np *NodePool) Reap() int {
	return np.pool.reap()
}

func (np *NodePool) Close() {
	np.pool.close()
}
