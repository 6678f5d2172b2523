package memd

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pior/memd/mcbp"
)

var (
	ErrConnectionClosed = errors.New("memd: connection closed")
)

// Connection is a single multiplexed KV connection. Requests are written by
// any goroutine; a single read loop matches responses to pending requests by
// opaque and hands them to the Dispatcher.
type Connection struct {
	id         string
	conn       net.Conn
	reader     *bufio.Reader
	pipeline   *Pipeline
	dispatcher *Dispatcher
	logger     *slog.Logger

	writeMu sync.Mutex
	writer  *bufio.Writer

	mu      sync.Mutex
	pending map[uint32]*Request
	closed  bool

	opaque   atomic.Uint32
	closing  atomic.Bool
	lastUsed atomic.Int64
	done     chan struct{}
}

// NewConnection wraps netConn and starts its read loop. index is the position
// of the node in the cluster map.
func NewConnection(netConn net.Conn, index int, dispatcher *Dispatcher) *Connection {
	p := &Pipeline{Index: index, Tokens: &TokenTable{}}
	if host, port, err := net.SplitHostPort(netConn.RemoteAddr().String()); err == nil {
		p.Host = host
		p.Port = port
	}

	c := &Connection{
		id:         uuid.NewString(),
		conn:       netConn,
		reader:     bufio.NewReader(netConn),
		writer:     bufio.NewWriter(netConn),
		pipeline:   p,
		dispatcher: dispatcher,
		pending:    make(map[uint32]*Request),
		done:       make(chan struct{}),
	}
	c.logger = dispatcher.logger.With("conn_id", c.id, "endpoint", p.Endpoint())
	c.lastUsed.Store(time.Now().UnixNano())

	go c.readLoop()
	return c
}

// ID returns the unique id of the connection.
func (c *Connection) ID() string { return c.id }

// Pipeline returns the per-connection dispatch state.
func (c *Connection) Pipeline() *Pipeline { return c.pipeline }

// Done is closed once the read loop exited and every pending request failed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// LastUsed returns when a request was last written.
func (c *Connection) LastUsed() time.Time {
	return time.Unix(0, c.lastUsed.Load())
}

// InFlight returns the number of requests awaiting a response.
func (c *Connection) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// IsClosed reports whether the connection stopped accepting requests.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send assigns an opaque to req, registers it and writes it.
//
// Once Send returns nil the request is owned by the connection: its
// continuation runs exactly once, on the read loop, either with the response
// or with a client-generated failure when the connection goes away.
// A non-nil error means the continuation will never run.
func (c *Connection) Send(ctx context.Context, req *Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	req.Opaque = c.opaque.Add(1)
	if req.Start.IsZero() {
		req.Start = time.Now()
	}
	c.pending[req.Opaque] = req
	c.mu.Unlock()

	err := c.write(ctx, req)
	if err == nil {
		c.lastUsed.Store(time.Now().UnixNano())
		return nil
	}

	c.mu.Lock()
	_, stillPending := c.pending[req.Opaque]
	delete(c.pending, req.Opaque)
	c.mu.Unlock()

	c.conn.Close()

	if !stillPending {
		// The read loop already failed the request.
		return nil
	}
	return err
}

func (c *Connection) write(ctx context.Context, req *Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := mcbp.WritePacket(c.writer, req.packet()); err != nil {
		return err
	}
	if err := c.writer.Flush(); err != nil {
		return &mcbp.ConnectionError{Op: "flush", Err: err}
	}
	return nil
}

// Close shuts the connection down. Pending requests fail with
// ErrSocketShutdown on the read loop; wait on Done to observe it.
func (c *Connection) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Connection) readLoop() {
	defer close(c.done)

	var failure ErrorKind
	for {
		env, err := mcbp.ReadEnvelope(c.reader)
		if err != nil {
			failure = c.failureKind(err)
			if failure != ErrSocketShutdown {
				c.logger.Error("memd: connection failed", "error", err)
			}
			break
		}

		req := c.lookup(env.Opaque)
		if req == nil {
			c.logger.Warn("memd: response for unknown request", "opaque", env.Opaque, "opcode", env.Opcode.String())
			continue
		}

		if err := c.dispatcher.Dispatch(c.pipeline, req, env, Success); err != nil {
			failure = ErrProtocol
			break
		}
		c.complete(req)
	}

	c.teardown(failure)
}

func (c *Connection) failureKind(err error) ErrorKind {
	var perr *mcbp.ProtocolError
	switch {
	case c.closing.Load(), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return ErrSocketShutdown
	case errors.As(err, &perr):
		return ErrProtocol
	default:
		return ErrNetwork
	}
}

func (c *Connection) lookup(opaque uint32) *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[opaque]
}

// complete retires req unless it is a stats stream still waiting for its
// terminator.
func (c *Connection) complete(req *Request) {
	if req.Opcode == mcbp.OpStat && !req.Has(FlagInvoked) {
		return
	}
	c.mu.Lock()
	delete(c.pending, req.Opaque)
	c.mu.Unlock()
}

// teardown fails every pending request with kind, in opaque order.
func (c *Connection) teardown(kind ErrorKind) {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint32]*Request)
	c.mu.Unlock()

	c.conn.Close()

	for _, opaque := range slices.Sorted(maps.Keys(pending)) {
		req := pending[opaque]
		if err := c.dispatcher.Dispatch(c.pipeline, req, nil, kind); err != nil {
			c.logger.Error("memd: failed to fail pending request", "opaque", opaque, "error", err)
		}
	}
}
