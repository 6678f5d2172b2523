package memd

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pior/memd/mcbp"
	"golang.org/x/sync/errgroup"
)

const reapInterval = 30 * time.Second

// Client routes requests to the node owning their vbucket and delivers the
// typed results.
type Client struct {
	config     *Config
	logger     *slog.Logger
	topology   *StaticTopology
	dispatcher *Dispatcher
	nodes      []*NodePool

	closeOnce sync.Once
	stopReap  chan struct{}
}

// NewClient validates config and creates one node pool per node. No
// connection is dialed until the first request.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		config:   config,
		logger:   logger,
		topology: NewStaticTopology(config.Bucket, config.Nodes, config.NumVBuckets),
		stopReap: make(chan struct{}),
	}

	dc := DispatcherConfig{
		Logger:             logger,
		Owner:              c,
		Topology:           c.topology,
		Collections:        config.Collections,
		CollectionsEnabled: config.CollectionsEnabled,
	}
	if config.InboundDecompression {
		dc.Decompressor = NewSnappyDecompressor()
	}
	if config.Registerer != nil {
		dc.Recorder = NewPrometheusRecorder(config.Registerer, config.MetricsNamespace)
	}
	c.dispatcher = NewDispatcher(dc)

	for i, addr := range config.Nodes {
		np, err := NewNodePool(addr, i, c.dispatcher, config)
		if err != nil {
			c.closeNodes()
			return nil, fmt.Errorf("memd: node %s: %w", addr, err)
		}
		c.nodes = append(c.nodes, np)
	}

	go c.reapLoop()
	return c, nil
}

// Dispatcher returns the dispatcher shared by every connection of the client.
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Topology returns the client's cluster map.
func (c *Client) Topology() *StaticTopology {
	return c.topology
}

// NodeStats returns the stats of every node pool in index order.
func (c *Client) NodeStats() []NodeStats {
	stats := make([]NodeStats, len(c.nodes))
	for i, np := range c.nodes {
		stats[i] = np.Stats()
	}
	return stats
}

// Close stops the reaper and closes every connection. Requests still in
// flight fail with ErrSocketShutdown.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stopReap)
		c.closeNodes()
	})
}

func (c *Client) closeNodes() {
	for _, np := range c.nodes {
		np.Close()
	}
}

func (c *Client) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopReap:
			return
		case <-ticker.C:
			for _, np := range c.nodes {
				if n := np.Reap(); n > 0 {
					c.logger.Debug("memd: reaped closed connections", "node", np.Address(), "count", n)
				}
			}
		}
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.stopReap:
		return true
	default:
		return false
	}
}

// nodeForKey sets req.VBucket from the key and returns the owning node.
func (c *Client) nodeForKey(req *Request) (*NodePool, error) {
	req.VBucket = c.topology.VBucketForKey(req.Key)
	idx := c.topology.VBucketMaster(req.VBucket)
	if idx < 0 || idx >= len(c.nodes) {
		return nil, fmt.Errorf("memd: no node owns vbucket %d", req.VBucket)
	}
	return c.nodes[idx], nil
}

// Execute routes req by key and waits for its result.
func (c *Client) Execute(ctx context.Context, req *Request) (Result, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	np, err := c.nodeForKey(req)
	if err != nil {
		return nil, err
	}
	return np.Execute(ctx, req)
}

// Get reads a document.
func (c *Client) Get(ctx context.Context, key string) (*GetResult, error) {
	res, err := c.Execute(ctx, &Request{Opcode: mcbp.OpGet, Key: []byte(key)})
	if err != nil {
		return nil, err
	}
	return asResult[*GetResult](res)
}

// StoreOptions are the optional parameters of a store.
type StoreOptions struct {
	ItemFlags uint32
	Expiry    uint32
	// CAS makes the store conditional on the current CAS.
	CAS uint64
}

// Store writes a document with the semantics of op.
func (c *Client) Store(ctx context.Context, op StoreOp, key string, value []byte, opts StoreOptions) (*StoreResult, error) {
	req := &Request{
		Key:   []byte(key),
		Value: value,
		CAS:   opts.CAS,
	}

	switch op {
	case StoreUpsert:
		req.Opcode = mcbp.OpSet
	case StoreInsert:
		req.Opcode = mcbp.OpAdd
	case StoreReplace:
		req.Opcode = mcbp.OpReplace
	case StoreAppend:
		req.Opcode = mcbp.OpAppend
	case StorePrepend:
		req.Opcode = mcbp.OpPrepend
	default:
		return nil, fmt.Errorf("memd: unknown store op %d", op)
	}
	if op <= StoreReplace {
		req.Extras = binary.BigEndian.AppendUint32(nil, opts.ItemFlags)
		req.Extras = binary.BigEndian.AppendUint32(req.Extras, opts.Expiry)
	}
	if op == StoreReplace || opts.CAS != 0 {
		req.Flags |= FlagReplaceSemantics
	}

	res, err := c.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return asResult[*StoreResult](res)
}

// Remove deletes a document. A non-zero cas makes the removal conditional.
func (c *Client) Remove(ctx context.Context, key string, cas uint64) (*RemoveResult, error) {
	res, err := c.Execute(ctx, &Request{Opcode: mcbp.OpDelete, Key: []byte(key), CAS: cas})
	if err != nil {
		return nil, err
	}
	return asResult[*RemoveResult](res)
}

// Increment adds delta to a counter, creating it with initial if absent.
func (c *Client) Increment(ctx context.Context, key string, delta, initial uint64, expiry uint32) (*CounterResult, error) {
	extras := binary.BigEndian.AppendUint64(nil, delta)
	extras = binary.BigEndian.AppendUint64(extras, initial)
	extras = binary.BigEndian.AppendUint32(extras, expiry)

	res, err := c.Execute(ctx, &Request{Opcode: mcbp.OpIncrement, Key: []byte(key), Extras: extras})
	if err != nil {
		return nil, err
	}
	return asResult[*CounterResult](res)
}

// Noop round-trips a NOOP to the node at index.
func (c *Client) Noop(ctx context.Context, index int) (*NoopResult, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	if index < 0 || index >= len(c.nodes) {
		return nil, fmt.Errorf("memd: no node at index %d", index)
	}
	res, err := c.nodes[index].Execute(ctx, &Request{Opcode: mcbp.OpNoop})
	if err != nil {
		return nil, err
	}
	return asResult[*NoopResult](res)
}

// Stats collects the stat group from every node. An empty group requests
// the default statistics. A node failing to answer fails the whole call.
func (c *Client) Stats(ctx context.Context, group string) ([]*StatsResult, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	var (
		mu      sync.Mutex
		entries []*StatsResult
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, np := range c.nodes {
		g.Go(func() error {
			req := &Request{Opcode: mcbp.OpStat, Key: []byte(group)}
			kind, err := np.Stream(ctx, req, func(_ ErrorKind, res Result) {
				if entry, ok := res.(*StatsResult); ok && !entry.Final {
					mu.Lock()
					entries = append(entries, entry)
					mu.Unlock()
				}
			})
			if err != nil {
				return fmt.Errorf("memd: stats from %s: %w", np.Address(), err)
			}
			if kind != Success {
				return fmt.Errorf("memd: stats from %s: %w", np.Address(), kind)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func asResult[T Result](res Result) (T, error) {
	typed, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("memd: unexpected result type %T", res)
	}
	return typed, nil
}
