package memd

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pior/memd/mcbp"
)

// Forwarder receives raw responses for requests flagged FlagUserForward.
type Forwarder interface {
	Forward(cookie any, kind ErrorKind, env *mcbp.Envelope)
}

// Pipeline is the per-connection state a response is dispatched against.
type Pipeline struct {
	// Index is the node index of the connection in the cluster map.
	Index int
	Host  string
	Port  string

	// Tokens is the connection's mutation token table. Nil disables merging.
	Tokens *TokenTable
}

// Endpoint formats the node address as host:port or [ipv6]:port.
func (p *Pipeline) Endpoint() string {
	if p == nil || p.Host == "" {
		return ""
	}
	return net.JoinHostPort(p.Host, p.Port)
}

// DispatcherConfig holds the collaborators of a Dispatcher. Only Logger has
// a default; every other nil collaborator disables its feature.
type DispatcherConfig struct {
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Owner is passed as the first argument of every registry callback.
	Owner any

	Topology    Topology
	Collections CollectionCache

	// CollectionsEnabled makes observe strip the collection id prefix from keys.
	CollectionsEnabled bool

	// Decompressor inflates compressed values. Nil leaves them compressed and
	// reports the compressed datatype.
	Decompressor Decompressor

	Forwarder Forwarder
	Recorder  Recorder
}

// Dispatcher turns response envelopes into typed results and delivers each
// to exactly one continuation.
type Dispatcher struct {
	logger             *slog.Logger
	owner              any
	topology           Topology
	collections        CollectionCache
	collectionsEnabled bool
	decompressor       Decompressor
	forwarder          Forwarder
	recorder           Recorder

	mu        sync.RWMutex
	callbacks [numCallbackTypes]Callback

	stats dispatchStatsCollector
}

func NewDispatcher(config DispatcherConfig) *Dispatcher {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := config.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Dispatcher{
		logger:             logger,
		owner:              config.Owner,
		topology:           config.Topology,
		collections:        config.Collections,
		collectionsEnabled: config.CollectionsEnabled,
		decompressor:       config.Decompressor,
		forwarder:          config.Forwarder,
		recorder:           recorder,
	}
}

// SetCallback installs cb for cbtype and returns the previous callback.
// CallbackDefault receives every type without a callback of its own.
func (d *Dispatcher) SetCallback(cbtype CallbackType, cb Callback) Callback {
	if cbtype < 0 || cbtype >= numCallbackTypes {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.callbacks[cbtype]
	d.callbacks[cbtype] = cb
	return prev
}

func (d *Dispatcher) callback(cbtype CallbackType) Callback {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if cb := d.callbacks[cbtype]; cb != nil {
		return cb
	}
	return d.callbacks[CallbackDefault]
}

// Stats returns a snapshot of the dispatch counters.
func (d *Dispatcher) Stats() DispatchStats {
	return d.stats.snapshot()
}

type builder func(d *Dispatcher, p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error

var builders = [256]builder{
	mcbp.OpGet:       (*Dispatcher).handleGet,
	mcbp.OpGAT:       (*Dispatcher).handleGet,
	mcbp.OpGetLocked: (*Dispatcher).handleGet,

	mcbp.OpAdd:     (*Dispatcher).handleStore,
	mcbp.OpReplace: (*Dispatcher).handleStore,
	mcbp.OpSet:     (*Dispatcher).handleStore,
	mcbp.OpAppend:  (*Dispatcher).handleStore,
	mcbp.OpPrepend: (*Dispatcher).handleStore,

	mcbp.OpIncrement: (*Dispatcher).handleCounter,
	mcbp.OpDecrement: (*Dispatcher).handleCounter,

	mcbp.OpSubdocGet:            (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocExists:         (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocArrayAddUnique: (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocArrayPushFirst: (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocArrayPushLast:  (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocArrayInsert:    (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocDictAdd:        (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocDictUpsert:     (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocReplace:        (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocDelete:         (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocCounter:        (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocGetCount:       (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocMultiLookup:    (*Dispatcher).handleSubdoc,
	mcbp.OpSubdocMultiMutation:  (*Dispatcher).handleSubdoc,

	mcbp.OpObserve:                (*Dispatcher).handleObserve,
	mcbp.OpGetReplica:             (*Dispatcher).handleReplica,
	mcbp.OpUnlockKey:              (*Dispatcher).handleUnlock,
	mcbp.OpDelete:                 (*Dispatcher).handleRemove,
	mcbp.OpTouch:                  (*Dispatcher).handleTouch,
	mcbp.OpObserveSeqno:           (*Dispatcher).handleObserveSeqno,
	mcbp.OpStat:                   (*Dispatcher).handleStats,
	mcbp.OpNoop:                   (*Dispatcher).handleNoop,
	mcbp.OpGetClusterConfig:       (*Dispatcher).handleConfig,
	mcbp.OpSelectBucket:           (*Dispatcher).handleSelectBucket,
	mcbp.OpCollectionsGetManifest: (*Dispatcher).handleManifest,
	mcbp.OpCollectionsGetCID:      (*Dispatcher).handleCollectionID,
	mcbp.OpGetMeta:                (*Dispatcher).handleExists,
}

// Dispatch decodes env for req and delivers the result.
//
// A non-success imm is an immediate failure: the transport failed before a
// response arrived, env is ignored and the result carries imm as a
// client-generated status. A nil env is only valid together with imm.
//
// The returned error is a *mcbp.ProtocolError when the response cannot be
// interpreted; nothing was delivered and the connection must be torn down.
func (d *Dispatcher) Dispatch(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	d.stats.recordDispatch()

	if imm == Success && env == nil {
		imm = ErrProtocol
	}
	if imm != Success {
		env = req.syntheticEnvelope()
	}
	d.recordMetrics(req, env.Opcode)

	if req.Has(FlagUserForward) {
		d.forward(req, env, imm)
		return nil
	}

	build := builders[env.Opcode]
	if build == nil {
		d.stats.recordProtocolError()
		d.logger.Error("memd: received unknown opcode", "opcode", env.Opcode.String(), "opaque", env.Opaque)
		return &mcbp.ProtocolError{Message: fmt.Sprintf("unknown opcode %s", env.Opcode)}
	}

	if err := build(d, p, req, env, imm); err != nil {
		d.stats.recordProtocolError()
		d.logger.Error("memd: malformed response", "opcode", env.Opcode.String(), "opaque", env.Opaque, "error", err)
		return err
	}
	return nil
}

func (d *Dispatcher) recordMetrics(req *Request, opcode mcbp.Opcode) {
	var latency time.Duration
	if !req.Start.IsZero() {
		latency = time.Since(req.Start)
	}
	d.recorder.ObserveDispatch(opcode, latency)
}

func (d *Dispatcher) forward(req *Request, env *mcbp.Envelope, imm ErrorKind) {
	if d.forwarder == nil {
		d.logger.Warn("memd: dropping forwarded response, no forwarder configured", "opaque", req.Opaque)
		return
	}
	d.stats.recordForward()
	req.Flags |= FlagInvoked
	d.forwarder.Forward(req.Cookie, imm, env)
}

// newContext computes the status and fills the common context fields.
func (d *Dispatcher) newContext(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) Context {
	ctx := Context{
		StatusCode: env.Status,
		CAS:        env.CAS,
		Opaque:     env.Opaque,
		Key:        req.Key,
		Cookie:     req.Cookie,
		Endpoint:   p.Endpoint(),
		Final:      true,
	}

	switch {
	case imm != Success:
		ctx.Status = imm
		ctx.ClientGenerated = true
	case env.Status == mcbp.StatusSuccess:
		ctx.Status = Success
	default:
		ctx.Status = MapStatus(d.logger, env.Status)
	}
	if ctx.Status == ErrDocumentExists && req.Has(FlagReplaceSemantics) {
		ctx.Status = ErrCASMismatch
	}

	if d.topology != nil {
		ctx.Bucket = d.topology.BucketName()
	}
	return ctx
}

// delivery describes one hand-off of a result to a continuation.
type delivery struct {
	cbtype CallbackType
	res    Result

	// ext routes the result to the request's ExtHandler when it has one.
	ext bool
	// bare hands the ExtHandler the status without the result.
	bare bool
	// partial marks a delivery that more may follow; it leaves the request
	// eligible for further deliveries.
	partial bool
}

// deliver is the delivery guard: a request flagged FlagInvoked never sees
// another result.
func (d *Dispatcher) deliver(p *Pipeline, req *Request, dl delivery) {
	ctx := dl.res.Ctx()
	d.resolveCollection(req, ctx)

	if req.Has(FlagInvoked) {
		d.stats.recordSuppressed()
		return
	}
	if !dl.partial {
		req.Flags |= FlagInvoked
	}

	d.stats.recordDelivery(ctx.ClientGenerated)
	d.recorder.ObserveResult(dl.cbtype, ctx.Status)

	if dl.ext && req.Ext != nil {
		var res Result
		if !dl.bare {
			res = dl.res
		}
		req.Ext(p, req, ctx.Status, res)
		return
	}

	if req.Has(FlagPrivateCallback) {
		if req.Callback == nil {
			d.logger.Warn("memd: private callback request without callback", "opaque", req.Opaque)
			return
		}
		req.Callback(d.owner, dl.cbtype, dl.res)
		return
	}

	cb := d.callback(dl.cbtype)
	if cb == nil {
		d.logger.Debug("memd: no callback installed", "callback", dl.cbtype.String(), "opaque", req.Opaque)
		return
	}
	cb(d.owner, dl.cbtype, dl.res)
}

func (d *Dispatcher) resolveCollection(req *Request, ctx *Context) {
	if d.collections == nil || ctx.Scope != "" {
		return
	}
	path, ok := d.collections.IDToName(req.CollectionID)
	if !ok || path == "" {
		return
	}
	if scope, collection, ok := splitCollectionPath(path); ok {
		ctx.Scope = scope
		ctx.Collection = collection
	}
}
