package memd

import (
	"fmt"
	"time"

	"github.com/pior/memd/mcbp"
)

// RequestFlags carries per-request state bits.
type RequestFlags uint32

const (
	// FlagReplaceSemantics marks a store issued with CAS or replace semantics;
	// a DocumentExists reply becomes ErrCASMismatch.
	FlagReplaceSemantics RequestFlags = 1 << iota

	// FlagInvoked is set once the terminal continuation ran.
	FlagInvoked

	// FlagUserForward routes the raw response to the Forwarder.
	FlagUserForward

	// FlagExtended routes results to the request's ExtHandler.
	FlagExtended

	// FlagPrivateCallback routes results to the request's own Callback
	// instead of the callback registry.
	FlagPrivateCallback
)

// CallbackType selects an entry in the callback registry.
type CallbackType int

const (
	CallbackDefault CallbackType = iota
	CallbackGet
	CallbackStore
	CallbackCounter
	CallbackTouch
	CallbackRemove
	CallbackUnlock
	CallbackStats
	CallbackObserve
	CallbackGetReplica
	CallbackExists
	CallbackSubdocLookup
	CallbackSubdocMutate
	CallbackNoop
	CallbackObserveSeqno
	CallbackGetManifest
	CallbackGetCollectionID
	CallbackClusterConfig
	CallbackSelectBucket

	numCallbackTypes
)

var callbackTypeNames = [numCallbackTypes]string{
	CallbackDefault:         "default",
	CallbackGet:             "get",
	CallbackStore:           "store",
	CallbackCounter:         "counter",
	CallbackTouch:           "touch",
	CallbackRemove:          "remove",
	CallbackUnlock:          "unlock",
	CallbackStats:           "stats",
	CallbackObserve:         "observe",
	CallbackGetReplica:      "get_replica",
	CallbackExists:          "exists",
	CallbackSubdocLookup:    "subdoc_lookup",
	CallbackSubdocMutate:    "subdoc_mutate",
	CallbackNoop:            "noop",
	CallbackObserveSeqno:    "observe_seqno",
	CallbackGetManifest:     "get_manifest",
	CallbackGetCollectionID: "get_collection_id",
	CallbackClusterConfig:   "cluster_config",
	CallbackSelectBucket:    "select_bucket",
}

func (t CallbackType) String() string {
	if t >= 0 && t < numCallbackTypes {
		return callbackTypeNames[t]
	}
	return fmt.Sprintf("CallbackType(%d)", int(t))
}

// Callback is a result continuation. owner is the value the Dispatcher was
// configured with.
type Callback func(owner any, cbtype CallbackType, res Result)

// ExtHandler receives results delivered on the extended path: extended
// requests, replica reads, observe records, stats entries and the internal
// control operations. res is nil when the request failed before a result
// could be built.
type ExtHandler func(p *Pipeline, req *Request, kind ErrorKind, res Result)

// Request is a pending operation awaiting its response.
type Request struct {
	Opcode       mcbp.Opcode
	Flags        RequestFlags
	Opaque       uint32
	Cookie       any
	VBucket      uint16
	CollectionID uint32
	Key          []byte

	// SubdocCount is the number of sub-operations a multi-path request issued.
	SubdocCount int

	Start    time.Time
	Callback Callback
	Ext      ExtHandler

	// Outbound body, used by the framing writer only.
	Datatype mcbp.Datatype
	CAS      uint64
	Extras   []byte
	Value    []byte
}

// Has reports whether every bit of f is set.
func (r *Request) Has(f RequestFlags) bool {
	return r.Flags&f == f
}

func (r *Request) packet() *mcbp.Packet {
	return &mcbp.Packet{
		Magic:    mcbp.MagicRequest,
		Opcode:   r.Opcode,
		Datatype: r.Datatype,
		VBucket:  r.VBucket,
		Opaque:   r.Opaque,
		CAS:      r.CAS,
		Extras:   r.Extras,
		Key:      r.Key,
		Value:    r.Value,
	}
}

// syntheticEnvelope stands in for a response that never arrived. Builders
// only read its header fields.
func (r *Request) syntheticEnvelope() *mcbp.Envelope {
	return &mcbp.Envelope{
		Magic:  mcbp.MagicResponse,
		Opcode: r.Opcode,
		Opaque: r.Opaque,
	}
}
