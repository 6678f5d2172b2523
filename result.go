package memd

import "github.com/pior/memd/mcbp"

// Result is the closed set of typed operation results.
type Result interface {
	Ctx() *Context
}

// Context is the part every result shares.
type Context struct {
	Status     ErrorKind
	StatusCode mcbp.Status
	CAS        uint64
	Opaque     uint32
	Key        []byte
	Cookie     any

	Bucket     string
	Endpoint   string
	Scope      string
	Collection string

	// ClientGenerated is set when Status was produced locally instead of
	// being read from a server response.
	ClientGenerated bool

	// Final is false for observe records, stats entries and replica reads.
	Final bool

	errInfo errorInfo
}

func (c *Context) Ctx() *Context { return c }

// Err returns nil on success and the ErrorKind otherwise.
func (c *Context) Err() error {
	return c.Status.Err()
}

// MutationToken identifies a mutation's position in a vbucket history.
type MutationToken struct {
	VBucket uint16
	UUID    uint64
	Seqno   uint64
}

// IsZero reports whether t carries no position.
func (t MutationToken) IsZero() bool {
	return t.UUID == 0 && t.Seqno == 0
}

type mutationResult struct {
	token    MutationToken
	hasToken bool
}

// MutationToken returns the token the server attached to the mutation. A
// zero token is reported as absent.
func (m *mutationResult) MutationToken() (MutationToken, bool) {
	if !m.hasToken || m.token.IsZero() {
		return MutationToken{}, false
	}
	return m.token, true
}

// GetResult is delivered for GET, GAT and GET_LOCKED.
type GetResult struct {
	Context
	Value     []byte // valid until the callback returns
	ItemFlags uint32
	Datatype  mcbp.Datatype
}

// ReplicaResult is delivered for replica reads.
type ReplicaResult struct {
	Context
	Value     []byte // valid until the handler returns
	ItemFlags uint32
	Datatype  mcbp.Datatype
}

// ExistsResult is delivered for GET_META.
type ExistsResult struct {
	Context
	Deleted   bool
	ItemFlags uint32
	Expiry    uint32
	Seqno     uint64
}

// Exists reports whether a live document was found.
func (r *ExistsResult) Exists() bool {
	return r.Status == Success && !r.Deleted
}

// StoreOp is the kind of store an opcode performed.
type StoreOp int

const (
	StoreUpsert StoreOp = iota
	StoreInsert
	StoreReplace
	StoreAppend
	StorePrepend
)

func (op StoreOp) String() string {
	switch op {
	case StoreInsert:
		return "insert"
	case StoreReplace:
		return "replace"
	case StoreAppend:
		return "append"
	case StorePrepend:
		return "prepend"
	default:
		return "upsert"
	}
}

func storeOpFor(opcode mcbp.Opcode) StoreOp {
	switch opcode {
	case mcbp.OpAdd:
		return StoreInsert
	case mcbp.OpReplace:
		return StoreReplace
	case mcbp.OpAppend:
		return StoreAppend
	case mcbp.OpPrepend:
		return StorePrepend
	default:
		return StoreUpsert
	}
}

type StoreResult struct {
	Context
	mutationResult
	Op StoreOp
}

type RemoveResult struct {
	Context
	mutationResult
}

type TouchResult struct {
	Context
}

type UnlockResult struct {
	Context
}

type CounterResult struct {
	Context
	mutationResult
	Value uint64
}

// SubdocResult carries the per-path outcomes of a sub-document request.
type SubdocResult struct {
	Context
	mutationResult
	Entries []SubdocEntry
	Multi   bool
}

// ObserveResult is one record of an observe response.
type ObserveResult struct {
	Context
	VBucket  uint16
	State    uint8
	IsMaster bool
	TTP      uint32 // persistence time hint, upper half of the envelope CAS
	TTR      uint32 // replication time hint, lower half of the envelope CAS
}

// ObserveSeqnoResult describes the replication state of a vbucket on one node.
type ObserveSeqnoResult struct {
	Context
	VBucket        uint16
	ServerIndex    int
	IsMaster       bool
	UUID           uint64
	PersistedSeqno uint64
	CurrentSeqno   uint64
	FailedOver     bool
	OldUUID        uint64
	OldSeqno       uint64
}

// StatsResult is one statistic. The stream ends with a result whose Final
// is true and whose StatKey is empty.
type StatsResult struct {
	Context
	Server    string
	StatKey   string
	StatValue string
}

type NoopResult struct {
	Context
}

type ConfigResult struct {
	Context
	Value []byte
}

type SelectBucketResult struct {
	Context
}

type ManifestResult struct {
	Context
	Value []byte
}

// CollectionIDResult resolves a scope.collection path to its id.
type CollectionIDResult struct {
	Context
	ManifestID   uint64
	CollectionID uint32
}
