package mcbp

import "fmt"

// Magic identifies the packet kind in the first header byte.
type Magic uint8

// Opcode is the command code of a packet (header byte 1).
type Opcode uint8

// Status is the 16-bit status code of a response packet.
type Status uint16

// Datatype is the bitset carried in header byte 5.
type Datatype uint8

const (
	// HeaderLen is the fixed size of every request and response header.
	HeaderLen = 24

	// MutationTokenLen is the size of the extras block carrying a mutation token:
	// vbucket uuid (8) followed by sequence number (8).
	MutationTokenLen = 16

	// MaxBodyLen bounds the body length accepted from a response header.
	MaxBodyLen = 64 << 20
)

// Packet magics
const (
	MagicRequest     Magic = 0x80
	MagicResponse    Magic = 0x81
	MagicAltRequest  Magic = 0x08 // request with framing extras
	MagicAltResponse Magic = 0x18 // response with framing extras
)

// Datatype flags
const (
	DatatypeRaw        Datatype = 0x00
	DatatypeJSON       Datatype = 0x01
	DatatypeCompressed Datatype = 0x02 // snappy
	DatatypeXattr      Datatype = 0x04
)

// Has reports whether every bit of flag is set.
func (d Datatype) Has(flag Datatype) bool {
	return d&flag == flag
}

// Opcodes handled by the response pipeline.
//
// Key-value operations
const (
	OpGet       Opcode = 0x00
	OpSet       Opcode = 0x01
	OpAdd       Opcode = 0x02
	OpReplace   Opcode = 0x03
	OpDelete    Opcode = 0x04
	OpIncrement Opcode = 0x05
	OpDecrement Opcode = 0x06
	OpNoop      Opcode = 0x0a
	OpAppend    Opcode = 0x0e
	OpPrepend   Opcode = 0x0f
	OpStat      Opcode = 0x10
	OpTouch     Opcode = 0x1c
	OpGAT       Opcode = 0x1d
)

// Cluster, replica and durability polling operations
const (
	OpGetReplica             Opcode = 0x83
	OpSelectBucket           Opcode = 0x89
	OpObserveSeqno           Opcode = 0x91
	OpObserve                Opcode = 0x92
	OpGetLocked              Opcode = 0x94
	OpUnlockKey              Opcode = 0x95
	OpGetMeta                Opcode = 0xa0
	OpGetClusterConfig       Opcode = 0xb5
	OpCollectionsGetManifest Opcode = 0xba
	OpCollectionsGetCID      Opcode = 0xbb
)

// Sub-document operations
const (
	OpSubdocGet            Opcode = 0xc5
	OpSubdocExists         Opcode = 0xc6
	OpSubdocDictAdd        Opcode = 0xc7
	OpSubdocDictUpsert     Opcode = 0xc8
	OpSubdocDelete         Opcode = 0xc9
	OpSubdocReplace        Opcode = 0xca
	OpSubdocArrayPushLast  Opcode = 0xcb
	OpSubdocArrayPushFirst Opcode = 0xcc
	OpSubdocArrayInsert    Opcode = 0xcd
	OpSubdocArrayAddUnique Opcode = 0xce
	OpSubdocCounter        Opcode = 0xcf
	OpSubdocMultiLookup    Opcode = 0xd0
	OpSubdocMultiMutation  Opcode = 0xd1
	OpSubdocGetCount       Opcode = 0xd2
)

var opcodeNames = map[Opcode]string{
	OpGet:                    "GET",
	OpSet:                    "SET",
	OpAdd:                    "ADD",
	OpReplace:                "REPLACE",
	OpDelete:                 "DELETE",
	OpIncrement:              "INCREMENT",
	OpDecrement:              "DECREMENT",
	OpNoop:                   "NOOP",
	OpAppend:                 "APPEND",
	OpPrepend:                "PREPEND",
	OpStat:                   "STAT",
	OpTouch:                  "TOUCH",
	OpGAT:                    "GAT",
	OpGetReplica:             "GET_REPLICA",
	OpSelectBucket:           "SELECT_BUCKET",
	OpObserveSeqno:           "OBSERVE_SEQNO",
	OpObserve:                "OBSERVE",
	OpGetLocked:              "GET_LOCKED",
	OpUnlockKey:              "UNLOCK_KEY",
	OpGetMeta:                "GET_META",
	OpGetClusterConfig:       "GET_CLUSTER_CONFIG",
	OpCollectionsGetManifest: "COLLECTIONS_GET_MANIFEST",
	OpCollectionsGetCID:      "COLLECTIONS_GET_CID",
	OpSubdocGet:              "SUBDOC_GET",
	OpSubdocExists:           "SUBDOC_EXISTS",
	OpSubdocDictAdd:          "SUBDOC_DICT_ADD",
	OpSubdocDictUpsert:       "SUBDOC_DICT_UPSERT",
	OpSubdocDelete:           "SUBDOC_DELETE",
	OpSubdocReplace:          "SUBDOC_REPLACE",
	OpSubdocArrayPushLast:    "SUBDOC_ARRAY_PUSH_LAST",
	OpSubdocArrayPushFirst:   "SUBDOC_ARRAY_PUSH_FIRST",
	OpSubdocArrayInsert:      "SUBDOC_ARRAY_INSERT",
	OpSubdocArrayAddUnique:   "SUBDOC_ARRAY_ADD_UNIQUE",
	OpSubdocCounter:          "SUBDOC_COUNTER",
	OpSubdocMultiLookup:      "SUBDOC_MULTI_LOOKUP",
	OpSubdocMultiMutation:    "SUBDOC_MULTI_MUTATION",
	OpSubdocGetCount:         "SUBDOC_GET_COUNT",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", uint8(o))
}

// Response status codes
//
// Generic
const (
	StatusSuccess        Status = 0x00
	StatusKeyNotFound    Status = 0x01
	StatusKeyExists      Status = 0x02
	StatusTooBig         Status = 0x03
	StatusInvalidArgs    Status = 0x04
	StatusNotStored      Status = 0x05
	StatusBadDelta       Status = 0x06
	StatusNotMyVBucket   Status = 0x07
	StatusNoBucket       Status = 0x08
	StatusLocked         Status = 0x09
	StatusAuthStale      Status = 0x1f
	StatusAuthError      Status = 0x20
	StatusAuthContinue   Status = 0x21
	StatusRangeError     Status = 0x22
	StatusRollback       Status = 0x23
	StatusAccessDenied   Status = 0x24
	StatusNotInitialized Status = 0x25
	StatusUnknownCommand Status = 0x81
	StatusOutOfMemory    Status = 0x82
	StatusNotSupported   Status = 0x83
	StatusInternalError  Status = 0x84
	StatusBusy           Status = 0x85
	StatusTmpFail        Status = 0x86
	StatusXattrInvalid   Status = 0x87
)

// Collections
const (
	StatusUnknownCollection          Status = 0x88
	StatusNoCollectionsManifest      Status = 0x89
	StatusCannotApplyManifest        Status = 0x8a
	StatusCollectionsManifestIsAhead Status = 0x8b
	StatusUnknownScope               Status = 0x8c
)

// Durability
const (
	StatusDurabilityInvalidLevel      Status = 0xa0
	StatusDurabilityImpossible        Status = 0xa1
	StatusSyncWriteInProgress         Status = 0xa2
	StatusSyncWriteAmbiguous          Status = 0xa3
	StatusSyncWriteReCommitInProgress Status = 0xa4
)

// Sub-document
const (
	StatusSubdocPathNotFound            Status = 0xc0
	StatusSubdocPathMismatch            Status = 0xc1
	StatusSubdocPathInvalid             Status = 0xc2
	StatusSubdocPathTooBig              Status = 0xc3
	StatusSubdocDocTooDeep              Status = 0xc4
	StatusSubdocCantInsert              Status = 0xc5
	StatusSubdocNotJSON                 Status = 0xc6
	StatusSubdocBadRange                Status = 0xc7
	StatusSubdocBadDelta                Status = 0xc8
	StatusSubdocPathExists              Status = 0xc9
	StatusSubdocValueTooDeep            Status = 0xca
	StatusSubdocInvalidCombo            Status = 0xcb
	StatusSubdocMultiPathFailure        Status = 0xcc
	StatusSubdocSuccessDeleted          Status = 0xcd
	StatusSubdocXattrInvalidFlagCombo   Status = 0xce
	StatusSubdocXattrInvalidKeyCombo    Status = 0xcf
	StatusSubdocXattrUnknownMacro       Status = 0xd0
	StatusSubdocXattrUnknownVattr       Status = 0xd1
	StatusSubdocXattrCantModifyVattr    Status = 0xd2
	StatusSubdocMultiPathFailureDeleted Status = 0xd3
	StatusSubdocInvalidXattrOrder       Status = 0xd4
)

func (s Status) String() string {
	return fmt.Sprintf("0x%02x", uint16(s))
}
