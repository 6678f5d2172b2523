package memd

import (
	"errors"
	"fmt"
)

var (
	ErrClientClosed = errors.New("memd: client closed")
	ErrNoNodes      = errors.New("memd: no nodes configured")
	ErrNoCallback   = errors.New("memd: request has no continuation")
)

// ErrorKind is the client-visible outcome of an operation. Success is the
// zero value; every other kind implements error so results can be checked
// with errors.Is.
type ErrorKind int

const (
	Success ErrorKind = iota

	// Document level
	ErrDocumentNotFound
	ErrDocumentExists
	ErrDocumentLocked
	ErrCASMismatch
	ErrValueTooLarge
	ErrNotStored
	ErrInvalidDelta
	ErrInvalidRange

	// Sub-document path and value family
	ErrPathNotFound
	ErrPathMismatch
	ErrPathInvalid
	ErrPathTooBig
	ErrPathTooDeep
	ErrValueTooDeep
	ErrValueInvalid
	ErrDocumentNotJSON
	ErrNumberTooBig
	ErrDeltaInvalid
	ErrPathExists

	// Extended attributes
	ErrXattrInvalidFlagCombo
	ErrXattrInvalidKeyCombo
	ErrXattrUnknownMacro
	ErrXattrUnknownVirtualAttribute
	ErrXattrCannotModifyVirtualAttribute
	ErrXattrInvalidOrder

	// Collections
	ErrCollectionNotFound
	ErrScopeNotFound
	ErrCollectionNoManifest
	ErrCollectionCannotApplyManifest
	ErrCollectionManifestIsAhead

	// Durability
	ErrDurabilityLevelNotAvailable
	ErrDurabilityImpossible
	ErrDurableWriteInProgress
	ErrDurableWriteReCommitInProgress
	ErrDurabilityAmbiguous

	// Engine, access and service
	ErrInvalidArgument
	ErrInvalidPacket
	ErrUnsupportedOperation
	ErrAuthenticationFailure
	ErrAuthContinue
	ErrBucketNotFound
	ErrTemporaryFailure
	ErrKVEngineUnknown

	// Client generated
	ErrTimeout
	ErrNetwork
	ErrSocketShutdown
	ErrRequestCanceled
	ErrProtocol

	numErrorKinds
)

var errorKindNames = [numErrorKinds]string{
	Success:                              "success",
	ErrDocumentNotFound:                  "document not found",
	ErrDocumentExists:                    "document exists",
	ErrDocumentLocked:                    "document locked",
	ErrCASMismatch:                       "cas mismatch",
	ErrValueTooLarge:                     "value too large",
	ErrNotStored:                         "not stored",
	ErrInvalidDelta:                      "invalid delta",
	ErrInvalidRange:                      "invalid range",
	ErrPathNotFound:                      "subdoc path not found",
	ErrPathMismatch:                      "subdoc path mismatch",
	ErrPathInvalid:                       "subdoc path invalid",
	ErrPathTooBig:                        "subdoc path too big",
	ErrPathTooDeep:                       "subdoc path too deep",
	ErrValueTooDeep:                      "subdoc value too deep",
	ErrValueInvalid:                      "subdoc value invalid",
	ErrDocumentNotJSON:                   "subdoc document not json",
	ErrNumberTooBig:                      "subdoc number too big",
	ErrDeltaInvalid:                      "subdoc delta invalid",
	ErrPathExists:                        "subdoc path exists",
	ErrXattrInvalidFlagCombo:             "xattr invalid flag combination",
	ErrXattrInvalidKeyCombo:              "xattr invalid key combination",
	ErrXattrUnknownMacro:                 "xattr unknown macro",
	ErrXattrUnknownVirtualAttribute:      "xattr unknown virtual attribute",
	ErrXattrCannotModifyVirtualAttribute: "xattr cannot modify virtual attribute",
	ErrXattrInvalidOrder:                 "xattr invalid order",
	ErrCollectionNotFound:                "collection not found",
	ErrScopeNotFound:                     "scope not found",
	ErrCollectionNoManifest:              "no collections manifest",
	ErrCollectionCannotApplyManifest:     "cannot apply collections manifest",
	ErrCollectionManifestIsAhead:         "collections manifest is ahead",
	ErrDurabilityLevelNotAvailable:       "durability level not available",
	ErrDurabilityImpossible:              "durability impossible",
	ErrDurableWriteInProgress:            "durable write in progress",
	ErrDurableWriteReCommitInProgress:    "durable write re-commit in progress",
	ErrDurabilityAmbiguous:               "durability ambiguous",
	ErrInvalidArgument:                   "invalid argument",
	ErrInvalidPacket:                     "kv engine invalid packet",
	ErrUnsupportedOperation:              "unsupported operation",
	ErrAuthenticationFailure:             "authentication failure",
	ErrAuthContinue:                      "authentication continue",
	ErrBucketNotFound:                    "bucket not found",
	ErrTemporaryFailure:                  "temporary failure",
	ErrKVEngineUnknown:                   "kv engine unknown error",
	ErrTimeout:                           "timeout",
	ErrNetwork:                           "network error",
	ErrSocketShutdown:                    "socket shutdown",
	ErrRequestCanceled:                   "request canceled",
	ErrProtocol:                          "protocol error",
}

func (k ErrorKind) String() string {
	if k >= 0 && k < numErrorKinds {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) Error() string {
	return "memd: " + k.String()
}

// OK reports whether k is Success.
func (k ErrorKind) OK() bool {
	return k == Success
}

// IsSubdoc reports whether k belongs to the sub-document path, value or
// extended attribute family. A single-path sub-document response carrying
// one of these still has a parseable body.
func (k ErrorKind) IsSubdoc() bool {
	return k >= ErrPathNotFound && k <= ErrXattrInvalidOrder
}

// IsClientGenerated reports whether k can only originate on the client.
func (k ErrorKind) IsClientGenerated() bool {
	return k >= ErrTimeout && k < numErrorKinds
}

// Err returns nil for Success and k otherwise.
func (k ErrorKind) Err() error {
	if k == Success {
		return nil
	}
	return k
}
