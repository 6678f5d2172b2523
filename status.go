package memd

import (
	"log/slog"

	"github.com/pior/memd/mcbp"
)

var statusKinds = map[mcbp.Status]ErrorKind{
	mcbp.StatusSuccess:                       Success,
	mcbp.StatusSubdocMultiPathFailure:        Success,
	mcbp.StatusSubdocMultiPathFailureDeleted: Success,
	mcbp.StatusSubdocSuccessDeleted:          Success,

	mcbp.StatusKeyNotFound: ErrDocumentNotFound,
	mcbp.StatusTooBig:      ErrValueTooLarge,
	mcbp.StatusOutOfMemory: ErrTemporaryFailure,
	mcbp.StatusKeyExists:   ErrDocumentExists,
	mcbp.StatusLocked:      ErrDocumentLocked,

	mcbp.StatusSubdocPathNotFound: ErrPathNotFound,
	mcbp.StatusSubdocPathMismatch: ErrPathMismatch,
	mcbp.StatusSubdocPathInvalid:  ErrPathInvalid,
	mcbp.StatusSubdocPathTooBig:   ErrPathTooBig,
	mcbp.StatusSubdocDocTooDeep:   ErrPathTooDeep,
	mcbp.StatusSubdocValueTooDeep: ErrValueTooDeep,
	mcbp.StatusSubdocCantInsert:   ErrValueInvalid,
	mcbp.StatusSubdocNotJSON:      ErrDocumentNotJSON,
	mcbp.StatusSubdocBadRange:     ErrNumberTooBig,
	mcbp.StatusSubdocBadDelta:     ErrDeltaInvalid,
	mcbp.StatusSubdocPathExists:   ErrPathExists,
	mcbp.StatusSubdocInvalidCombo: ErrInvalidArgument,

	mcbp.StatusSubdocXattrInvalidFlagCombo: ErrXattrInvalidFlagCombo,
	mcbp.StatusSubdocXattrInvalidKeyCombo:  ErrXattrInvalidKeyCombo,
	mcbp.StatusSubdocXattrUnknownMacro:     ErrXattrUnknownMacro,
	mcbp.StatusSubdocXattrUnknownVattr:     ErrXattrUnknownVirtualAttribute,
	mcbp.StatusSubdocXattrCantModifyVattr:  ErrXattrCannotModifyVirtualAttribute,
	mcbp.StatusSubdocInvalidXattrOrder:     ErrXattrInvalidOrder,

	mcbp.StatusInvalidArgs:    ErrInvalidPacket,
	mcbp.StatusNotStored:      ErrNotStored,
	mcbp.StatusBadDelta:       ErrInvalidDelta,
	mcbp.StatusRangeError:     ErrInvalidRange,
	mcbp.StatusUnknownCommand: ErrUnsupportedOperation,

	mcbp.StatusAccessDenied: ErrAuthenticationFailure,
	mcbp.StatusAuthError:    ErrAuthenticationFailure,
	mcbp.StatusAuthStale:    ErrAuthenticationFailure,

	mcbp.StatusNoBucket:       ErrBucketNotFound,
	mcbp.StatusNotInitialized: ErrBucketNotFound,

	mcbp.StatusUnknownCollection:          ErrCollectionNotFound,
	mcbp.StatusUnknownScope:               ErrScopeNotFound,
	mcbp.StatusNoCollectionsManifest:      ErrCollectionNoManifest,
	mcbp.StatusCannotApplyManifest:        ErrCollectionCannotApplyManifest,
	mcbp.StatusCollectionsManifestIsAhead: ErrCollectionManifestIsAhead,

	mcbp.StatusDurabilityInvalidLevel:      ErrDurabilityLevelNotAvailable,
	mcbp.StatusDurabilityImpossible:        ErrDurabilityImpossible,
	mcbp.StatusSyncWriteInProgress:         ErrDurableWriteInProgress,
	mcbp.StatusSyncWriteReCommitInProgress: ErrDurableWriteReCommitInProgress,
	mcbp.StatusSyncWriteAmbiguous:          ErrDurabilityAmbiguous,
}

// MapStatus converts a wire status code into an ErrorKind. Codes outside the
// primary table go through the fallback map; codes unknown to both become
// ErrKVEngineUnknown and are logged when logger is not nil.
func MapStatus(logger *slog.Logger, code mcbp.Status) ErrorKind {
	if kind, ok := statusKinds[code]; ok {
		return kind
	}
	return fallbackStatus(logger, code)
}

func fallbackStatus(logger *slog.Logger, code mcbp.Status) ErrorKind {
	switch code {
	case mcbp.StatusNotMyVBucket:
		return ErrTimeout
	case mcbp.StatusAuthContinue:
		return ErrAuthContinue
	case mcbp.StatusBusy, mcbp.StatusTmpFail:
		return ErrTemporaryFailure
	default:
		if logger != nil {
			logger.Error("memd: unhandled server status", "status", code.String())
		}
		return ErrKVEngineUnknown
	}
}
