package memd

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/pior/memd/mcbp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		code mcbp.Status
		want ErrorKind
	}{
		{mcbp.StatusSuccess, Success},
		{mcbp.StatusSubdocMultiPathFailure, Success},
		{mcbp.StatusSubdocMultiPathFailureDeleted, Success},
		{mcbp.StatusSubdocSuccessDeleted, Success},
		{mcbp.StatusKeyNotFound, ErrDocumentNotFound},
		{mcbp.StatusKeyExists, ErrDocumentExists},
		{mcbp.StatusTooBig, ErrValueTooLarge},
		{mcbp.StatusOutOfMemory, ErrTemporaryFailure},
		{mcbp.StatusLocked, ErrDocumentLocked},
		{mcbp.StatusSubdocPathNotFound, ErrPathNotFound},
		{mcbp.StatusSubdocDocTooDeep, ErrPathTooDeep},
		{mcbp.StatusSubdocCantInsert, ErrValueInvalid},
		{mcbp.StatusSubdocBadRange, ErrNumberTooBig},
		{mcbp.StatusSubdocInvalidCombo, ErrInvalidArgument},
		{mcbp.StatusSubdocXattrUnknownVattr, ErrXattrUnknownVirtualAttribute},
		{mcbp.StatusSubdocInvalidXattrOrder, ErrXattrInvalidOrder},
		{mcbp.StatusInvalidArgs, ErrInvalidPacket},
		{mcbp.StatusNotStored, ErrNotStored},
		{mcbp.StatusBadDelta, ErrInvalidDelta},
		{mcbp.StatusRangeError, ErrInvalidRange},
		{mcbp.StatusUnknownCommand, ErrUnsupportedOperation},
		{mcbp.StatusAccessDenied, ErrAuthenticationFailure},
		{mcbp.StatusAuthError, ErrAuthenticationFailure},
		{mcbp.StatusAuthStale, ErrAuthenticationFailure},
		{mcbp.StatusNoBucket, ErrBucketNotFound},
		{mcbp.StatusNotInitialized, ErrBucketNotFound},
		{mcbp.StatusUnknownCollection, ErrCollectionNotFound},
		{mcbp.StatusUnknownScope, ErrScopeNotFound},
		{mcbp.StatusNoCollectionsManifest, ErrCollectionNoManifest},
		{mcbp.StatusCannotApplyManifest, ErrCollectionCannotApplyManifest},
		{mcbp.StatusCollectionsManifestIsAhead, ErrCollectionManifestIsAhead},
		{mcbp.StatusDurabilityInvalidLevel, ErrDurabilityLevelNotAvailable},
		{mcbp.StatusDurabilityImpossible, ErrDurabilityImpossible},
		{mcbp.StatusSyncWriteInProgress, ErrDurableWriteInProgress},
		{mcbp.StatusSyncWriteReCommitInProgress, ErrDurableWriteReCommitInProgress},
		{mcbp.StatusSyncWriteAmbiguous, ErrDurabilityAmbiguous},

		// fallback
		{mcbp.StatusNotMyVBucket, ErrTimeout},
		{mcbp.StatusAuthContinue, ErrAuthContinue},
		{mcbp.StatusBusy, ErrTemporaryFailure},
		{mcbp.StatusTmpFail, ErrTemporaryFailure},
		{mcbp.StatusXattrInvalid, ErrKVEngineUnknown},
		{mcbp.StatusRollback, ErrKVEngineUnknown},
		{mcbp.Status(0xffff), ErrKVEngineUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, MapStatus(nil, tt.code))
		})
	}
}

func TestMapStatusLogsUnknownCodes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	require.Equal(t, ErrKVEngineUnknown, MapStatus(logger, mcbp.Status(0x4242)))
	assert.Contains(t, buf.String(), "unhandled server status")
	assert.Contains(t, buf.String(), "0x4242")

	buf.Reset()
	require.Equal(t, ErrTemporaryFailure, MapStatus(logger, mcbp.StatusBusy))
	assert.Empty(t, buf.String())
}

func TestErrorKind(t *testing.T) {
	t.Run("every kind is named", func(t *testing.T) {
		for k := Success; k < numErrorKinds; k++ {
			assert.NotEmpty(t, errorKindNames[k], "kind %d", int(k))
		}
		assert.Equal(t, "ErrorKind(999)", ErrorKind(999).String())
	})

	t.Run("errors.Is", func(t *testing.T) {
		res := &GetResult{Context: Context{Status: ErrDocumentNotFound}}
		require.Error(t, res.Err())
		assert.True(t, errors.Is(res.Err(), ErrDocumentNotFound))
		assert.EqualError(t, res.Err(), "memd: document not found")

		ok := &GetResult{}
		assert.NoError(t, ok.Err())
	})

	t.Run("families", func(t *testing.T) {
		assert.True(t, ErrPathNotFound.IsSubdoc())
		assert.True(t, ErrXattrInvalidOrder.IsSubdoc())
		assert.False(t, ErrDocumentNotFound.IsSubdoc())
		assert.False(t, ErrCollectionNotFound.IsSubdoc())

		assert.True(t, ErrNetwork.IsClientGenerated())
		assert.True(t, ErrProtocol.IsClientGenerated())
		assert.False(t, ErrKVEngineUnknown.IsClientGenerated())
	})
}
