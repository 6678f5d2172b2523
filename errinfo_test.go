package memd

import (
	"testing"

	"github.com/pior/memd/mcbp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancedErrorInfo(t *testing.T) {
	tests := []struct {
		name        string
		status      mcbp.Status
		datatype    mcbp.Datatype
		value       string
		wantInfo    bool
		wantRef     string
		wantContext string
	}{
		{
			name:        "ref and context",
			status:      mcbp.StatusKeyExists,
			datatype:    mcbp.DatatypeJSON,
			value:       `{"error":{"ref":"8e0b","context":"CAS mismatch"}}`,
			wantInfo:    true,
			wantRef:     "8e0b",
			wantContext: "CAS mismatch",
		},
		{
			name:     "ref only",
			status:   mcbp.StatusLocked,
			datatype: mcbp.DatatypeJSON,
			value:    `{"error":{"ref":"r"}}`,
			wantInfo: true,
			wantRef:  "r",
		},
		{
			name:     "invalid json",
			status:   mcbp.StatusKeyExists,
			datatype: mcbp.DatatypeJSON,
			value:    `{"error":`,
		},
		{
			name:     "no error object",
			status:   mcbp.StatusKeyExists,
			datatype: mcbp.DatatypeJSON,
			value:    `{"other":1}`,
		},
		{
			name:     "empty error object",
			status:   mcbp.StatusKeyExists,
			datatype: mcbp.DatatypeJSON,
			value:    `{"error":{}}`,
		},
		{
			name:   "not json",
			status: mcbp.StatusKeyExists,
			value:  `{"error":{"ref":"r"}}`,
		},
		{
			name:     "success",
			status:   mcbp.StatusSuccess,
			datatype: mcbp.DatatypeJSON,
			value:    `{"error":{"ref":"r"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.dispatch(&Request{Opcode: mcbp.OpTouch}, mcbp.Packet{
				Status:   tt.status,
				Datatype: tt.datatype,
				Value:    []byte(tt.value),
			})

			res := h.only().res.(*TouchResult)
			assert.Equal(t, tt.wantInfo, res.HasErrorInfo())

			ref, ok := res.ErrorRef()
			assert.Equal(t, tt.wantRef != "", ok)
			assert.Equal(t, tt.wantRef, ref)

			msg, ok := res.ErrorContext()
			assert.Equal(t, tt.wantContext != "", ok)
			assert.Equal(t, tt.wantContext, msg)

			// The body is decoded once; later queries ignore the raw bytes.
			assert.NotEqual(t, errInfoPending, res.errInfo.state)
			assert.Nil(t, res.errInfo.raw)
			res.errInfo.raw = []byte(`{"error":{"ref":"tampered","context":"tampered"}}`)

			assert.Equal(t, tt.wantInfo, res.HasErrorInfo())
			ref, _ = res.ErrorRef()
			assert.Equal(t, tt.wantRef, ref)
			msg, _ = res.ErrorContext()
			assert.Equal(t, tt.wantContext, msg)
		})
	}
}

func TestEnhancedErrorInfoOutlivesEnvelope(t *testing.T) {
	h := newHarness(t)
	env := envelope(t, mcbp.Packet{
		Opcode:   mcbp.OpTouch,
		Status:   mcbp.StatusKeyNotFound,
		Datatype: mcbp.DatatypeJSON,
		Value:    []byte(`{"error":{"context":"gone"}}`),
	})

	require.NoError(t, h.d.Dispatch(h.p, &Request{Opcode: mcbp.OpTouch}, env, Success))
	for i := range env.Value {
		env.Value[i] = 'x'
	}

	msg, ok := h.only().res.Ctx().ErrorContext()
	require.True(t, ok)
	assert.Equal(t, "gone", msg)
}
