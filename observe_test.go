package memd

import (
	"encoding/binary"
	"testing"

	"github.com/pior/memd/mcbp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observeRecordBytes(vb uint16, key []byte, state uint8, cas uint64) []byte {
	b := binary.BigEndian.AppendUint16(nil, vb)
	b = binary.BigEndian.AppendUint16(b, uint16(len(key)))
	b = append(b, key...)
	b = append(b, state)
	return binary.BigEndian.AppendUint64(b, cas)
}

type extCall struct {
	kind ErrorKind
	res  Result
}

func collectExt(calls *[]extCall) ExtHandler {
	return func(_ *Pipeline, _ *Request, kind ErrorKind, res Result) {
		*calls = append(*calls, extCall{kind: kind, res: res})
	}
}

func TestHandleObserve(t *testing.T) {
	t.Run("one delivery per record", func(t *testing.T) {
		h := newHarness(t)
		var calls []extCall
		req := &Request{Opcode: mcbp.OpObserve, Key: []byte("ignored"), Ext: collectExt(&calls)}

		h.dispatch(req, mcbp.Packet{
			CAS: 0x0000000a_00000014,
			Value: concat(
				observeRecordBytes(3, []byte("a"), ObservePersisted, 100),
				observeRecordBytes(10, []byte("bb"), ObserveFound, 200),
			),
		})

		require.Len(t, calls, 2)
		assert.Empty(t, h.got)
		assert.False(t, req.Has(FlagInvoked))

		first := calls[0].res.(*ObserveResult)
		assert.Equal(t, Success, calls[0].kind)
		assert.Equal(t, []byte("a"), first.Key)
		assert.Equal(t, uint64(100), first.CAS)
		assert.Equal(t, uint16(3), first.VBucket)
		assert.Equal(t, ObservePersisted, first.State)
		assert.Equal(t, uint32(0x0a), first.TTP)
		assert.Equal(t, uint32(0x14), first.TTR)
		assert.False(t, first.Final)

		topology := NewStaticTopology("travel-sample", testNodes, testVBuckets)
		assert.Equal(t, topology.VBucketMaster(3) == 0, first.IsMaster)

		second := calls[1].res.(*ObserveResult)
		assert.Equal(t, []byte("bb"), second.Key)
		assert.Equal(t, uint64(200), second.CAS)
		assert.Equal(t, topology.VBucketMaster(10) == 0, second.IsMaster)
	})

	t.Run("collection prefix is stripped", func(t *testing.T) {
		h := newHarness(t, func(c *DispatcherConfig) { c.CollectionsEnabled = true })
		var calls []extCall
		req := &Request{Opcode: mcbp.OpObserve, Ext: collectExt(&calls)}

		key := mcbp.AppendLEB128(nil, 0x88)
		key = append(key, "doc"...)
		h.dispatch(req, mcbp.Packet{Value: observeRecordBytes(1, key, ObserveFound, 1)})

		require.Len(t, calls, 1)
		assert.Equal(t, []byte("doc"), calls[0].res.(*ObserveResult).Key)
	})

	t.Run("failure has no result", func(t *testing.T) {
		h := newHarness(t)
		var calls []extCall
		req := &Request{Opcode: mcbp.OpObserve, Ext: collectExt(&calls)}

		h.dispatch(req, mcbp.Packet{Status: mcbp.StatusTmpFail})

		require.Len(t, calls, 1)
		assert.Equal(t, ErrTemporaryFailure, calls[0].kind)
		assert.Nil(t, calls[0].res)
	})

	t.Run("immediate failure", func(t *testing.T) {
		h := newHarness(t)
		var calls []extCall
		req := &Request{Opcode: mcbp.OpObserve, Ext: collectExt(&calls)}

		h.fail(req, ErrSocketShutdown)

		require.Len(t, calls, 1)
		assert.Equal(t, ErrSocketShutdown, calls[0].kind)
		assert.Nil(t, calls[0].res)
	})

	t.Run("truncated body delivers nothing", func(t *testing.T) {
		h := newHarness(t)
		var calls []extCall
		req := &Request{Opcode: mcbp.OpObserve, Ext: collectExt(&calls)}

		value := concat(
			observeRecordBytes(1, []byte("a"), ObserveFound, 1),
			observeRecordBytes(2, []byte("b"), ObserveFound, 2),
		)
		err := h.dispatchErr(req, mcbp.Packet{Value: value[:len(value)-3]})

		require.Error(t, err)
		assert.Empty(t, calls)
	})

	t.Run("invoked request sees nothing", func(t *testing.T) {
		h := newHarness(t)
		var calls []extCall
		req := &Request{Opcode: mcbp.OpObserve, Flags: FlagInvoked, Ext: collectExt(&calls)}

		h.dispatch(req, mcbp.Packet{Value: observeRecordBytes(1, []byte("a"), ObserveFound, 1)})

		assert.Empty(t, calls)
		assert.Equal(t, uint64(1), h.d.Stats().Suppressed)
	})

	t.Run("without ext handler records reach the registry", func(t *testing.T) {
		h := newHarness(t)
		h.dispatch(&Request{Opcode: mcbp.OpObserve}, mcbp.Packet{
			Value: concat(
				observeRecordBytes(1, []byte("a"), ObserveFound, 1),
				observeRecordBytes(2, []byte("b"), ObserveNotFound, 2),
			),
		})

		require.Len(t, h.got, 2)
		assert.Equal(t, CallbackObserve, h.got[1].cbtype)
		assert.Equal(t, ObserveNotFound, h.got[1].res.(*ObserveResult).State)
	})
}

func TestSplitObserveCAS(t *testing.T) {
	ttp, ttr := splitObserveCAS(0x11223344_55667788)
	assert.Equal(t, uint32(0x11223344), ttp)
	assert.Equal(t, uint32(0x55667788), ttr)
}

func observeSeqnoBody(failedOver bool, vb uint16, values ...uint64) []byte {
	var b []byte
	if failedOver {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = binary.BigEndian.AppendUint16(b, vb)
	for _, v := range values {
		b = binary.BigEndian.AppendUint64(b, v)
	}
	return b
}

func TestHandleObserveSeqno(t *testing.T) {
	topology := NewStaticTopology("travel-sample", testNodes, testVBuckets)

	t.Run("current", func(t *testing.T) {
		h := newHarness(t)
		h.p.Index = 1
		h.dispatch(&Request{Opcode: mcbp.OpObserveSeqno}, mcbp.Packet{
			Value: observeSeqnoBody(false, 12, 0xfeed, 90, 100),
		})

		got := h.only()
		assert.Equal(t, CallbackObserveSeqno, got.cbtype)
		res := got.res.(*ObserveSeqnoResult)
		assert.Equal(t, uint16(12), res.VBucket)
		assert.Equal(t, 1, res.ServerIndex)
		assert.Equal(t, topology.VBucketMaster(12) == 1, res.IsMaster)
		assert.Equal(t, uint64(0xfeed), res.UUID)
		assert.Equal(t, uint64(90), res.PersistedSeqno)
		assert.Equal(t, uint64(100), res.CurrentSeqno)
		assert.False(t, res.FailedOver)
		assert.Zero(t, res.OldUUID)
	})

	t.Run("failed over", func(t *testing.T) {
		h := newHarness(t)
		h.dispatch(&Request{Opcode: mcbp.OpObserveSeqno}, mcbp.Packet{
			Value: observeSeqnoBody(true, 12, 0xfeed, 90, 100, 0xbeef, 80),
		})

		res := h.only().res.(*ObserveSeqnoResult)
		assert.True(t, res.FailedOver)
		assert.Equal(t, uint64(0xbeef), res.OldUUID)
		assert.Equal(t, uint64(80), res.OldSeqno)
	})

	t.Run("failed over body without old state", func(t *testing.T) {
		h := newHarness(t)
		err := h.dispatchErr(&Request{Opcode: mcbp.OpObserveSeqno}, mcbp.Packet{
			Value: observeSeqnoBody(true, 12, 0xfeed, 90, 100),
		})

		require.Error(t, err)
		assert.Empty(t, h.got)
	})

	t.Run("error", func(t *testing.T) {
		h := newHarness(t)
		h.dispatch(&Request{Opcode: mcbp.OpObserveSeqno}, mcbp.Packet{Status: mcbp.StatusNotMyVBucket})

		res := h.only().res.(*ObserveSeqnoResult)
		assert.Equal(t, ErrTimeout, res.Status)
		assert.False(t, res.ClientGenerated)
		assert.Zero(t, res.UUID)
	})
}
