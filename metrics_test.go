package memd

import (
	"testing"
	"time"

	"github.com/pior/memd/mcbp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewPrometheusRecorder(registry, "memd")
	h := newHarness(t, func(c *DispatcherConfig) { c.Recorder = recorder })

	h.dispatch(&Request{Opcode: mcbp.OpGet, Start: time.Now().Add(-time.Millisecond)}, mcbp.Packet{})
	h.dispatch(&Request{Opcode: mcbp.OpGet}, mcbp.Packet{Status: mcbp.StatusKeyNotFound})
	h.fail(&Request{Opcode: mcbp.OpSet}, ErrNetwork)

	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.results.WithLabelValues("get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.results.WithLabelValues("get", "document not found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.results.WithLabelValues("store", "network error")))

	// Only requests with a start time are timed.
	count, err := testutil.GatherAndCount(registry, "memd_dispatch_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDispatchStats(t *testing.T) {
	h := newHarness(t)
	h.dispatch(&Request{Opcode: mcbp.OpSet, VBucket: 1}, mcbp.Packet{Extras: tokenExtras(1, 2)})
	h.fail(&Request{Opcode: mcbp.OpGet}, ErrTimeout)
	_ = h.dispatchErr(&Request{Opcode: mcbp.Opcode(0xee)}, mcbp.Packet{})

	assert.Equal(t, DispatchStats{
		Dispatched:      3,
		Delivered:       2,
		ClientGenerated: 1,
		ProtocolErrors:  1,
		TokensMerged:    1,
	}, h.d.Stats())
}
