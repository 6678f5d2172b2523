package memd

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	"github.com/pior/memd/mcbp"
	"github.com/stretchr/testify/require"
)

var testNodes = []string{"10.0.0.1:11210", "10.0.0.2:11210"}

const testVBuckets = 64

type captured struct {
	owner  any
	cbtype CallbackType
	res    Result
}

// harness drives a Dispatcher the way a connection would and records every
// result reaching the callback registry.
type harness struct {
	t   *testing.T
	d   *Dispatcher
	p   *Pipeline
	got []captured
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, mods ...func(*DispatcherConfig)) *harness {
	h := &harness{
		t: t,
		p: &Pipeline{Index: 0, Host: "10.0.0.1", Port: "11210", Tokens: &TokenTable{}},
	}

	config := DispatcherConfig{
		Logger:   discardLogger(),
		Owner:    "owner",
		Topology: NewStaticTopology("travel-sample", testNodes, testVBuckets),
	}
	for _, mod := range mods {
		mod(&config)
	}

	h.d = NewDispatcher(config)
	h.d.SetCallback(CallbackDefault, func(owner any, cbtype CallbackType, res Result) {
		h.got = append(h.got, captured{owner: owner, cbtype: cbtype, res: res})
	})
	return h
}

// envelope encodes p and parses it back, so every test goes through the
// real framing code.
func envelope(t *testing.T, p mcbp.Packet) *mcbp.Envelope {
	t.Helper()
	if p.Magic == 0 {
		p.Magic = mcbp.MagicResponse
	}
	env, n, err := mcbp.ParseEnvelope(mcbp.AppendPacket(nil, &p))
	require.NoError(t, err)
	require.Equal(t, p.Size(), n)
	return env
}

// dispatch answers req with p. A zero Opcode in p is taken from req.
func (h *harness) dispatch(req *Request, p mcbp.Packet) {
	h.t.Helper()
	require.NoError(h.t, h.dispatchErr(req, p))
}

func (h *harness) dispatchErr(req *Request, p mcbp.Packet) error {
	h.t.Helper()
	if p.Opcode == 0 {
		p.Opcode = req.Opcode
	}
	p.Opaque = req.Opaque
	return h.d.Dispatch(h.p, req, envelope(h.t, p), Success)
}

// fail delivers an immediate failure for req.
func (h *harness) fail(req *Request, kind ErrorKind) {
	h.t.Helper()
	require.NoError(h.t, h.d.Dispatch(h.p, req, nil, kind))
}

func (h *harness) only() captured {
	h.t.Helper()
	require.Len(h.t, h.got, 1)
	return h.got[0]
}

func tokenExtras(uuid, seqno uint64) []byte {
	b := binary.BigEndian.AppendUint64(nil, uuid)
	return binary.BigEndian.AppendUint64(b, seqno)
}
