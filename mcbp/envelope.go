package mcbp

import "encoding/binary"

// Envelope is one decoded response packet. The byte slices alias the buffer
// the envelope was parsed from; nothing is copied.
type Envelope struct {
	Magic    Magic
	Opcode   Opcode
	Datatype Datatype
	Status   Status
	Opaque   uint32
	CAS      uint64

	FramingExtras []byte
	Extras        []byte
	Key           []byte
	Value         []byte
}

// BodyLen returns the total body length the envelope was framed with.
func (e *Envelope) BodyLen() int {
	return len(e.FramingExtras) + len(e.Extras) + len(e.Key) + len(e.Value)
}

// header is the fixed part of a response before the body is attached.
type header struct {
	magic      Magic
	opcode     Opcode
	framingLen int
	keyLen     int
	extrasLen  int
	datatype   Datatype
	status     Status
	bodyLen    int
	opaque     uint32
	cas        uint64
}

func parseHeader(b []byte) (header, error) {
	var h header
	if len(b) < HeaderLen {
		return h, protocolErrorf("short header: %d bytes", len(b))
	}

	h.magic = Magic(b[0])
	switch h.magic {
	case MagicResponse:
		h.keyLen = int(binary.BigEndian.Uint16(b[2:4]))
	case MagicAltResponse:
		h.framingLen = int(b[2])
		h.keyLen = int(b[3])
	default:
		return h, protocolErrorf("invalid response magic 0x%02x", b[0])
	}

	h.opcode = Opcode(b[1])
	h.extrasLen = int(b[4])
	h.datatype = Datatype(b[5])
	h.status = Status(binary.BigEndian.Uint16(b[6:8]))
	h.bodyLen = int(binary.BigEndian.Uint32(b[8:12]))
	h.opaque = binary.BigEndian.Uint32(b[12:16])
	h.cas = binary.BigEndian.Uint64(b[16:24])

	if h.bodyLen > MaxBodyLen {
		return h, protocolErrorf("body length %d exceeds limit %d", h.bodyLen, MaxBodyLen)
	}
	if h.framingLen+h.extrasLen+h.keyLen > h.bodyLen {
		return h, protocolErrorf("framing %d + extras %d + key %d exceed body length %d",
			h.framingLen, h.extrasLen, h.keyLen, h.bodyLen)
	}
	return h, nil
}

// attach slices body into the envelope sections declared by h.
func (h header) attach(body []byte) *Envelope {
	env := &Envelope{
		Magic:    h.magic,
		Opcode:   h.opcode,
		Datatype: h.datatype,
		Status:   h.status,
		Opaque:   h.opaque,
		CAS:      h.cas,
	}
	off := 0
	take := func(n int) []byte {
		if n == 0 {
			return nil
		}
		s := body[off : off+n : off+n]
		off += n
		return s
	}
	env.FramingExtras = take(h.framingLen)
	env.Extras = take(h.extrasLen)
	env.Key = take(h.keyLen)
	env.Value = take(h.bodyLen - off)
	return env
}

// ParseEnvelope decodes one response from the start of b and returns it with
// the number of bytes consumed. The returned slices alias b.
func ParseEnvelope(b []byte) (*Envelope, int, error) {
	h, err := parseHeader(b)
	if err != nil {
		return nil, 0, err
	}
	total := HeaderLen + h.bodyLen
	if len(b) < total {
		return nil, 0, protocolErrorf("truncated packet: have %d of %d bytes", len(b), total)
	}
	return h.attach(b[HeaderLen:total]), total, nil
}
