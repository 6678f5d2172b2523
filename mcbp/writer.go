package mcbp

import (
	"encoding/binary"
	"io"
)

// Packet describes an outbound packet. Requests carry VBucket in header
// bytes 6-7, responses carry Status there; the magic decides which.
type Packet struct {
	Magic    Magic
	Opcode   Opcode
	Datatype Datatype
	VBucket  uint16
	Status   Status
	Opaque   uint32
	CAS      uint64

	FramingExtras []byte
	Extras        []byte
	Key           []byte
	Value         []byte
}

func (p *Packet) isResponse() bool {
	return p.Magic == MagicResponse || p.Magic == MagicAltResponse
}

func (p *Packet) hasFraming() bool {
	return p.Magic == MagicAltRequest || p.Magic == MagicAltResponse
}

// Size returns the encoded length of the packet.
func (p *Packet) Size() int {
	return HeaderLen + len(p.FramingExtras) + len(p.Extras) + len(p.Key) + len(p.Value)
}

// AppendPacket appends the wire encoding of p to dst. A zero Magic encodes
// as MagicRequest. Framing extras are only encoded for the alternative magics.
func AppendPacket(dst []byte, p *Packet) []byte {
	magic := p.Magic
	if magic == 0 {
		magic = MagicRequest
	}
	framing := p.FramingExtras
	if !p.hasFraming() {
		framing = nil
	}
	bodyLen := len(framing) + len(p.Extras) + len(p.Key) + len(p.Value)

	var hdr [HeaderLen]byte
	hdr[0] = byte(magic)
	hdr[1] = byte(p.Opcode)
	if p.hasFraming() {
		hdr[2] = byte(len(framing))
		hdr[3] = byte(len(p.Key))
	} else {
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(p.Key)))
	}
	hdr[4] = byte(len(p.Extras))
	hdr[5] = byte(p.Datatype)
	if p.isResponse() {
		binary.BigEndian.PutUint16(hdr[6:8], uint16(p.Status))
	} else {
		binary.BigEndian.PutUint16(hdr[6:8], p.VBucket)
	}
	binary.BigEndian.PutUint32(hdr[8:12], uint32(bodyLen))
	binary.BigEndian.PutUint32(hdr[12:16], p.Opaque)
	binary.BigEndian.PutUint64(hdr[16:24], p.CAS)

	dst = append(dst, hdr[:]...)
	dst = append(dst, framing...)
	dst = append(dst, p.Extras...)
	dst = append(dst, p.Key...)
	dst = append(dst, p.Value...)
	return dst
}

// WritePacket writes the encoding of p to w in a single Write call.
func WritePacket(w io.Writer, p *Packet) (int, error) {
	buf := AppendPacket(make([]byte, 0, p.Size()), p)
	n, err := w.Write(buf)
	if err != nil {
		return n, &ConnectionError{Op: "write", Err: err}
	}
	return n, nil
}
