package testutils

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/pior/memd/mcbp"
)

// Request is a decoded client request as seen by a test server.
type Request struct {
	Opcode   mcbp.Opcode
	Datatype mcbp.Datatype
	VBucket  uint16
	Opaque   uint32
	CAS      uint64
	Extras   []byte
	Key      []byte
	Value    []byte
}

// ReadRequest reads one classic-magic request packet.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	var hdr [mcbp.HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if mcbp.Magic(hdr[0]) != mcbp.MagicRequest {
		return nil, fmt.Errorf("unexpected request magic 0x%02x", hdr[0])
	}

	keyLen := int(binary.BigEndian.Uint16(hdr[2:4]))
	extLen := int(hdr[4])
	bodyLen := int(binary.BigEndian.Uint32(hdr[8:12]))
	if extLen+keyLen > bodyLen {
		return nil, fmt.Errorf("request sections exceed body length %d", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	return &Request{
		Opcode:   mcbp.Opcode(hdr[1]),
		Datatype: mcbp.Datatype(hdr[5]),
		VBucket:  binary.BigEndian.Uint16(hdr[6:8]),
		Opaque:   binary.BigEndian.Uint32(hdr[12:16]),
		CAS:      binary.BigEndian.Uint64(hdr[16:24]),
		Extras:   body[:extLen],
		Key:      body[extLen : extLen+keyLen],
		Value:    body[extLen+keyLen:],
	}, nil
}

// ConnectionMock is the client end of an in-memory connection. The test
// plays the server on the other end: it reads requests and writes responses.
// Writes on either end block until the other end reads.
type ConnectionMock struct {
	net.Conn

	server net.Conn
	reader *bufio.Reader
}

// NewConnectionMock creates a connected client/server pair.
func NewConnectionMock() *ConnectionMock {
	client, server := net.Pipe()
	return &ConnectionMock{
		Conn:   client,
		server: server,
		reader: bufio.NewReader(server),
	}
}

// RemoteAddr reports a loopback address so the connection has an endpoint.
func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11210}
}

// ReadRequest reads the next request the client wrote.
func (m *ConnectionMock) ReadRequest() (*Request, error) {
	return ReadRequest(m.reader)
}

// Reply writes response packets to the client.
func (m *ConnectionMock) Reply(packets ...*mcbp.Packet) error {
	var buf []byte
	for _, p := range packets {
		if p.Magic == 0 {
			p.Magic = mcbp.MagicResponse
		}
		buf = mcbp.AppendPacket(buf, p)
	}
	return m.WriteRaw(buf)
}

// WriteRaw writes bytes to the client as is.
func (m *ConnectionMock) WriteRaw(b []byte) error {
	_, err := m.server.Write(b)
	return err
}

// CloseServer closes the server end; the client sees EOF.
func (m *ConnectionMock) CloseServer() error {
	return m.server.Close()
}
