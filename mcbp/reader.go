package mcbp

import (
	"bufio"
	"io"
)

// ReadEnvelope reads one complete response packet from r.
//
// The body is read into a freshly allocated buffer owned by the returned
// envelope, so the envelope stays valid after the next call.
//
// Errors returned:
//   - io.EOF: connection closed cleanly between packets
//   - *ProtocolError: malformed header, the connection should be closed
//   - *ConnectionError: I/O failure, the connection should be closed
func ReadEnvelope(r *bufio.Reader) (*Envelope, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &ConnectionError{Op: "read header", Err: err}
	}

	h, err := parseHeader(hdr[:])
	if err != nil {
		return nil, err
	}

	var body []byte
	if h.bodyLen > 0 {
		body = make([]byte, h.bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, &ConnectionError{Op: "read body", Err: err}
		}
	}
	return h.attach(body), nil
}
