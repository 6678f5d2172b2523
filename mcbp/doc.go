// Package mcbp implements the wire level of the memcached binary protocol as
// spoken by Couchbase-style data nodes.
//
// It decodes response packets into Envelope values and encodes outbound
// packets, without knowing anything about operation semantics. Result
// reconstruction, status mapping and delivery live in the parent package.
//
// # Framing
//
// Every packet starts with a 24-byte big-endian header:
//
//	magic(1) opcode(1) keylen(2) extlen(1) datatype(1) status(2)
//	bodylen(4) opaque(4) cas(8)
//
// Responses using the alternative magic (0x18) carry framing extras; their
// length takes byte 2 and the key length shrinks to byte 3.
//
// # Reading
//
//	env, err := mcbp.ReadEnvelope(bufio.NewReader(conn))
//	if err != nil {
//	    if mcbp.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
//
// ParseEnvelope decodes from an in-memory buffer instead, returning the
// number of bytes consumed so captures of back-to-back packets can be walked.
//
// # Record decoding
//
// Cursor reads fixed-width fields with bounds checking. The first short read
// latches a *ProtocolError and later reads return zero values:
//
//	c := mcbp.NewCursor(env.Value)
//	status := c.Uint16()
//	value := c.Bytes(int(c.Uint32()))
//	if err := c.Err(); err != nil {
//	    return err
//	}
package mcbp
