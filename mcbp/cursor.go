package mcbp

import (
	"encoding/binary"
	"io"
)

// Cursor reads big-endian fields from a byte slice with bounds checking.
// The first short read latches an error; later reads return zero values so
// callers can decode a whole record and check Err once.
type Cursor struct {
	buf []byte
	off int
	err error
}

// NewCursor returns a cursor positioned at the start of b.
func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// Err returns the first error encountered, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	return len(c.buf) - c.off
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.off
}

func (c *Cursor) next(n int, what string) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.Len() < n {
		c.err = &ProtocolError{
			Message: "truncated " + what,
			Err:     io.ErrUnexpectedEOF,
		}
		return nil
	}
	b := c.buf[c.off : c.off+n : c.off+n]
	c.off += n
	return b
}

func (c *Cursor) Uint8() uint8 {
	b := c.next(1, "uint8")
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *Cursor) Uint16() uint16 {
	b := c.next(2, "uint16")
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (c *Cursor) Uint32() uint32 {
	b := c.next(4, "uint32")
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (c *Cursor) Uint64() uint64 {
	b := c.next(8, "uint64")
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Bytes returns the next n bytes without copying. A zero n returns an empty,
// non-nil slice.
func (c *Cursor) Bytes(n int) []byte {
	if n == 0 && c.err == nil {
		return c.buf[c.off:c.off:c.off]
	}
	return c.next(n, "bytes")
}

// Skip advances past n bytes.
func (c *Cursor) Skip(n int) {
	c.next(n, "skip")
}
