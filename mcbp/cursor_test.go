package mcbp

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor(t *testing.T) {
	buf := []byte{
		0x01,
		0x00, 0x02,
		0x00, 0x00, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04,
		'a', 'b',
	}
	c := NewCursor(buf)

	assert.Equal(t, uint8(1), c.Uint8())
	assert.Equal(t, uint16(2), c.Uint16())
	assert.Equal(t, uint32(3), c.Uint32())
	assert.Equal(t, uint64(4), c.Uint64())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []byte("ab"), c.Bytes(2))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, len(buf), c.Offset())
	assert.NoError(t, c.Err())

	empty := c.Bytes(0)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCursorLatchesFirstError(t *testing.T) {
	c := NewCursor([]byte{0x00, 0x01, 0x02})

	assert.Equal(t, uint16(1), c.Uint16())
	assert.Equal(t, uint32(0), c.Uint32())
	require.Error(t, c.Err())

	first := c.Err()
	assert.Equal(t, uint8(0), c.Uint8(), "reads after an error return zero")
	assert.Nil(t, c.Bytes(0))
	assert.Same(t, first, c.Err())

	var perr *ProtocolError
	require.ErrorAs(t, first, &perr)
	assert.True(t, errors.Is(first, io.ErrUnexpectedEOF))
	assert.Equal(t, "truncated uint32", perr.Message)
}

func TestCursorNegativeLength(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	c.Skip(-1)
	assert.Error(t, c.Err())
}

func TestLEB128(t *testing.T) {
	tests := []struct {
		value   uint32
		encoded []byte
	}{
		{0, []byte{0x00}},
		{8, []byte{0x08}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0x80, 0x01}},
		{0x3fff, []byte{0xff, 0x7f}},
		{0xffffffff, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.encoded, AppendLEB128(nil, tt.value))

		v, n, err := DecodeLEB128(append(tt.encoded, 'x'))
		require.NoError(t, err)
		assert.Equal(t, tt.value, v)
		assert.Equal(t, len(tt.encoded), n)
	}
}

func TestLEB128Errors(t *testing.T) {
	_, _, err := DecodeLEB128(nil)
	assert.Error(t, err)

	_, _, err = DecodeLEB128([]byte{0x80, 0x80})
	assert.Error(t, err)

	_, _, err = DecodeLEB128([]byte{0xff, 0xff, 0xff, 0xff, 0x1f})
	assert.Error(t, err)

	_, _, err = DecodeLEB128([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00})
	assert.Error(t, err)
}

func TestStripCollectionPrefix(t *testing.T) {
	key := AppendLEB128(nil, 0x88)
	key = append(key, "doc-1"...)

	cid, bare, err := StripCollectionPrefix(key)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x88), cid)
	assert.Equal(t, []byte("doc-1"), bare)
}
