package memd

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/pior/memd/mcbp"
)

const (
	// maxSnappyExpansion bounds decoded/encoded size. The densest snappy
	// element is a 3-byte copy producing 64 bytes.
	maxSnappyExpansion = 32

	// maxPooledBufferSize is the largest scratch buffer kept for reuse.
	maxPooledBufferSize = 1 << 20
)

var ErrInflatedTooLarge = errors.New("memd: declared inflated length too large")

// Decompressor inflates snappy-compressed response values. The returned
// release func must be called once the value is no longer referenced.
type Decompressor interface {
	Decompress(value []byte) ([]byte, func(), error)
}

// SnappyDecompressor inflates into pooled scratch buffers.
type SnappyDecompressor struct {
	scratch *byteBufferPool
}

var _ Decompressor = (*SnappyDecompressor)(nil)

func NewSnappyDecompressor() *SnappyDecompressor {
	return &SnappyDecompressor{scratch: newByteBufferPool(4096)}
}

func (d *SnappyDecompressor) Decompress(value []byte) ([]byte, func(), error) {
	n, err := snappy.DecodedLen(value)
	if err != nil {
		return nil, nil, err
	}
	if n > mcbp.MaxBodyLen || n > len(value)*maxSnappyExpansion {
		return nil, nil, fmt.Errorf("%w: %d bytes from %d compressed", ErrInflatedTooLarge, n, len(value))
	}

	buf := d.scratch.Get()
	buf.Grow(n)
	out, err := snappy.Decode(buf.Bytes()[:n], value)
	if err != nil {
		d.scratch.Put(buf)
		return nil, nil, err
	}
	return out, func() { d.scratch.Put(buf) }, nil
}

type byteBufferPool struct {
	pool sync.Pool
}

func newByteBufferPool(initialSize int) *byteBufferPool {
	return &byteBufferPool{
		pool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, initialSize))
			},
		},
	}
}

func (p *byteBufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put recycles buf unless it grew past maxPooledBufferSize.
func (p *byteBufferPool) Put(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBufferSize {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}
