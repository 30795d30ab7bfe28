// Package pool recycles the scratch buffers stream-oriented codecs write
// into.
package pool

import (
	"bytes"
	"sync"
)

// BufferPool hands out reset buffers with at least size bytes of capacity.
// Buffers that grew past twice that size are dropped on Put so one huge block
// does not pin memory for the life of the process.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool whose new buffers start with size bytes of
// capacity.
func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, size))
	}
	return bp
}

// Size is the initial capacity of new buffers.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get returns an empty buffer from the pool, allocating one if none is
// free.
func (bp *BufferPool) Get() *bytes.Buffer {
	buf := bp.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns buf to the pool. The caller must not use buf afterwards.
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > bp.size*2 {
		return
	}
	buf.Reset()
	bp.pool.Put(buf)
}

// Copy returns the contents of buf in a slice the caller owns, so buf can go
// back to the pool.
func (bp *BufferPool) Copy(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
