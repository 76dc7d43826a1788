package pool

import (
	"bytes"
	"sync"
)

// maxPooledBuffer keeps a single 4K frame thumbnail from pinning memory in the pool
const maxPooledBuffer = 4 << 20

// BufferPool provides a pool of reusable byte buffers for image encoding
var BufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer returns an empty buffer from the pool
func GetBuffer() *bytes.Buffer {
	return BufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a buffer to the pool after resetting it. Oversized buffers are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	BufferPool.Put(buf)
}

// Detach copies the buffer contents so the buffer can go back to the pool
func Detach(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
