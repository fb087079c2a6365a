package concurrency

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// DefaultInitialBufferSize is the capacity of freshly allocated buffers.
	// JSON-RPC responses are mostly small; aggregate3 batches are the large case.
	DefaultInitialBufferSize = 32 * 1024

	// DefaultMaxBufferSize caps the capacity of buffers returned to the pool.
	DefaultMaxBufferSize = 4 * 1024 * 1024

	// DefaultMaxReadSize caps the size of a single response body.
	DefaultMaxReadSize = 32 * 1024 * 1024
)

// ErrReadLimitExceeded is returned when a body is larger than the pool's read limit.
// A truncated JSON body is never useful, so it is reported instead of silently cut.
var ErrReadLimitExceeded = errors.New("body exceeds read limit")

// BufferPool manages reusable byte buffers to reduce GC pressure.
// Uses sync.Pool for buffer recycling with size limits.
type BufferPool struct {
	pool          sync.Pool
	maxReaderSize int64
}

func NewBufferPool(maxReaderSize int64) *BufferPool {
	if maxReaderSize <= 0 {
		maxReaderSize = DefaultMaxReadSize
	}

	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, DefaultInitialBufferSize))
			},
		},
		maxReaderSize: maxReaderSize,
	}
}

func (bp *BufferPool) getBuffer() *bytes.Buffer {
	buf := bp.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns a buffer to the pool.
// Oversized buffers are dropped to avoid memory bloat.
func (bp *BufferPool) putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > DefaultMaxBufferSize {
		return
	}
	bp.pool.Put(buf)
}

// ReadWithBuffer reads all of r using a pooled buffer and returns an independent copy.
func (bp *BufferPool) ReadWithBuffer(r io.Reader) ([]byte, error) {
	buf := bp.getBuffer()
	defer bp.putBuffer(buf)

	// Read one byte past the limit to detect oversized bodies.
	n, err := buf.ReadFrom(io.LimitReader(r, bp.maxReaderSize+1))
	if err != nil {
		return nil, err
	}
	if n > bp.maxReaderSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrReadLimitExceeded, bp.maxReaderSize)
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
