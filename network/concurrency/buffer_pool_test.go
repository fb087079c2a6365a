package concurrency

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type errorReader struct {
	err error
}

func (r *errorReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestNewBufferPool(t *testing.T) {
	require.Equal(t, int64(1024), NewBufferPool(1024).maxReaderSize)
	require.Equal(t, int64(DefaultMaxReadSize), NewBufferPool(0).maxReaderSize)
}

func TestBufferPoolPutBuffer(t *testing.T) {
	bp := NewBufferPool(DefaultMaxReadSize)

	t.Run("reused buffer is reset", func(t *testing.T) {
		buf := bp.getBuffer()
		buf.WriteString("test data")
		bp.putBuffer(buf)

		require.Equal(t, 0, bp.getBuffer().Len())
	})

	t.Run("does not pool oversized buffers", func(t *testing.T) {
		bp.putBuffer(bytes.NewBuffer(make([]byte, 0, DefaultMaxBufferSize+1)))

		newBuf := bp.getBuffer()
		require.NotEqual(t, DefaultMaxBufferSize+1, newBuf.Cap())
	})
}

func TestBufferPoolReadWithBuffer(t *testing.T) {
	bp := NewBufferPool(DefaultMaxReadSize)

	t.Run("reads small data", func(t *testing.T) {
		data, err := bp.ReadWithBuffer(strings.NewReader(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
		require.NoError(t, err)
		require.Equal(t, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`, string(data))
	})

	t.Run("reads data larger than the initial buffer", func(t *testing.T) {
		testData := strings.Repeat("x", 3*DefaultInitialBufferSize)

		data, err := bp.ReadWithBuffer(strings.NewReader(testData))
		require.NoError(t, err)
		require.Equal(t, testData, string(data))
	})

	t.Run("reads data exactly at the limit", func(t *testing.T) {
		data, err := NewBufferPool(10).ReadWithBuffer(strings.NewReader("0123456789"))
		require.NoError(t, err)
		require.Len(t, data, 10)
	})

	t.Run("rejects data over the limit", func(t *testing.T) {
		data, err := NewBufferPool(10).ReadWithBuffer(strings.NewReader("0123456789a"))
		require.True(t, errors.Is(err, ErrReadLimitExceeded))
		require.Nil(t, data)
	})

	t.Run("handles empty reader", func(t *testing.T) {
		data, err := bp.ReadWithBuffer(strings.NewReader(""))
		require.NoError(t, err)
		require.Empty(t, data)
	})

	t.Run("handles reader error", func(t *testing.T) {
		data, err := bp.ReadWithBuffer(&errorReader{err: io.ErrUnexpectedEOF})
		require.Equal(t, io.ErrUnexpectedEOF, err)
		require.Nil(t, data)
	})
}

func TestBufferPoolConcurrentReads(t *testing.T) {
	bp := NewBufferPool(DefaultMaxReadSize)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := bp.ReadWithBuffer(strings.NewReader("concurrent test data"))
			require.NoError(t, err)
			require.Equal(t, "concurrent test data", string(data))
		}()
	}
	wg.Wait()
}
