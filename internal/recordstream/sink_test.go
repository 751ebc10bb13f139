package recordstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkWriterDeliversInOrder(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkWriter(&buf)

	for i := 0; i < 10; i++ {
		n, err := fmt.Fprintf(s, "chunk %d;", i)
		require.NoError(t, err)
		assert.Equal(t, len(fmt.Sprintf("chunk %d;", i)), n)
	}
	require.NoError(t, s.Close())

	assert.Equal(t, "chunk 0;chunk 1;chunk 2;chunk 3;chunk 4;chunk 5;chunk 6;chunk 7;chunk 8;chunk 9;", buf.String())
}

func TestSinkWriterConcurrentWriters(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := s.Write([]byte{byte('a' + i)})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	// Each writer's bytes all arrive; interleaving order is unspecified.
	assert.Len(t, buf.Bytes(), 800)
	counts := map[byte]int{}
	for _, c := range buf.Bytes() {
		counts[c]++
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, 100, counts[byte('a'+i)])
	}
}

func TestSinkWriterWriteAfterClose(t *testing.T) {
	s := NewSinkWriter(io.Discard)
	require.NoError(t, s.Close())

	_, err := s.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrSinkClosed)
}

func TestSinkWriterCloseIdempotent(t *testing.T) {
	s := NewSinkWriter(io.Discard)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.CloseWithError(errors.New("ignored after first close")))
}

func TestSinkWriterClosesPipeDestination(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewSinkWriter(pw)

	go func() {
		s.Write([]byte("data"))
		s.Close()
	}()

	got, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestSinkWriterCloseWithErrorPropagatesToPipeReader(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewSinkWriter(pw)
	cause := errors.New("upstream request failed")

	go s.CloseWithError(cause)

	_, err := io.ReadAll(pr)
	assert.ErrorIs(t, err, cause)
}

func TestSinkWriterSurfacesDestinationError(t *testing.T) {
	wantErr := errors.New("disk full")
	s := NewSinkWriter(&failingWriter{err: wantErr})
	defer s.Close()

	_, err := s.Write([]byte("x"))
	assert.ErrorIs(t, err, wantErr)
}

type failingWriter struct{ err error }

func (w *failingWriter) Write([]byte) (int, error) { return 0, w.err }
