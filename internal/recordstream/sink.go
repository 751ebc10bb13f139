package recordstream

import (
	"errors"
	"io"
	"sync"
)

// ErrSinkClosed is returned by Write after the sink has been closed.
var ErrSinkClosed = errors.New("recordstream: sink closed")

// SinkWriter serializes writes to a shared destination through a single
// owner goroutine. Stream branches from successive recursive request cycles
// all write through the same SinkWriter, so the destination never sees two
// concurrent writers and never needs per-write lock acquisition. Close is
// idempotent and takes effect only after every accepted write has been
// delivered.
type SinkWriter struct {
	reqs chan sinkRequest

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error

	dst io.Writer
}

type sinkRequest struct {
	p    []byte
	done chan sinkResult
}

type sinkResult struct {
	n   int
	err error
}

// NewSinkWriter starts the owner goroutine for dst and returns the writer.
func NewSinkWriter(dst io.Writer) *SinkWriter {
	s := &SinkWriter{
		reqs: make(chan sinkRequest),
		done: make(chan struct{}),
		dst:  dst,
	}
	go s.run()
	return s
}

func (s *SinkWriter) run() {
	for req := range s.reqs {
		n, err := s.dst.Write(req.p)
		req.done <- sinkResult{n: n, err: err}
	}
	s.closeErr = s.closeDst(s.closeErr)
	close(s.done)
}

func (s *SinkWriter) closeDst(cause error) error {
	if cause != nil {
		if cw, ok := s.dst.(interface{ CloseWithError(error) error }); ok {
			return cw.CloseWithError(cause)
		}
	}
	if c, ok := s.dst.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Write hands the buffer to the owner goroutine and waits for delivery.
// Safe to call from any goroutine; writes are applied in acceptance order.
func (s *SinkWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSinkClosed
	}
	req := sinkRequest{p: p, done: make(chan sinkResult, 1)}
	s.reqs <- req
	s.mu.Unlock()

	res := <-req.done
	return res.n, res.err
}

// Close stops accepting writes, waits for in-flight writes to drain, then
// closes the destination if it is an io.Closer. Subsequent calls are no-ops
// returning the first close result.
func (s *SinkWriter) Close() error {
	return s.CloseWithError(nil)
}

// CloseWithError behaves like Close but, when the destination supports
// CloseWithError (e.g. an io.PipeWriter), propagates err to the reading side.
func (s *SinkWriter) CloseWithError(err error) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.closeErr = err
		close(s.reqs)
		s.mu.Unlock()
	})
	<-s.done
	return s.closeErr
}
