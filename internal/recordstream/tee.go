package recordstream

import (
	"errors"
	"io"
	"sync"
)

// ErrBranchClosed is returned when reading from a tee branch after closing it.
var ErrBranchClosed = errors.New("recordstream: tee branch closed")

// teeBufSize is the read size used by the tee pump.
const teeBufSize = 4 << 10

// Tee duplicates src into two independently-paced branches. Every byte read
// from src is delivered to both branches in order. A slow branch never blocks
// the other: chunks are queued per branch until read. Closing a branch
// discards its queued and future bytes without disturbing the other branch.
// When src is exhausted (or errors), both branches observe the same terminal
// error after draining their queues. The pump goroutine exits once src does.
func Tee(src io.Reader) (io.ReadCloser, io.ReadCloser) {
	a := newTeeBranch()
	b := newTeeBranch()

	go func() {
		buf := make([]byte, teeBufSize)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				a.push(chunk)
				b.push(chunk)
			}
			if err != nil {
				a.finish(err)
				b.finish(err)
				return
			}
		}
	}()

	return a, b
}

// teeBranch is one side of a Tee: an unbounded FIFO of byte chunks with a
// condition variable coordinating the pump and the reader.
type teeBranch struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	cur    []byte
	err    error // terminal error from the pump, delivered after the queue drains
	closed bool
}

func newTeeBranch() *teeBranch {
	b := &teeBranch{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// push appends a chunk to the branch queue. Chunks pushed after Close are
// discarded.
func (b *teeBranch) push(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.cond.Signal()
}

// finish records the pump's terminal error (io.EOF on clean exhaustion).
func (b *teeBranch) finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
	b.cond.Signal()
}

func (b *teeBranch) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.cur) == 0 {
		if b.closed {
			return 0, ErrBranchClosed
		}
		if len(b.chunks) > 0 {
			b.cur = b.chunks[0]
			b.chunks = b.chunks[1:]
			continue
		}
		if b.err != nil {
			return 0, b.err
		}
		b.cond.Wait()
	}

	n := copy(p, b.cur)
	b.cur = b.cur[n:]
	return n, nil
}

// Close releases the branch. Queued bytes are discarded and subsequent reads
// fail with ErrBranchClosed. The other branch and the pump are unaffected.
func (b *teeBranch) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.chunks = nil
	b.cur = nil
	b.cond.Broadcast()
	return nil
}
