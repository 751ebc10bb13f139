package mastra

import (
	"io"
	"sync"

	"github.com/mastra-ai/mastra-client-go/internal/recordstream"
)

// RecordStream is an iterator over the records of a streamed exchange.
// Usage:
//
//	stream, err := client.Agent(id).Stream(ctx, params)
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next() {
//	    rec := stream.Current()
//	    // handle rec
//	}
//	if err := stream.Err(); err != nil {
//	    // handle error
//	}
//
// Records arrive in wire order across all recursive tool cycles of the
// exchange. Terminal failures (wire error records, transport errors, tool
// executor failures) surface through Err after Next returns false.
type RecordStream struct {
	records chan Record
	quit    chan struct{}
	once    sync.Once
	src     io.ReadCloser
	current Record
	err     error
	done    bool
}

// newRecordStream decodes src into records on a background goroutine.
func newRecordStream(src io.ReadCloser) *RecordStream {
	s := &RecordStream{
		records: make(chan Record, streamBufferSize),
		quit:    make(chan struct{}),
		src:     src,
	}
	go s.decode()
	return s
}

func (s *RecordStream) decode() {
	defer close(s.records)

	dec := recordstream.Decoder{}
	buf := make([]byte, 4096)
	for {
		n, readErr := s.src.Read(buf)
		if n > 0 {
			recs, decErr := dec.Feed(buf[:n])
			if decErr != nil {
				s.err = decErr
				return
			}
			if !s.emit(recs) {
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.err = readErr
			return
		}
	}
	if rec, ok := dec.Finish(); ok {
		s.emit([]recordstream.Record{rec})
	}
}

// emit delivers records to the iterator, giving up if the stream is closed.
func (s *RecordStream) emit(recs []recordstream.Record) bool {
	for _, rec := range recs {
		select {
		case s.records <- newRecord(rec):
		case <-s.quit:
			return false
		}
	}
	return true
}

// Next advances to the next record. It returns false when the stream is
// exhausted or a terminal error occurred.
func (s *RecordStream) Next() bool {
	if s.done {
		return false
	}
	rec, ok := <-s.records
	if !ok {
		s.done = true
		return false
	}
	s.current = rec
	return true
}

// Current returns the most recent record returned by Next.
func (s *RecordStream) Current() Record {
	return s.current
}

// Err returns the terminal error, if any. Valid after Next returns false.
func (s *RecordStream) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Close releases the underlying stream. It is safe to call at any time and
// unblocks a pending Next.
func (s *RecordStream) Close() error {
	s.once.Do(func() { close(s.quit) })
	return s.src.Close()
}
