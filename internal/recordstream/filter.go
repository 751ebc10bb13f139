package recordstream

import (
	"bytes"
	"io"
)

// FilterWriter forwards a record-framed byte stream to W, dropping whole
// records for which Drop returns true. It is used on the forwarded branch of
// a tee to strip end-of-stream sentinel records, so a sink that will receive
// more data from a follow-up request cycle is not prematurely signaled done.
// Bytes for records that are kept pass through unmodified.
type FilterWriter struct {
	W io.Writer
	// Separator overrides the record separator byte. Zero means RecordSeparator.
	Separator byte
	// Drop reports whether a record document should be withheld from W.
	// Nil keeps everything.
	Drop func(doc []byte) bool

	tail []byte
}

func (f *FilterWriter) sep() byte {
	if f.Separator == 0 {
		return RecordSeparator
	}
	return f.Separator
}

// Write consumes p, forwarding every completed record that survives Drop.
// An unterminated trailing segment is held until more bytes arrive or Flush
// is called. On success the full length of p is reported as written.
func (f *FilterWriter) Write(p []byte) (int, error) {
	data := p
	if len(f.tail) > 0 {
		data = append(f.tail, p...)
		f.tail = nil
	}

	sep := f.sep()
	segments := bytes.Split(data, []byte{sep})
	last := len(segments) - 1
	for i, seg := range segments {
		if i == last {
			if len(seg) > 0 {
				f.tail = append([]byte(nil), seg...)
			}
			break
		}
		if f.Drop != nil && f.Drop(seg) {
			continue
		}
		framed := make([]byte, 0, len(seg)+1)
		framed = append(framed, seg...)
		framed = append(framed, sep)
		if _, err := f.W.Write(framed); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush forwards any held trailing segment, applying Drop to it as well.
// The segment is framed with a trailing separator even when the source
// stream omitted one: the writer cannot know whether more data will reach
// the same destination later, and an unterminated record followed by
// another write would fuse into one undecodable segment.
func (f *FilterWriter) Flush() error {
	if len(f.tail) == 0 {
		return nil
	}
	seg := f.tail
	f.tail = nil
	if f.Drop != nil && f.Drop(seg) {
		return nil
	}
	framed := make([]byte, 0, len(seg)+1)
	framed = append(framed, seg...)
	framed = append(framed, f.sep())
	_, err := f.W.Write(framed)
	return err
}
