// Package recordstream implements the wire framing used by the Mastra
// streaming endpoints: a sequence of UTF-8 JSON documents, each followed by
// an ASCII Record Separator byte. It provides an incremental decoder that
// tolerates records split across arbitrary chunk boundaries, a byte-level
// tee for feeding two independent consumers from one stream, and a
// single-owner sink writer shared across recursive request cycles.
package recordstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// RecordSeparator is the byte delimiting records on the wire (ASCII 0x1E).
const RecordSeparator byte = 0x1e

// DefaultMaxTailBytes bounds how much unterminated data the decoder will
// buffer before giving up on the stream.
const DefaultMaxTailBytes = 1 << 20

// ErrTailOverflow is returned by Feed when the carried tail fragment exceeds
// the configured maximum without ever parsing as a record.
var ErrTailOverflow = errors.New("recordstream: tail fragment exceeds maximum size")

// Record is one decoded unit of the framing protocol.
type Record struct {
	// Type is the record's self-described kind (the top-level "type" field).
	Type string
	// Raw is the complete JSON document the record was parsed from.
	Raw json.RawMessage
}

// decodeStatus is the three-way outcome of attempting to parse a segment.
// Keeping "incomplete" and "malformed" distinct is what lets the decoder
// drop segments that can never become valid without also dropping segments
// that are merely waiting for more bytes.
type decodeStatus int

const (
	decodeComplete decodeStatus = iota
	decodeIncomplete
	decodeMalformed
)

// tryDecode attempts to parse a segment as a record document. Records are
// JSON objects carrying a top-level "type" field; a segment holding any
// other JSON value (a bare string, number or array) is classified malformed
// and dropped like any other garbage frame.
func tryDecode(seg []byte) (Record, decodeStatus) {
	var env struct {
		Type string `json:"type"`
	}
	err := json.Unmarshal(seg, &env)
	if err == nil {
		raw := make(json.RawMessage, len(seg))
		copy(raw, seg)
		return Record{Type: env.Type, Raw: raw}, decodeComplete
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) && strings.Contains(syntaxErr.Error(), "unexpected end of JSON input") {
		// The parser ran off the end of the input: more bytes may complete it.
		return Record{}, decodeIncomplete
	}
	return Record{}, decodeMalformed
}

// Decoder incrementally decodes a record-framed byte stream. The zero value
// uses RecordSeparator and DefaultMaxTailBytes. A Decoder must not be used
// from multiple goroutines.
type Decoder struct {
	// Separator overrides the record separator byte. Zero means RecordSeparator.
	Separator byte
	// MaxTailBytes overrides the tail fragment bound. Zero means
	// DefaultMaxTailBytes; negative means unbounded.
	MaxTailBytes int

	tail    []byte
	dropped int
}

func (d *Decoder) sep() byte {
	if d.Separator == 0 {
		return RecordSeparator
	}
	return d.Separator
}

func (d *Decoder) maxTail() int {
	if d.MaxTailBytes == 0 {
		return DefaultMaxTailBytes
	}
	return d.MaxTailBytes
}

// Feed consumes one chunk of raw bytes and returns every record that became
// complete. Records are returned in arrival order. A trailing segment that
// does not yet parse is carried to the next Feed call; a separator-terminated
// segment that does not parse can never grow and is dropped.
func (d *Decoder) Feed(chunk []byte) ([]Record, error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	segments := bytes.Split(chunk, []byte{d.sep()})

	// The carried tail belongs to the first segment of this call only.
	if len(d.tail) > 0 {
		merged := make([]byte, 0, len(d.tail)+len(segments[0]))
		merged = append(merged, d.tail...)
		merged = append(merged, segments[0]...)
		segments[0] = merged
		d.tail = nil
	}

	var records []Record
	last := len(segments) - 1
	for i, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		rec, status := tryDecode(seg)
		switch status {
		case decodeComplete:
			records = append(records, rec)
		case decodeIncomplete:
			if i == last {
				d.tail = append([]byte(nil), seg...)
				if max := d.maxTail(); max > 0 && len(d.tail) > max {
					d.tail = nil
					d.dropped++
					return records, ErrTailOverflow
				}
			} else {
				// A separator followed this segment, so no further bytes can
				// ever complete it.
				d.dropped++
			}
		case decodeMalformed:
			d.dropped++
		}
	}
	return records, nil
}

// Finish signals end-of-stream. If a tail fragment remains it gets one final
// parse attempt; an unparseable tail is dropped, matching the upstream wire
// protocol's tolerance for truncated final records.
func (d *Decoder) Finish() (Record, bool) {
	if len(d.tail) == 0 {
		return Record{}, false
	}
	seg := d.tail
	d.tail = nil
	rec, status := tryDecode(seg)
	if status == decodeComplete {
		return rec, true
	}
	d.dropped++
	return Record{}, false
}

// Dropped reports how many segments were discarded as unparseable. The wire
// protocol tolerates this loss silently; the counter exists so callers can
// observe it.
func (d *Decoder) Dropped() int {
	return d.dropped
}
