package recordstream

import (
	"encoding/json"
	"io"
)

// Encoder writes record-framed JSON documents to an underlying writer.
// It is the inverse of Decoder and is used by test fixtures and fakes.
type Encoder struct {
	W io.Writer
	// Separator overrides the record separator byte. Zero means RecordSeparator.
	Separator byte
}

// Encode marshals v and writes it followed by the separator byte.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return e.EncodeRaw(data)
}

// EncodeRaw writes an already-serialized JSON document followed by the
// separator byte.
func (e *Encoder) EncodeRaw(doc []byte) error {
	sep := e.Separator
	if sep == 0 {
		sep = RecordSeparator
	}
	if _, err := e.W.Write(doc); err != nil {
		return err
	}
	_, err := e.W.Write([]byte{sep})
	return err
}

// Encode frames a list of JSON documents with the given separator. A zero
// separator means RecordSeparator.
func Encode(docs [][]byte, sep byte) []byte {
	if sep == 0 {
		sep = RecordSeparator
	}
	var out []byte
	for _, doc := range docs {
		out = append(out, doc...)
		out = append(out, sep)
	}
	return out
}
