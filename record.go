package mastra

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/mastra-ai/mastra-client-go/internal/recordstream"
)

// Record types emitted by the streaming routes. The legacy and vNext routes
// share these names; the vNext route nests record fields under a payload
// object (see Record.Payload).
const (
	RecordStart     = "start"
	RecordStepStart = "step-start"
	RecordTextDelta = "text-delta"
	RecordToolCall  = "tool-call"
	RecordFinish    = "finish"
	RecordError     = "error"
)

// Record is one decoded unit of the streaming wire protocol.
type Record struct {
	// Type is the record's self-described kind.
	Type string
	// Payload is the record's payload object, when it has one.
	Payload json.RawMessage
	// Raw is the complete JSON document the record was decoded from.
	Raw json.RawMessage
}

// Get reads a field from the record document by gjson path.
func (r Record) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Raw, path)
}

// newRecord converts a decoded wire record into the public type.
func newRecord(rec recordstream.Record) Record {
	out := Record{Type: rec.Type, Raw: rec.Raw}
	if p := gjson.GetBytes(rec.Raw, "payload"); p.Exists() {
		out.Payload = json.RawMessage(p.Raw)
	}
	return out
}
