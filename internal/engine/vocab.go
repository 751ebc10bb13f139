package engine

// Vocabulary names the record types and payload locations of one streaming
// route. The legacy framed route and the newer chunk route share the same
// control structure; only the vocabulary differs.
type Vocabulary struct {
	TextDelta string
	ToolCall  string
	Finish    string
	Error     string

	// gjson paths into the corresponding record documents.
	TextDeltaPath    string
	ToolCallIDPath   string
	ToolNamePath     string
	ToolArgsPath     string
	FinishReasonPath string
	UsagePath        string
	ErrorPath        string

	// ReasonToolCalls is the finish reason signaling that a locally-registered
	// tool must run before the exchange can continue.
	ReasonToolCalls string

	// Terminator is the non-record sentinel token the server emits at the end
	// of each response. It is stripped from the forwarded branch so a sink fed
	// by multiple recursive cycles is not prematurely signaled done.
	Terminator []byte
}

// Legacy is the vocabulary of the original framed streaming route.
var Legacy = Vocabulary{
	TextDelta:        "text-delta",
	ToolCall:         "tool-call",
	Finish:           "finish",
	Error:            "error",
	TextDeltaPath:    "textDelta",
	ToolCallIDPath:   "toolCallId",
	ToolNamePath:     "toolName",
	ToolArgsPath:     "args",
	FinishReasonPath: "finishReason",
	UsagePath:        "usage",
	ErrorPath:        "error",
	ReasonToolCalls:  "tool-calls",
	Terminator:       []byte("[DONE]"),
}

// VNext is the vocabulary of the chunk-based streaming route, where every
// record wraps its fields in a payload object.
var VNext = Vocabulary{
	TextDelta:        "text-delta",
	ToolCall:         "tool-call",
	Finish:           "finish",
	Error:            "error",
	TextDeltaPath:    "payload.text",
	ToolCallIDPath:   "payload.toolCallId",
	ToolNamePath:     "payload.toolName",
	ToolArgsPath:     "payload.args",
	FinishReasonPath: "payload.stepResult.reason",
	UsagePath:        "payload.output.usage",
	ErrorPath:        "payload.error",
	ReasonToolCalls:  "tool-calls",
	Terminator:       []byte("[DONE]"),
}
