package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrResultAlreadySet is returned when a tool invocation's result is
// assigned a second time.
var ErrResultAlreadySet = errors.New("mastra: tool invocation result already set")

// ToolInvocation is one tool call decoded from the stream, referenced by id
// across recursive request cycles until the exchange finishes.
type ToolInvocation struct {
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
	Step       int

	result    any
	resultSet bool
}

// SetResult records the executor's result. It may be called at most once.
func (inv *ToolInvocation) SetResult(v any) error {
	if inv.resultSet {
		return ErrResultAlreadySet
	}
	inv.result = v
	inv.resultSet = true
	return nil
}

// Result returns the recorded result and whether one has been set.
func (inv *ToolInvocation) Result() (any, bool) {
	return inv.result, inv.resultSet
}

// parseInvocation extracts a ToolInvocation from a tool-call record.
func parseInvocation(raw json.RawMessage, vocab Vocabulary, step int) (*ToolInvocation, error) {
	id := gjson.GetBytes(raw, vocab.ToolCallIDPath).String()
	name := gjson.GetBytes(raw, vocab.ToolNamePath).String()
	if name == "" {
		return nil, fmt.Errorf("mastra: tool-call record missing tool name")
	}
	var args json.RawMessage
	if a := gjson.GetBytes(raw, vocab.ToolArgsPath); a.Exists() {
		args = json.RawMessage(a.Raw)
	} else {
		args = json.RawMessage("{}")
	}
	return &ToolInvocation{
		ToolCallID: id,
		ToolName:   name,
		Args:       args,
		Step:       step,
	}, nil
}
