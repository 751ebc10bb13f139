package mastra

import "encoding/json"

// Role tags an entry in the conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the append-only conversation history threaded
// through an exchange. Content is either a plain string or a slice of parts
// (TextPart, ToolCallPart, ToolResultPart).
type Message struct {
	Role    Role `json:"role"`
	Content any  `json:"content"`
}

// TextPart is a text segment of a structured message content.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallPart records a model-requested tool call inside an assistant
// message.
type ToolCallPart struct {
	Type       string          `json:"type"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

// ToolResultPart carries a tool execution result inside a tool message.
type ToolResultPart struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Result     any    `json:"result"`
}

// UserMessage builds a plain-text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds a plain-text assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// SystemMessage builds a plain-text system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UsageInfo reports token consumption as carried by finish records.
type UsageInfo struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}
