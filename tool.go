package mastra

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mastra-ai/mastra-client-go/internal/schema"
)

// ToolContext is passed to client tool executors alongside the decoded
// arguments.
type ToolContext struct {
	// Messages is the message history of the request that produced the call.
	Messages json.RawMessage
	// ThreadID and ResourceID identify the conversation, when set on the
	// originating request.
	ThreadID   string
	ResourceID string
	// Suspend is a hook for pausing the exchange; client-side execution
	// never suspends, so calling it is a no-op.
	Suspend func(payload any) error
}

// ClientTool is the generic interface for tools executed on the client. The
// type parameter T defines the input struct deserialized from the model's
// call arguments; its JSON Schema is advertised to the server.
type ClientTool[T any] interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input T, tc ToolContext) (any, error)
}

// ToolDefinition is the wire shape a registered tool is advertised with.
type ToolDefinition struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// toolEntry is the type-erased wrapper stored in the registry.
type toolEntry struct {
	name        string
	description string
	inputSchema json.RawMessage
	execute     func(ctx context.Context, raw json.RawMessage, tc ToolContext) (any, error)
}

// ToolRegistry manages client tools. It is concurrent-safe.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*toolEntry
	order []string // preserve registration order
}

// NewToolRegistry creates a new empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*toolEntry),
	}
}

// RegisterTool registers a generic client tool into the registry.
// The input type T is used to auto-generate the advertised JSON Schema.
func RegisterTool[T any](r *ToolRegistry, tool ClientTool[T]) {
	s, err := schema.GenerateJSON[T]()
	if err != nil {
		s = json.RawMessage(`{"type":"object"}`)
	}
	entry := &toolEntry{
		name:        tool.Name(),
		description: tool.Description(),
		inputSchema: s,
		execute: func(ctx context.Context, raw json.RawMessage, tc ToolContext) (any, error) {
			var input T
			if err := json.Unmarshal(raw, &input); err != nil {
				return nil, fmt.Errorf("mastra: tool %q: invalid input: %w", tool.Name(), err)
			}
			return tool.Execute(ctx, input, tc)
		},
	}
	r.add(entry)
}

// RegisterRaw registers a tool with a pre-built schema and execute function,
// for dynamic tool sources that don't use the generic ClientTool interface.
func (r *ToolRegistry) RegisterRaw(
	name, description string,
	inputSchema json.RawMessage,
	execute func(ctx context.Context, raw json.RawMessage, tc ToolContext) (any, error),
) {
	r.add(&toolEntry{
		name:        name,
		description: description,
		inputSchema: inputSchema,
		execute:     execute,
	})
}

func (r *ToolRegistry) add(entry *toolEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[entry.name]; !exists {
		r.order = append(r.order, entry.name)
	}
	r.tools[entry.name] = entry
}

// Has reports whether a tool with the given name is registered.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Execute runs a tool by name with the given raw JSON arguments.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage, tc ToolContext) (any, error) {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mastra: tool not found: %s", name)
	}
	return entry.execute(ctx, args, tc)
}

// Definitions returns the registered tools in the wire shape sent to the
// server, keyed by name.
func (r *ToolRegistry) Definitions() map[string]ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tools) == 0 {
		return nil
	}
	defs := make(map[string]ToolDefinition, len(r.tools))
	for _, name := range r.order {
		entry := r.tools[name]
		defs[name] = ToolDefinition{
			ID:          entry.name,
			Description: entry.description,
			InputSchema: entry.inputSchema,
		}
	}
	return defs
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// ToolResource is a handle on a server-side tool.
type ToolResource struct {
	client *Client
	id     string
}

// ToolDetails describes a server-side tool.
type ToolDetails struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Details fetches the tool's description and schema.
func (t *ToolResource) Details(ctx context.Context) (*ToolDetails, error) {
	var out ToolDetails
	if err := t.client.getJSON(ctx, "/api/tools/"+t.id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute runs the tool on the server with the given arguments.
func (t *ToolResource) Execute(ctx context.Context, args any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := t.client.postJSON(ctx, "/api/tools/"+t.id+"/execute", map[string]any{"data": args}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
