package mastra

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// StorageThread is a server-side memory thread.
type StorageThread struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	ResourceID string         `json:"resourceId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// CreateThreadParams are the inputs to CreateMemoryThread.
type CreateThreadParams struct {
	Title      string         `json:"title,omitempty"`
	ThreadID   string         `json:"threadId,omitempty"`
	ResourceID string         `json:"resourceId"`
	AgentID    string         `json:"agentId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CreateMemoryThread creates a new memory thread for an agent.
func (c *Client) CreateMemoryThread(ctx context.Context, params CreateThreadParams) (*StorageThread, error) {
	var out StorageThread
	query := url.Values{"agentId": {params.AgentID}}
	if err := c.do(ctx, http.MethodPost, "/api/memory/threads", query, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MemoryThreads lists the memory threads of a resource.
func (c *Client) MemoryThreads(ctx context.Context, resourceID, agentID string) ([]StorageThread, error) {
	var out []StorageThread
	query := url.Values{"resourceid": {resourceID}, "agentId": {agentID}}
	if err := c.getJSON(ctx, "/api/memory/threads", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveMessages persists messages to agent memory.
func (c *Client) SaveMessages(ctx context.Context, agentID string, messages []Message) error {
	query := url.Values{"agentId": {agentID}}
	body := map[string]any{"messages": messages}
	return c.do(ctx, http.MethodPost, "/api/memory/save-messages", query, body, nil)
}

// MemoryThread is a handle on one memory thread.
type MemoryThread struct {
	client  *Client
	id      string
	agentID string
}

// Get fetches the thread.
func (t *MemoryThread) Get(ctx context.Context) (*StorageThread, error) {
	var out StorageThread
	if err := t.client.getJSON(ctx, "/api/memory/threads/"+t.id, t.query(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateThreadParams are the inputs to MemoryThread.Update.
type UpdateThreadParams struct {
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Update modifies the thread's title or metadata.
func (t *MemoryThread) Update(ctx context.Context, params UpdateThreadParams) (*StorageThread, error) {
	var out StorageThread
	if err := t.client.do(ctx, http.MethodPatch, "/api/memory/threads/"+t.id, t.query(), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the thread and its messages.
func (t *MemoryThread) Delete(ctx context.Context) error {
	return t.client.do(ctx, http.MethodDelete, "/api/memory/threads/"+t.id, t.query(), nil, nil)
}

// SaveMessages persists messages to this thread's agent memory.
func (t *MemoryThread) SaveMessages(ctx context.Context, messages []Message) error {
	return t.client.SaveMessages(ctx, t.agentID, messages)
}

// GetMessagesParams filter a MemoryThread.Messages call.
type GetMessagesParams struct {
	// Limit caps the number of returned messages. Zero means server default.
	Limit int
}

// ThreadMessages is the paged result of a Messages call.
type ThreadMessages struct {
	Messages []Message `json:"messages"`
}

// Messages fetches the thread's message history.
func (t *MemoryThread) Messages(ctx context.Context, params GetMessagesParams) (*ThreadMessages, error) {
	query := t.query()
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	var out ThreadMessages
	if err := t.client.getJSON(ctx, "/api/memory/threads/"+t.id+"/messages", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *MemoryThread) query() url.Values {
	return url.Values{"agentId": {t.agentID}}
}
