package mastra

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mastra-ai/mastra-client-go/internal/request"
)

// Client talks to one Mastra-compatible server. It is safe for concurrent
// use; resource handles returned by its accessors share its transport and
// tool registry.
type Client struct {
	opts   clientOptions
	req    *request.Client
	tools  *ToolRegistry
	logger *slog.Logger
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...ClientOption) (*Client, error) {
	resolved := resolveOptions(opts)

	headers := resolved.headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	if resolved.apiKey != "" {
		headers.Set("Authorization", "Bearer "+resolved.apiKey)
	}

	retries := DefaultRetries
	if resolved.retriesSet {
		retries = resolved.retries
		if retries == 0 {
			retries = -1 // request.Config treats zero as "use default"
		}
	}

	req, err := request.New(request.Config{
		BaseURL:        baseURL,
		Headers:        headers,
		Retries:        retries,
		BackoffInitial: resolved.backoffInitial,
		BackoffMax:     resolved.backoffMax,
		HTTPClient:     resolved.httpClient,
		Logger:         resolved.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		opts:   resolved,
		req:    req,
		tools:  NewToolRegistry(),
		logger: resolved.logger,
	}, nil
}

// Tools returns the client's tool registry. Tools registered here are
// advertised to the server on streaming requests and executed locally when
// the model calls them.
func (c *Client) Tools() *ToolRegistry {
	return c.tools
}

// Agent returns a handle on the agent with the given id.
func (c *Client) Agent(agentID string) *Agent {
	return &Agent{client: c, id: agentID}
}

// MemoryThread returns a handle on a memory thread scoped to an agent.
func (c *Client) MemoryThread(threadID, agentID string) *MemoryThread {
	return &MemoryThread{client: c, id: threadID, agentID: agentID}
}

// Workflow returns a handle on the workflow with the given id.
func (c *Client) Workflow(workflowID string) *Workflow {
	return &Workflow{client: c, id: workflowID}
}

// Tool returns a handle on a server-side tool.
func (c *Client) Tool(toolID string) *ToolResource {
	return &ToolResource{client: c, id: toolID}
}

// getJSON performs a buffered GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.req.Do(ctx, request.Spec{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.JSON(out)
}

// postJSON performs a buffered POST with a JSON body and decodes the
// response into out when non-nil.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.req.Do(ctx, request.Spec{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.JSON(out)
}

// do performs a buffered request with an arbitrary method.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.req.Do(ctx, request.Spec{
		Method: method,
		Path:   path,
		Query:  query,
		Body:   body,
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.JSON(out)
}
