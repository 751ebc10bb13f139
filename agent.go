package mastra

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/mastra-ai/mastra-client-go/internal/engine"
	"github.com/mastra-ai/mastra-client-go/internal/recordstream"
	"github.com/mastra-ai/mastra-client-go/internal/request"
	"github.com/mastra-ai/mastra-client-go/internal/usage"
)

// Agent is a handle on one server-side agent.
type Agent struct {
	client *Client
	id     string
}

// ID returns the agent's identifier.
func (a *Agent) ID() string {
	return a.id
}

// AgentDetails describes a server-side agent.
type AgentDetails struct {
	Name         string                     `json:"name"`
	Instructions string                     `json:"instructions"`
	Provider     string                     `json:"provider"`
	ModelID      string                     `json:"modelId"`
	Tools        map[string]json.RawMessage `json:"tools"`
}

// Details fetches the agent's configuration.
func (a *Agent) Details(ctx context.Context) (*AgentDetails, error) {
	var out AgentDetails
	if err := a.client.getJSON(ctx, "/api/agents/"+a.id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateParams are the inputs to a buffered or streamed agent call.
type GenerateParams struct {
	Messages   []Message       `json:"messages"`
	ThreadID   string          `json:"threadId,omitempty"`
	ResourceID string          `json:"resourceId,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	MaxSteps   int             `json:"maxSteps,omitempty"`
}

// StreamParams are the inputs to the streaming routes. Client tools
// registered on the Client are advertised automatically.
type StreamParams = GenerateParams

// GenerateResponse is the buffered result of a generate call.
type GenerateResponse struct {
	Text         string          `json:"text"`
	FinishReason string          `json:"finishReason"`
	Usage        UsageInfo       `json:"usage"`
	Raw          json.RawMessage `json:"-"`
}

// Generate performs a buffered call and returns the parsed result. Client
// tools are not executed on this route; use Stream or StreamVNext for
// exchanges that may call them.
func (a *Agent) Generate(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
	resp, err := a.client.req.Do(ctx, request.Spec{
		Method: http.MethodPost,
		Path:   "/api/agents/" + a.id + "/generate",
		Body:   params,
	})
	if err != nil {
		return nil, err
	}
	out := &GenerateResponse{Raw: resp.Body}
	if err := resp.JSON(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stream starts a streamed exchange on the legacy framed route. The
// returned RecordStream yields every record of the exchange, spanning any
// recursive client-tool cycles.
func (a *Agent) Stream(ctx context.Context, params StreamParams) (*RecordStream, error) {
	return a.processStream(ctx, "/api/agents/"+a.id+"/stream", params, engine.Legacy)
}

// StreamVNext starts a streamed exchange on the chunk-based route.
func (a *Agent) StreamVNext(ctx context.Context, params StreamParams) (*RecordStream, error) {
	return a.processStream(ctx, "/api/agents/"+a.id+"/streamVNext", params, engine.VNext)
}

// processStream wires one streamed exchange: the engine tees each response
// into a branch forwarded to the stream's pipe and a branch it decodes for
// control decisions, re-issuing requests for client-tool cycles. The
// RecordStream decodes the forwarded bytes independently.
func (a *Agent) processStream(ctx context.Context, route string, params StreamParams, vocab engine.Vocabulary) (*RecordStream, error) {
	body, err := json.Marshal(a.streamBody(params))
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	sink := recordstream.NewSinkWriter(pw)

	cfg := engine.LoopConfig{
		Requester:  &streamRequester{req: a.client.req},
		Sink:       sink,
		Route:      route,
		Body:       body,
		Vocab:      vocab,
		ThreadID:   params.ThreadID,
		ResourceID: params.ResourceID,
		MaxSteps:   a.resolveMaxSteps(params),
		Logger:     a.client.logger,
	}
	if len(a.client.tools.Names()) > 0 {
		cfg.Tools = &toolExecutorAdapter{registry: a.client.tools}
	}
	if !a.client.opts.maxBudget.IsZero() {
		cfg.Model = a.id
		cfg.Usage = usage.NewTracker(a.client.opts.maxBudget, toUsagePricing(a.client.opts.pricing))
	}

	go func() {
		// Run closes the sink on every exit path, which closes pw and ends
		// the RecordStream with the loop's error, if any.
		_ = engine.Run(ctx, cfg)
	}()

	return newRecordStream(pr), nil
}

// streamBody augments the caller's params with the advertised client tools.
func (a *Agent) streamBody(params StreamParams) map[string]any {
	body := map[string]any{"messages": params.Messages}
	if params.ThreadID != "" {
		body["threadId"] = params.ThreadID
	}
	if params.ResourceID != "" {
		body["resourceId"] = params.ResourceID
	}
	if len(params.Output) > 0 {
		body["output"] = params.Output
	}
	if defs := a.client.tools.Definitions(); defs != nil {
		body["clientTools"] = defs
	}
	return body
}

func (a *Agent) resolveMaxSteps(params StreamParams) int {
	if params.MaxSteps != 0 {
		return params.MaxSteps
	}
	return a.client.opts.maxSteps
}

// streamRequester adapts the request engine to engine.Requester.
type streamRequester struct {
	req *request.Client
}

func (r *streamRequester) Stream(ctx context.Context, route string, body []byte) (io.ReadCloser, error) {
	resp, err := r.req.Do(ctx, request.Spec{
		Method: http.MethodPost,
		Path:   route,
		// Body rather than RawBody so retried attempts resend the payload.
		Body:   json.RawMessage(body),
		Stream: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Stream, nil
}

// toolExecutorAdapter wraps ToolRegistry to implement engine.ToolExecutor.
type toolExecutorAdapter struct {
	registry *ToolRegistry
}

func (t *toolExecutorAdapter) Has(name string) bool {
	return t.registry.Has(name)
}

func (t *toolExecutorAdapter) Execute(ctx context.Context, name string, args json.RawMessage, tc engine.ToolContext) (any, error) {
	return t.registry.Execute(ctx, name, args, ToolContext{
		Messages:   tc.Messages,
		ThreadID:   tc.ThreadID,
		ResourceID: tc.ResourceID,
		Suspend:    tc.Suspend,
	})
}

func toUsagePricing(pricing map[string]ModelPricing) map[string]usage.Pricing {
	if pricing == nil {
		return nil
	}
	out := make(map[string]usage.Pricing, len(pricing))
	for model, p := range pricing {
		out[model] = usage.Pricing{
			InputPerMTok:  p.InputPerMTok,
			OutputPerMTok: p.OutputPerMTok,
		}
	}
	return out
}
