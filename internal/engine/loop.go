// Package engine drives the recursive tool-call loop over a record-framed
// stream: it tees each response into a forwarded branch (written to a shared
// sink) and a decoded branch, watches the decoded records for a finish
// signaling local tool execution, runs the matching tool, and re-issues the
// request with extended message history into the same sink until the
// exchange completes.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mastra-ai/mastra-client-go/internal/recordstream"
	"github.com/mastra-ai/mastra-client-go/internal/usage"
)

// DefaultMaxSteps bounds how many recursive tool cycles one exchange may run.
const DefaultMaxSteps = 5

// ErrBudgetExhausted is returned when the usage tracker's cost cap is hit
// before a follow-up request would be issued.
var ErrBudgetExhausted = errors.New("mastra: budget exhausted")

// Requester issues one streaming request. Production code adapts
// internal/request; tests pass a mock.
type Requester interface {
	Stream(ctx context.Context, route string, body []byte) (io.ReadCloser, error)
}

// ToolContext is passed to tool executors alongside the call arguments.
type ToolContext struct {
	// Messages is the message history of the request that produced the call.
	Messages json.RawMessage
	ThreadID   string
	ResourceID string
	// Suspend is a hook for pausing the exchange. The client never suspends,
	// so it is a no-op, but executors may call it unconditionally.
	Suspend func(payload any) error
}

// ToolExecutor resolves and runs locally-registered tools.
type ToolExecutor interface {
	Has(name string) bool
	Execute(ctx context.Context, name string, args json.RawMessage, tc ToolContext) (any, error)
}

// WireError is an explicit error record received from the stream. It is
// terminal: the loop surfaces it instead of continuing.
type WireError struct {
	Message string
	Raw     json.RawMessage
}

func (e *WireError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("mastra: stream error: %s", e.Message)
	}
	return "mastra: stream error"
}

// LoopConfig holds everything one streamed exchange needs.
type LoopConfig struct {
	Requester Requester
	// Tools may be nil when no client tools are registered.
	Tools ToolExecutor
	// Sink receives the forwarded raw bytes of every cycle. The loop owns its
	// lifecycle and closes it exactly once, after the last cycle.
	Sink *recordstream.SinkWriter
	// Route is the request path, reused verbatim for follow-up requests.
	Route string
	// Body is the JSON body of the initial request. Follow-ups extend its
	// messages array.
	Body  []byte
	Vocab Vocabulary

	ThreadID   string
	ResourceID string
	Model      string

	// MaxSteps caps recursive cycles. Zero means DefaultMaxSteps; negative
	// means unlimited.
	MaxSteps int

	// Usage, when non-nil, accumulates token usage from finish records and
	// aborts re-invocation once exhausted.
	Usage *usage.Tracker

	// OnRecord observes every decoded record in arrival order.
	OnRecord func(recordstream.Record)

	Logger *slog.Logger
}

// Run executes the exchange to completion, closing cfg.Sink exactly once on
// every exit path. A wire-level error record, a tool executor failure, and a
// transport failure all surface as the returned error; the sink is then
// closed with that error so the forwarded consumer observes it too.
func Run(ctx context.Context, cfg LoopConfig) (err error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	maxSteps := cfg.MaxSteps
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}

	defer func() {
		if err != nil {
			cfg.Sink.CloseWithError(err)
			return
		}
		cfg.Sink.Close()
	}()

	body := cfg.Body
	for step := 0; ; step++ {
		res, err := runCycle(ctx, cfg, body, step)
		if err != nil {
			return err
		}

		if res.finishReason != cfg.Vocab.ReasonToolCalls {
			return nil
		}
		inv := res.firstExecutable(cfg.Tools)
		if inv == nil {
			// No locally-registered executor matches; the finish record has
			// already been forwarded unchanged.
			return nil
		}
		if maxSteps > 0 && step+1 >= maxSteps {
			cfg.Logger.Debug("tool cycle limit reached", "steps", step+1)
			return nil
		}
		if cfg.Usage != nil && cfg.Usage.Exhausted() {
			return ErrBudgetExhausted
		}

		cfg.Logger.Debug("dispatching client tool",
			"tool", inv.ToolName, "callId", inv.ToolCallID, "step", step)

		tc := ToolContext{
			Messages:   json.RawMessage(gjson.GetBytes(body, "messages").Raw),
			ThreadID:   cfg.ThreadID,
			ResourceID: cfg.ResourceID,
			Suspend:    func(any) error { return nil },
		}
		result, err := cfg.Tools.Execute(ctx, inv.ToolName, inv.Args, tc)
		if err != nil {
			return fmt.Errorf("mastra: tool %q: %w", inv.ToolName, err)
		}
		if err := inv.SetResult(result); err != nil {
			return err
		}

		body, err = extendBody(body, res.text, inv)
		if err != nil {
			return err
		}
	}
}

// cycleResult is the per-message accumulated state of one request cycle.
type cycleResult struct {
	vocab        Vocabulary
	step         int
	text         string
	toolCalls    []*ToolInvocation
	finishReason string
	tokens       usage.Tokens
	sawFinish    bool
}

// firstExecutable returns the first tool call, in arrival order, that has a
// locally-registered executor. At most one tool runs per finish event.
func (r *cycleResult) firstExecutable(tools ToolExecutor) *ToolInvocation {
	if tools == nil {
		return nil
	}
	for _, inv := range r.toolCalls {
		if tools.Has(inv.ToolName) {
			return inv
		}
	}
	return nil
}

// apply folds one decoded record into the cycle state.
func (r *cycleResult) apply(rec recordstream.Record) error {
	switch rec.Type {
	case r.vocab.Error:
		return &WireError{
			Message: gjson.GetBytes(rec.Raw, r.vocab.ErrorPath).String(),
			Raw:     rec.Raw,
		}
	case r.vocab.TextDelta:
		r.text += gjson.GetBytes(rec.Raw, r.vocab.TextDeltaPath).String()
	case r.vocab.ToolCall:
		inv, err := parseInvocation(rec.Raw, r.vocab, r.step)
		if err != nil {
			return err
		}
		r.toolCalls = append(r.toolCalls, inv)
	case r.vocab.Finish:
		r.finishReason = gjson.GetBytes(rec.Raw, r.vocab.FinishReasonPath).String()
		if u := gjson.GetBytes(rec.Raw, r.vocab.UsagePath); u.Exists() {
			r.tokens = usage.Tokens{
				PromptTokens:     int(u.Get("promptTokens").Int()),
				CompletionTokens: int(u.Get("completionTokens").Int()),
				TotalTokens:      int(u.Get("totalTokens").Int()),
			}
		}
		r.sawFinish = true
	}
	return nil
}

// runCycle performs one request cycle: issue the request, tee the response
// into the sink-forwarding branch and the decoding branch, and fold decoded
// records into the cycle result. All stream handles are released on every
// exit path.
func runCycle(ctx context.Context, cfg LoopConfig, body []byte, step int) (*cycleResult, error) {
	stream, err := cfg.Requester.Stream(ctx, cfg.Route, body)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	branchA, branchB := recordstream.Tee(stream)
	defer branchA.Close()
	defer branchB.Close()

	fwdDone := make(chan error, 1)
	go func() {
		fwdDone <- forward(branchA, cfg.Sink, cfg.Vocab.Terminator)
	}()

	dec := recordstream.Decoder{}
	res := &cycleResult{vocab: cfg.Vocab, step: step}
	buf := make([]byte, 4096)
	for {
		n, readErr := branchB.Read(buf)
		if n > 0 {
			recs, decErr := dec.Feed(buf[:n])
			if decErr != nil {
				return nil, decErr
			}
			for _, rec := range recs {
				if err := res.fold(cfg, rec); err != nil {
					return nil, err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, readErr
		}
	}
	if rec, ok := dec.Finish(); ok {
		if err := res.fold(cfg, rec); err != nil {
			return nil, err
		}
	}

	if err := <-fwdDone; err != nil {
		return nil, err
	}
	if cfg.Usage != nil && res.sawFinish {
		cfg.Usage.Record(cfg.Model, res.tokens)
	}
	return res, nil
}

// fold forwards the record to the observer, then applies it to the state.
func (r *cycleResult) fold(cfg LoopConfig, rec recordstream.Record) error {
	if cfg.OnRecord != nil {
		cfg.OnRecord(rec)
	}
	return r.apply(rec)
}

// forward copies a record-framed byte stream into the shared sink, stripping
// the terminator sentinel so downstream consumers are not prematurely
// signaled done between recursive cycles. The sink is never closed here; its
// lifecycle belongs to Run.
func forward(src io.Reader, sink io.Writer, terminator []byte) error {
	fw := &recordstream.FilterWriter{
		W: sink,
		Drop: func(doc []byte) bool {
			return len(terminator) > 0 && bytes.Equal(bytes.TrimSpace(doc), terminator)
		},
	}
	if _, err := io.Copy(fw, src); err != nil {
		if errors.Is(err, recordstream.ErrBranchClosed) {
			return nil
		}
		return err
	}
	return fw.Flush()
}

// extendBody appends the cycle's assistant output and a single synthetic
// tool-result entry to the request body's messages array, preserving the
// relative order of assistant content, tool call, and tool result.
func extendBody(body []byte, text string, inv *ToolInvocation) ([]byte, error) {
	var assistantContent []any
	if text != "" {
		assistantContent = append(assistantContent, map[string]any{
			"type": "text",
			"text": text,
		})
	}
	assistantContent = append(assistantContent, map[string]any{
		"type":       "tool-call",
		"toolCallId": inv.ToolCallID,
		"toolName":   inv.ToolName,
		"args":       inv.Args,
	})

	result, _ := inv.Result()
	toolMessage := map[string]any{
		"role": "tool",
		"id":   uuid.NewString(),
		"content": []any{map[string]any{
			"type":       "tool-result",
			"toolCallId": inv.ToolCallID,
			"toolName":   inv.ToolName,
			"result":     result,
		}},
	}

	out, err := sjson.SetBytes(body, "messages.-1", map[string]any{
		"role":    "assistant",
		"content": assistantContent,
	})
	if err != nil {
		return nil, fmt.Errorf("mastra: extend history: %w", err)
	}
	out, err = sjson.SetBytes(out, "messages.-1", toolMessage)
	if err != nil {
		return nil, fmt.Errorf("mastra: extend history: %w", err)
	}
	return out, nil
}
