package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mastra-ai/mastra-client-go/internal/recordstream"
	"github.com/mastra-ai/mastra-client-go/internal/usage"
)

// framed builds one wire response: the given documents plus the terminator
// sentinel, each followed by the record separator.
func framed(docs ...string) []byte {
	raw := make([][]byte, 0, len(docs)+1)
	for _, d := range docs {
		raw = append(raw, []byte(d))
	}
	raw = append(raw, []byte("[DONE]"))
	return recordstream.Encode(raw, 0)
}

// mockRequester serves canned responses and records every issued request.
type mockRequester struct {
	mu      sync.Mutex
	routes  []string
	bodies  [][]byte
	replies [][]byte
}

func (m *mockRequester) Stream(ctx context.Context, route string, body []byte) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.routes)
	m.routes = append(m.routes, route)
	m.bodies = append(m.bodies, append([]byte(nil), body...))
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return io.NopCloser(bytes.NewReader(m.replies[i])), nil
}

func (m *mockRequester) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.routes)
}

// mockExecutor runs a fixed function for a set of known tool names.
type mockExecutor struct {
	known map[string]bool
	runs  []string
	args  []json.RawMessage
	fn    func(name string, args json.RawMessage) (any, error)
}

func (m *mockExecutor) Has(name string) bool { return m.known[name] }

func (m *mockExecutor) Execute(ctx context.Context, name string, args json.RawMessage, tc ToolContext) (any, error) {
	m.runs = append(m.runs, name)
	m.args = append(m.args, args)
	if m.fn != nil {
		return m.fn(name, args)
	}
	return map[string]any{"ok": true}, nil
}

func initialBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"messages": []map[string]any{{"role": "user", "content": "what's the weather in Paris?"}},
	})
	require.NoError(t, err)
	return body
}

func runLoop(t *testing.T, cfg LoopConfig) (sinkBytes []byte, runErr error) {
	t.Helper()
	var buf bytes.Buffer
	cfg.Sink = recordstream.NewSinkWriter(&buf)
	runErr = Run(context.Background(), cfg)
	// Run closed the sink, so the owner goroutine has drained into buf.
	return buf.Bytes(), runErr
}

func TestRunPlainTextExchange(t *testing.T) {
	req := &mockRequester{replies: [][]byte{framed(
		`{"type":"step-start"}`,
		`{"type":"text-delta","textDelta":"It is "}`,
		`{"type":"text-delta","textDelta":"sunny."}`,
		`{"type":"finish","finishReason":"stop","usage":{"promptTokens":10,"completionTokens":4,"totalTokens":14}}`,
	)}}
	var seen []string

	sinkBytes, err := runLoop(t, LoopConfig{
		Requester: req,
		Route:     "/api/agents/weather/stream",
		Body:      initialBody(t),
		Vocab:     Legacy,
		OnRecord:  func(rec recordstream.Record) { seen = append(seen, rec.Type) },
	})

	require.NoError(t, err)
	assert.Equal(t, 1, req.calls())
	assert.Equal(t, []string{"step-start", "text-delta", "text-delta", "finish"}, seen)

	// The forwarded bytes carry every record but not the terminator sentinel.
	assert.NotContains(t, string(sinkBytes), "[DONE]")
	assert.Contains(t, string(sinkBytes), `"textDelta":"sunny."`)
	assert.Contains(t, string(sinkBytes), `"finishReason":"stop"`)
}

func TestRunSingleToolDispatch(t *testing.T) {
	req := &mockRequester{replies: [][]byte{
		framed(
			`{"type":"text-delta","textDelta":"Checking."}`,
			`{"type":"tool-call","toolCallId":"call-1","toolName":"weatherTool","args":{"city":"Paris"}}`,
			`{"type":"finish","finishReason":"tool-calls"}`,
		),
		framed(
			`{"type":"text-delta","textDelta":"It is sunny."}`,
			`{"type":"finish","finishReason":"stop"}`,
		),
	}}
	exec := &mockExecutor{
		known: map[string]bool{"weatherTool": true},
		fn: func(name string, args json.RawMessage) (any, error) {
			return map[string]any{"temperature": 21}, nil
		},
	}

	sinkBytes, err := runLoop(t, LoopConfig{
		Requester: req,
		Tools:     exec,
		Route:     "/api/agents/weather/stream",
		Body:      initialBody(t),
		Vocab:     Legacy,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, req.calls(), "exactly one follow-up request")
	require.Equal(t, []string{"weatherTool"}, exec.runs, "executor invoked exactly once")
	assert.JSONEq(t, `{"city":"Paris"}`, string(exec.args[0]))

	// Both cycles land in the same sink, in order.
	first := bytes.Index(sinkBytes, []byte(`"finishReason":"tool-calls"`))
	second := bytes.Index(sinkBytes, []byte(`"finishReason":"stop"`))
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)

	// The follow-up body extends the history: user, assistant (text +
	// tool-call), then a synthetic tool-result message.
	followup := req.bodies[1]
	msgs := gjson.GetBytes(followup, "messages").Array()
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Get("role").String())
	assert.Equal(t, "assistant", msgs[1].Get("role").String())
	assert.Equal(t, "Checking.", msgs[1].Get("content.0.text").String())
	assert.Equal(t, "tool-call", msgs[1].Get("content.1.type").String())
	assert.Equal(t, "call-1", msgs[1].Get("content.1.toolCallId").String())
	assert.Equal(t, "tool", msgs[2].Get("role").String())
	assert.NotEmpty(t, msgs[2].Get("id").String())
	result := msgs[2].Get("content.0")
	assert.Equal(t, "tool-result", result.Get("type").String())
	assert.Equal(t, "call-1", result.Get("toolCallId").String())
	assert.Equal(t, int64(21), result.Get("result.temperature").Int())
}

func TestRunUnterminatedResponseBeforeToolCycle(t *testing.T) {
	// The first response ends without a trailing separator after the finish
	// record. Its forwarded bytes must still frame cleanly, or they would
	// fuse with the next cycle's first record into one undecodable segment.
	reply1 := []byte(
		`{"type":"tool-call","toolCallId":"c1","toolName":"weatherTool","args":{}}` + "\x1e" +
			`{"type":"finish","finishReason":"tool-calls"}`)
	reply2 := framed(
		`{"type":"text-delta","textDelta":"done"}`,
		`{"type":"finish","finishReason":"stop"}`,
	)
	req := &mockRequester{replies: [][]byte{reply1, reply2}}
	exec := &mockExecutor{known: map[string]bool{"weatherTool": true}}

	sinkBytes, err := runLoop(t, LoopConfig{
		Requester: req,
		Tools:     exec,
		Route:     "/stream",
		Body:      initialBody(t),
		Vocab:     Legacy,
	})

	require.NoError(t, err)
	require.Equal(t, 2, req.calls())
	require.Equal(t, []string{"weatherTool"}, exec.runs)

	dec := recordstream.Decoder{}
	recs, decErr := dec.Feed(sinkBytes)
	require.NoError(t, decErr)
	if rec, ok := dec.Finish(); ok {
		recs = append(recs, rec)
	}
	var types []string
	for _, rec := range recs {
		types = append(types, rec.Type)
	}
	assert.Equal(t, []string{"tool-call", "finish", "text-delta", "finish"}, types)
	assert.Zero(t, dec.Dropped(), "every forwarded record must survive decoding")
}

func TestRunNoMatchingExecutor(t *testing.T) {
	req := &mockRequester{replies: [][]byte{framed(
		`{"type":"tool-call","toolCallId":"call-1","toolName":"serverTool","args":{}}`,
		`{"type":"finish","finishReason":"tool-calls"}`,
	)}}
	exec := &mockExecutor{known: map[string]bool{"someOtherTool": true}}

	sinkBytes, err := runLoop(t, LoopConfig{
		Requester: req,
		Tools:     exec,
		Route:     "/stream",
		Body:      initialBody(t),
		Vocab:     Legacy,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, req.calls(), "no follow-up without a matching executor")
	assert.Empty(t, exec.runs)
	// The tool-calls finish is forwarded unchanged for the caller to handle.
	assert.Contains(t, string(sinkBytes), `"finishReason":"tool-calls"`)
}

func TestRunNilToolsNeverRecurses(t *testing.T) {
	req := &mockRequester{replies: [][]byte{framed(
		`{"type":"tool-call","toolCallId":"c","toolName":"x","args":{}}`,
		`{"type":"finish","finishReason":"tool-calls"}`,
	)}}

	_, err := runLoop(t, LoopConfig{
		Requester: req,
		Route:     "/stream",
		Body:      initialBody(t),
		Vocab:     Legacy,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, req.calls())
}

func TestRunWireErrorIsTerminal(t *testing.T) {
	req := &mockRequester{replies: [][]byte{framed(
		`{"type":"text-delta","textDelta":"partial"}`,
		`{"type":"error","error":"model overloaded"}`,
	)}}

	pr, pw := io.Pipe()
	sink := recordstream.NewSinkWriter(pw)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(context.Background(), LoopConfig{
			Requester: req,
			Sink:      sink,
			Route:     "/stream",
			Body:      initialBody(t),
			Vocab:     Legacy,
		})
	}()

	// The loop closes the sink with the wire error, so the forwarded
	// consumer observes it too.
	_, readErr := io.ReadAll(pr)
	runErr := <-errCh

	var wireErr *WireError
	require.ErrorAs(t, runErr, &wireErr)
	assert.Equal(t, "model overloaded", wireErr.Message)
	assert.ErrorAs(t, readErr, &wireErr)
}

func TestRunToolExecutorFailure(t *testing.T) {
	req := &mockRequester{replies: [][]byte{framed(
		`{"type":"tool-call","toolCallId":"c1","toolName":"weatherTool","args":{}}`,
		`{"type":"finish","finishReason":"tool-calls"}`,
	)}}
	toolErr := errors.New("api key missing")
	exec := &mockExecutor{
		known: map[string]bool{"weatherTool": true},
		fn:    func(string, json.RawMessage) (any, error) { return nil, toolErr },
	}

	_, err := runLoop(t, LoopConfig{
		Requester: req,
		Tools:     exec,
		Route:     "/stream",
		Body:      initialBody(t),
		Vocab:     Legacy,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, toolErr)
	assert.Contains(t, err.Error(), `tool "weatherTool"`)
}

func TestRunMaxStepsCapsRecursion(t *testing.T) {
	// Every cycle demands another tool call; the cap must stop the loop.
	reply := framed(
		`{"type":"tool-call","toolCallId":"c","toolName":"weatherTool","args":{}}`,
		`{"type":"finish","finishReason":"tool-calls"}`,
	)
	req := &mockRequester{replies: [][]byte{reply}}
	exec := &mockExecutor{known: map[string]bool{"weatherTool": true}}

	_, err := runLoop(t, LoopConfig{
		Requester: req,
		Tools:     exec,
		Route:     "/stream",
		Body:      initialBody(t),
		Vocab:     Legacy,
		MaxSteps:  3,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, req.calls())
	assert.Len(t, exec.runs, 2)
}

func TestRunBudgetExhaustion(t *testing.T) {
	reply := framed(
		`{"type":"tool-call","toolCallId":"c","toolName":"weatherTool","args":{}}`,
		`{"type":"finish","finishReason":"tool-calls","usage":{"promptTokens":500000,"completionTokens":500000,"totalTokens":1000000}}`,
	)
	req := &mockRequester{replies: [][]byte{reply}}
	exec := &mockExecutor{known: map[string]bool{"weatherTool": true}}

	tracker := usage.NewTracker(decimal.RequireFromString("0.001"), map[string]usage.Pricing{
		"weather": {
			InputPerMTok:  decimal.NewFromInt(3),
			OutputPerMTok: decimal.NewFromInt(15),
		},
	})

	_, err := runLoop(t, LoopConfig{
		Requester: req,
		Tools:     exec,
		Route:     "/stream",
		Body:      initialBody(t),
		Vocab:     Legacy,
		Model:     "weather",
		Usage:     tracker,
	})

	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 1, req.calls(), "no follow-up once the budget is spent")
	assert.Empty(t, exec.runs)
}

func TestRunVNextVocabulary(t *testing.T) {
	req := &mockRequester{replies: [][]byte{
		framed(
			`{"type":"text-delta","payload":{"text":"Checking."}}`,
			`{"type":"tool-call","payload":{"toolCallId":"call-9","toolName":"weatherTool","args":{"city":"Oslo"}}}`,
			`{"type":"finish","payload":{"stepResult":{"reason":"tool-calls"},"output":{"usage":{"totalTokens":9}}}}`,
		),
		framed(
			`{"type":"finish","payload":{"stepResult":{"reason":"stop"}}}`,
		),
	}}
	exec := &mockExecutor{known: map[string]bool{"weatherTool": true}}

	_, err := runLoop(t, LoopConfig{
		Requester: req,
		Tools:     exec,
		Route:     "/api/agents/weather/streamVNext",
		Body:      initialBody(t),
		Vocab:     VNext,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, req.calls())
	require.Len(t, exec.args, 1)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(exec.args[0]))
}

func TestRunToolContextCarriesHistoryAndIDs(t *testing.T) {
	req := &mockRequester{replies: [][]byte{
		framed(
			`{"type":"tool-call","toolCallId":"c","toolName":"memoTool","args":{}}`,
			`{"type":"finish","finishReason":"tool-calls"}`,
		),
		framed(`{"type":"finish","finishReason":"stop"}`),
	}}
	var gotTC ToolContext
	exec := &toolContextCapture{inner: &mockExecutor{known: map[string]bool{"memoTool": true}}, out: &gotTC}

	_, err := runLoop(t, LoopConfig{
		Requester:  req,
		Tools:      exec,
		Route:      "/stream",
		Body:       initialBody(t),
		Vocab:      Legacy,
		ThreadID:   "thread-7",
		ResourceID: "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "thread-7", gotTC.ThreadID)
	assert.Equal(t, "user-1", gotTC.ResourceID)
	assert.Contains(t, string(gotTC.Messages), "what's the weather in Paris?")
	require.NotNil(t, gotTC.Suspend)
	assert.NoError(t, gotTC.Suspend(nil))
}

func TestParseInvocationMissingName(t *testing.T) {
	_, err := parseInvocation([]byte(`{"type":"tool-call","toolCallId":"c1"}`), Legacy, 0)
	assert.Error(t, err)
}

func TestParseInvocationDefaultsArgs(t *testing.T) {
	inv, err := parseInvocation([]byte(`{"type":"tool-call","toolCallId":"c1","toolName":"t"}`), Legacy, 2)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(inv.Args))
	assert.Equal(t, 2, inv.Step)
}

func TestToolInvocationResultSetOnce(t *testing.T) {
	inv := &ToolInvocation{ToolCallID: "c", ToolName: "t"}

	_, ok := inv.Result()
	assert.False(t, ok)

	require.NoError(t, inv.SetResult("first"))
	assert.ErrorIs(t, inv.SetResult("second"), ErrResultAlreadySet)

	got, ok := inv.Result()
	assert.True(t, ok)
	assert.Equal(t, "first", got)
}

type toolContextCapture struct {
	inner *mockExecutor
	out   *ToolContext
}

func (c *toolContextCapture) Has(name string) bool { return c.inner.Has(name) }

func (c *toolContextCapture) Execute(ctx context.Context, name string, args json.RawMessage, tc ToolContext) (any, error) {
	*c.out = tc
	return c.inner.Execute(ctx, name, args, tc)
}
