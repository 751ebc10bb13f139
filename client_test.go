package mastra

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidBaseURL(t *testing.T) {
	_, err := New("://not a url")
	assert.Error(t, err)
}

func TestClientDefaultHeadersSent(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	client, err := New(srv.URL,
		WithAPIKey("k-123"),
		WithHeader("X-Mastra-Env", "test"),
	)
	require.NoError(t, err)

	_, err = client.Agent("a").Details(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer k-123", got.Get("Authorization"))
	assert.Equal(t, "test", got.Get("X-Mastra-Env"))
}

func TestWithRetriesZeroDisablesRetrying(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := New(srv.URL, WithRetries(0), WithBackoff(time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Agent("a").Details(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithRetriesCount(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := New(srv.URL, WithRetries(2), WithBackoff(time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Agent("a").Details(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "retries=2 means three attempts")
}

func TestWithHTTPClientUsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	var rtCalls atomic.Int32
	custom := &http.Client{Transport: countingTransport{calls: &rtCalls}}

	client, err := New(srv.URL, WithHTTPClient(custom))
	require.NoError(t, err)

	_, err = client.Agent("a").Details(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), rtCalls.Load())
}

func TestWithBudgetExhaustsStream(t *testing.T) {
	reply := `{"type":"tool-call","toolCallId":"c","toolName":"weatherTool","args":{"city":"Rome"}}` + sep +
		`{"type":"finish","finishReason":"tool-calls","usage":{"promptTokens":1000000,"completionTokens":1000000,"totalTokens":2000000}}` + sep +
		`[DONE]` + sep
	h := &streamHandler{replies: []string{reply}}
	srv := httptest.NewServer(h)
	defer srv.Close()

	client, err := New(srv.URL, WithBudget(
		decimal.RequireFromString("0.01"),
		map[string]ModelPricing{"weather": {
			InputPerMTok:  decimal.NewFromInt(3),
			OutputPerMTok: decimal.NewFromInt(15),
		}},
	))
	require.NoError(t, err)
	RegisterTool[weatherInput](client.Tools(), weatherTool{})

	stream, err := client.Agent("weather").Stream(context.Background(), StreamParams{
		Messages: []Message{UserMessage("weather in Rome?")},
	})
	require.NoError(t, err)

	drain(t, stream)
	assert.ErrorIs(t, stream.Err(), ErrBudgetExhausted)
	assert.Equal(t, 1, h.requestCount())
}

func TestWithLoggerReceivesRetryEvents(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	rec := &recordingHandler{}
	logger := slog.New(rec)

	client, err := New(srv.URL,
		WithLogger(logger),
		WithRetries(1),
		WithBackoff(time.Millisecond, time.Millisecond),
	)
	require.NoError(t, err)

	_, err = client.Agent("a").Details(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.saw("request attempt failed"))
}

type countingTransport struct {
	calls *atomic.Int32
}

func (c countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return http.DefaultTransport.RoundTrip(req)
}

// recordingHandler captures log messages for assertions.
type recordingHandler struct {
	mu   sync.Mutex
	msgs []string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, r.Message)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) saw(msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.msgs {
		if m == msg {
			return true
		}
	}
	return false
}
