package mastra

import (
	"github.com/mastra-ai/mastra-client-go/internal/engine"
	"github.com/mastra-ai/mastra-client-go/internal/request"
)

// APIError is a terminal request failure carrying the last observed HTTP
// status and, when the response body was JSON, its decoded error payload.
type APIError = request.Error

// StreamError is an explicit error record received from the wire. It
// terminates the stream it arrived on.
type StreamError = engine.WireError

// Sentinel errors surfaced by streamed exchanges.
var (
	// ErrBudgetExhausted is returned when the configured spending cap is hit
	// before a follow-up tool-cycle request would be issued.
	ErrBudgetExhausted = engine.ErrBudgetExhausted

	// ErrResultAlreadySet is returned when a tool invocation's result is
	// assigned a second time.
	ErrResultAlreadySet = engine.ErrResultAlreadySet
)
