package mastra

import "github.com/mastra-ai/mastra-client-go/internal/request"

// Retry and backoff defaults, shared with the request engine.
const (
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = request.DefaultRetries

	// DefaultBackoffInitial is the delay before the first retry; it doubles
	// after each failed attempt up to DefaultBackoffMax.
	DefaultBackoffInitial = request.DefaultBackoffInitial

	// DefaultBackoffMax caps the backoff delay between attempts.
	DefaultBackoffMax = request.DefaultBackoffMax
)

// DefaultMaxSteps bounds how many recursive tool cycles one streamed
// exchange may run.
const DefaultMaxSteps = 5

// streamBufferSize is the channel buffer between the stream decoder and the
// RecordStream iterator.
const streamBufferSize = 64
