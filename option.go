package mastra

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ClientOption configures a Client via the functional options pattern.
type ClientOption func(*clientOptions)

// ModelPricing holds per-model token prices in USD per million tokens, used
// for client-side cost tracking.
type ModelPricing struct {
	InputPerMTok  decimal.Decimal
	OutputPerMTok decimal.Decimal
}

// clientOptions holds all configurable fields set via ClientOption functions.
type clientOptions struct {
	retries        int
	retriesSet     bool
	backoffInitial time.Duration
	backoffMax     time.Duration
	headers        http.Header
	apiKey         string
	httpClient     *http.Client
	logger         *slog.Logger
	maxSteps       int
	maxBudget      decimal.Decimal
	pricing        map[string]ModelPricing
}

// resolveOptions applies all option functions and fills defaults.
func resolveOptions(opts []ClientOption) clientOptions {
	o := clientOptions{headers: make(http.Header)}
	for _, fn := range opts {
		fn(&o)
	}
	if o.backoffInitial == 0 {
		o.backoffInitial = DefaultBackoffInitial
	}
	if o.backoffMax == 0 {
		o.backoffMax = DefaultBackoffMax
	}
	if o.maxSteps == 0 {
		o.maxSteps = DefaultMaxSteps
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// WithRetries sets the number of retries after the first attempt.
// Zero disables retrying.
func WithRetries(n int) ClientOption {
	return func(o *clientOptions) {
		o.retries = n
		o.retriesSet = true
	}
}

// WithBackoff sets the initial and maximum backoff delay between attempts.
// The delay starts at initial and doubles after each failed attempt, capped
// at max.
func WithBackoff(initial, max time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.backoffInitial = initial
		o.backoffMax = max
	}
}

// WithHeader adds a default header applied to every request. Per-call
// headers take precedence.
func WithHeader(key, value string) ClientOption {
	return func(o *clientOptions) { o.headers.Set(key, value) }
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(o *clientOptions) { o.apiKey = key }
}

// WithHTTPClient supplies a custom HTTP client. The default client has no
// timeout so streams can stay open; bound requests with contexts instead.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = client }
}

// WithLogger enables structured debug logging of retries, record decoding
// and tool dispatch.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// WithMaxSteps caps the recursive tool cycles of one streamed exchange.
// Negative means unlimited.
func WithMaxSteps(n int) ClientOption {
	return func(o *clientOptions) { o.maxSteps = n }
}

// WithBudget enables client-side cost tracking and caps the spend of one
// streamed exchange. Once the cap is reached no further tool-cycle requests
// are issued and the stream fails with ErrBudgetExhausted.
func WithBudget(maxUSD decimal.Decimal, pricing map[string]ModelPricing) ClientOption {
	return func(o *clientOptions) {
		o.maxBudget = maxUSD
		o.pricing = pricing
	}
}
