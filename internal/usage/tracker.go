// Package usage tracks token consumption and cost across the recursive
// request cycles of a streamed exchange.
package usage

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Tokens holds token counts reported by one finish record.
type Tokens struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Pricing holds per-model token prices in USD per million tokens.
type Pricing struct {
	InputPerMTok  decimal.Decimal
	OutputPerMTok decimal.Decimal
}

var million = decimal.NewFromInt(1_000_000)

// Cost computes the USD cost of the given token counts.
func (p Pricing) Cost(tok Tokens) decimal.Decimal {
	cost := decimal.NewFromInt(int64(tok.PromptTokens)).Mul(p.InputPerMTok).Div(million)
	return cost.Add(decimal.NewFromInt(int64(tok.CompletionTokens)).Mul(p.OutputPerMTok).Div(million))
}

// Tracker accumulates token usage and cost across request cycles and
// optionally enforces a spending cap. It is safe for concurrent use.
type Tracker struct {
	maxCost decimal.Decimal // zero = unlimited
	pricing map[string]Pricing

	mu    sync.Mutex
	total Tokens
	cost  decimal.Decimal
}

// NewTracker creates a tracker. A zero maxCost means no cap. pricing maps
// model identifiers to their rates; usage for unknown models is counted in
// tokens but adds no cost.
func NewTracker(maxCost decimal.Decimal, pricing map[string]Pricing) *Tracker {
	return &Tracker{
		maxCost: maxCost,
		pricing: pricing,
		cost:    decimal.Zero,
	}
}

// Record accumulates the usage reported by one cycle's finish record.
func (t *Tracker) Record(model string, tok Tokens) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.PromptTokens += tok.PromptTokens
	t.total.CompletionTokens += tok.CompletionTokens
	t.total.TotalTokens += tok.TotalTokens

	if p, ok := t.pricing[model]; ok {
		t.cost = t.cost.Add(p.Cost(tok))
	}
}

// Exhausted reports whether the accumulated cost has reached the cap.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxCost.IsZero() {
		return false
	}
	return t.cost.GreaterThanOrEqual(t.maxCost)
}

// Cost returns the accumulated USD cost.
func (t *Tracker) Cost() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cost
}

// Totals returns the accumulated token counts.
func (t *Tracker) Totals() Tokens {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
