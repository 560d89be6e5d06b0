package paper

import (
	"sync"

	"github.com/shopspring/decimal"

	"cobabot-go/internal/execution"
)

// Ledger keeps the most recent paper fills in memory. A positive limit caps
// the retained fills; older ones are dropped but still counted in Totals.
type Ledger struct {
	mu     sync.Mutex
	limit  int
	fills  []execution.Fill
	totals Totals
}

// Totals aggregates every fill a ledger has seen. Quote values are amount × price.
type Totals struct {
	Buys        int
	Sells       int
	BoughtQuote decimal.Decimal
	SoldQuote   decimal.Decimal
}

// Net is quote received minus quote spent.
func (t Totals) Net() decimal.Decimal { return t.SoldQuote.Sub(t.BoughtQuote) }

// NewLedger builds a ledger retaining at most limit fills; limit <= 0 keeps all.
func NewLedger(limit int) *Ledger {
	if limit < 0 {
		limit = 0
	}
	return &Ledger{limit: limit, fills: make([]execution.Fill, 0, limit)}
}

// Record implements FillRecorder.
func (l *Ledger) Record(fill execution.Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && len(l.fills) == l.limit {
		copy(l.fills, l.fills[1:])
		l.fills = l.fills[:len(l.fills)-1]
	}
	l.fills = append(l.fills, fill)

	quote := fill.Amount.Mul(fill.Price)
	switch fill.Side {
	case execution.Buy:
		l.totals.Buys++
		l.totals.BoughtQuote = l.totals.BoughtQuote.Add(quote)
	case execution.Sell:
		l.totals.Sells++
		l.totals.SoldQuote = l.totals.SoldQuote.Add(quote)
	}
}

// Snapshot returns a copy of the retained fills, oldest first.
func (l *Ledger) Snapshot() []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Len reports how many fills are retained.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fills)
}

// Totals returns the running aggregates.
func (l *Ledger) Totals() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals
}
