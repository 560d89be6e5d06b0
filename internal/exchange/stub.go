package exchange

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"cobabot-go/internal/signal"
)

// Stub produces bars from a deterministic price curve sampled at bar closes.
type Stub struct {
	now  func() time.Time
	path func(time.Time) float64
}

func newStub(s settings) *Stub {
	path := s.stubPath
	if path == nil {
		path = DefaultStubPath
	}
	return &Stub{now: s.now, path: path}
}

// NewStub builds a synthetic source directly.
func NewStub(opts ...Option) *Stub { return newStub(newSettings(opts)) }

// DefaultStubPath swings ±3% around 30,000,000 over two days with a faster ripple.
func DefaultStubPath(t time.Time) float64 {
	h := float64(t.Unix()) / 3600
	return 30_000_000 * (1 + 0.03*math.Sin(2*math.Pi*h/48) + 0.01*math.Sin(2*math.Pi*h/7))
}

// MinInterval implements BarSource.
func (s *Stub) MinInterval() time.Duration { return 0 }

// FetchRecentBars implements BarSource. Bars end at the last closed boundary.
func (s *Stub) FetchRecentBars(ctx context.Context, symbol, tf string, count int) ([]signal.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrExchange)
	}
	frame, err := lookupTimeframe(tf)
	if err != nil {
		return nil, err
	}
	last := s.now().UTC().Truncate(frame.step)
	bars := make([]signal.Bar, count)
	prev := decimal.NewFromFloat(s.path(last.Add(-time.Duration(count) * frame.step))).Round(0)
	for i := 0; i < count; i++ {
		ts := last.Add(-time.Duration(count-1-i) * frame.step)
		closePx := decimal.NewFromFloat(s.path(ts)).Round(0)
		bars[i] = signal.Bar{
			Time:   ts,
			Open:   prev,
			High:   decimal.Max(prev, closePx),
			Low:    decimal.Min(prev, closePx),
			Close:  closePx,
			Volume: decimal.NewFromInt(1),
		}
		prev = closePx
	}
	return bars, nil
}
