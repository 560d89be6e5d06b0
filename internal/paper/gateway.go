package paper

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cobabot-go/internal/execution"
)

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(execution.Fill)
}

// Gateway fills market orders at the order's reference price moved against
// the trader by the configured slippage.
type Gateway struct {
	account  *Account
	recorder FillRecorder
	slippage decimal.Decimal // fraction
	now      func() time.Time
	log      zerolog.Logger
	seq      atomic.Int64
}

// GatewayOption configures a paper gateway.
type GatewayOption func(*Gateway)

// WithSlippageBps sets adverse slippage in basis points.
func WithSlippageBps(bps float64) GatewayOption {
	return func(g *Gateway) {
		if bps > 0 {
			g.slippage = decimal.NewFromFloat(bps).Div(decimal.NewFromInt(10_000))
		}
	}
}

// WithRecorder routes every fill to r.
func WithRecorder(r FillRecorder) GatewayOption {
	return func(g *Gateway) { g.recorder = r }
}

// WithClock overrides the fill timestamp source.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGateway builds a simulated venue over account.
func NewGateway(account *Account, log zerolog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		account: account,
		now:     time.Now,
		log:     log.With().Str("component", "paper").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Account exposes the backing account.
func (g *Gateway) Account() *Account { return g.account }

// PlaceMarketOrder implements execution.Gateway.
func (g *Gateway) PlaceMarketOrder(ctx context.Context, order execution.Order) (execution.Fill, error) {
	if err := ctx.Err(); err != nil {
		return execution.Fill{}, err
	}
	px := g.fillPrice(order)
	qty, err := g.account.MarketFill(order.Symbol, order.Side, order.Amount, px)
	if err != nil {
		return execution.Fill{}, fmt.Errorf("paper fill: %w", err)
	}

	fill := execution.Fill{
		OrderID: "paper-" + strconv.FormatInt(g.seq.Add(1), 10),
		Symbol:  order.Symbol,
		Side:    order.Side,
		Amount:  qty,
		Price:   px,
		Time:    g.now(),
	}
	if g.recorder != nil {
		g.recorder.Record(fill)
	}
	g.log.Debug().
		Str("order_id", fill.OrderID).
		Str("side", string(fill.Side)).
		Str("px", px.String()).
		Str("cash", g.account.AvailableCash().String()).
		Msg("paper fill")
	return fill, nil
}

func (g *Gateway) fillPrice(order execution.Order) decimal.Decimal {
	if g.slippage.IsZero() {
		return order.Price
	}
	one := decimal.NewFromInt(1)
	if order.Side == execution.Buy {
		return order.Price.Mul(one.Add(g.slippage))
	}
	return order.Price.Mul(one.Sub(g.slippage))
}
