// Package execution handles order lifecycle and interaction with venues.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cobabot-go/internal/metrics"
)

// ErrExecution marks any failure to get an order confirmed by a venue.
var ErrExecution = errors.New("execution failed")

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy opens the long position.
	Buy Side = "BUY"
	// Sell closes it.
	Sell Side = "SELL"
)

// Order represents a market placement request.
type Order struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Amount   decimal.Decimal `json:"amount"`   // base units
	Price    decimal.Decimal `json:"price"`    // reference price the amount was sized at
	Notional decimal.Decimal `json:"notional"` // quote units
}

// Fill is the venue's confirmation of an order.
type Fill struct {
	OrderID string          `json:"order_id"`
	Symbol  string          `json:"symbol"`
	Side    Side            `json:"side"`
	Amount  decimal.Decimal `json:"amount"`
	Price   decimal.Decimal `json:"price"`
	Time    time.Time       `json:"time"`
}

// Gateway places market orders on a venue, live or simulated.
type Gateway interface {
	PlaceMarketOrder(ctx context.Context, order Order) (Fill, error)
}

// Executor validates orders, forwards them to a gateway and normalises failures.
type Executor struct {
	log     zerolog.Logger
	gateway Gateway
}

// NewExecutor wraps a gateway with logging and metrics.
func NewExecutor(log zerolog.Logger, gateway Gateway) *Executor {
	return &Executor{log: log.With().Str("component", "executor").Logger(), gateway: gateway}
}

// Submit places the order. Every returned error matches ErrExecution.
func (executor *Executor) Submit(ctx context.Context, order Order) (Fill, error) {
	if err := order.validate(); err != nil {
		return Fill{}, executor.fail(order, err)
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	executor.log.Info().
		Str("sym", order.Symbol).
		Str("side", string(order.Side)).
		Str("amount", order.Amount.String()).
		Str("px", order.Price.String()).
		Msg("submit order")

	fill, err := executor.gateway.PlaceMarketOrder(ctx, order)
	if err != nil {
		return Fill{}, executor.fail(order, err)
	}
	if fill.Price.IsZero() {
		fill.Price = order.Price
	}
	executor.log.Info().
		Str("sym", fill.Symbol).
		Str("side", string(fill.Side)).
		Str("order_id", fill.OrderID).
		Str("px", fill.Price.String()).
		Msg("order filled")
	return fill, nil
}

func (executor *Executor) fail(order Order, err error) error {
	metrics.OrderFailuresTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	executor.log.Error().Err(err).Str("sym", order.Symbol).Str("side", string(order.Side)).Msg("order failed")
	if errors.Is(err, ErrExecution) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", ErrExecution, order.Side, order.Symbol, err)
}

func (o Order) validate() error {
	if o.Symbol == "" {
		return errors.New("missing symbol")
	}
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("unknown side %q", o.Side)
	}
	if !o.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if !o.Price.IsPositive() {
		return errors.New("price must be positive")
	}
	return nil
}
