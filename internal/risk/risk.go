// Package risk owns the position state and the daily trade counter and gates
// every order the bot places.
package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cobabot-go/internal/execution"
	"cobabot-go/internal/metrics"
)

var (
	// ErrAlreadyInPosition rejects a buy while a position is open.
	ErrAlreadyInPosition = errors.New("already in position")
	// ErrNotInPosition rejects a sell while flat.
	ErrNotInPosition = errors.New("not in position")
	// ErrDailyLimitReached rejects a buy once today's trade count hits the cap.
	ErrDailyLimitReached = errors.New("daily trade limit reached")
	// ErrInvalidLimits is returned by Limits.Validate.
	ErrInvalidLimits = errors.New("invalid risk limits")
)

// Limits holds the sizing and exit knobs.
type Limits struct {
	Notional        decimal.Decimal // quote currency committed per buy
	StopLoss        decimal.Decimal // fraction, 0.02 = 2%
	TakeProfit      decimal.Decimal
	MaxDailyTrades  int
	AmountPrecision int32
}

// DefaultLimits mirrors the stock bot: 100k IDR, 2% stop, 3% target, 3 buys a day.
func DefaultLimits() Limits {
	return Limits{
		Notional:        decimal.NewFromInt(100_000),
		StopLoss:        decimal.RequireFromString("0.02"),
		TakeProfit:      decimal.RequireFromString("0.03"),
		MaxDailyTrades:  3,
		AmountPrecision: 8,
	}
}

// Validate checks that every limit is usable.
func (l Limits) Validate() error {
	switch {
	case !l.Notional.IsPositive():
		return fmt.Errorf("%w: notional must be positive", ErrInvalidLimits)
	case !l.StopLoss.IsPositive() || l.StopLoss.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return fmt.Errorf("%w: stop loss must be in (0,1)", ErrInvalidLimits)
	case !l.TakeProfit.IsPositive():
		return fmt.Errorf("%w: take profit must be positive", ErrInvalidLimits)
	case l.MaxDailyTrades < 1:
		return fmt.Errorf("%w: max daily trades must be at least 1", ErrInvalidLimits)
	case l.AmountPrecision < 0:
		return fmt.Errorf("%w: amount precision must not be negative", ErrInvalidLimits)
	}
	return nil
}

// Allow reports whether another buy fits under the daily cap.
func (l Limits) Allow(tradesToday int) bool {
	return tradesToday < l.MaxDailyTrades
}

// Date is a calendar day, compared by value.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Position is set only by confirmed fills. Entry.Valid iff InPosition.
type Position struct {
	InPosition bool
	Entry      decimal.NullDecimal
}

// DailyCounter counts buys made on AsOf.
type DailyCounter struct {
	Count int
	AsOf  Date
}

// State is a copy of the controller's mutable state.
type State struct {
	Position Position
	Daily    DailyCounter
}

// Exit names why CheckStopLossTakeProfit closed a position.
type Exit string

const (
	// ExitNone means the position, if any, was left open.
	ExitNone Exit = ""
	// ExitStopLoss closed the position at or below entry × (1 - StopLoss).
	ExitStopLoss Exit = "stop_loss"
	// ExitTakeProfit closed the position at or above entry × (1 + TakeProfit).
	ExitTakeProfit Exit = "take_profit"
)

// OrderSubmitter places orders; *execution.Executor satisfies it.
type OrderSubmitter interface {
	Submit(ctx context.Context, order execution.Order) (execution.Fill, error)
}

// Controller is the single mutator of position and counter state. It is not
// safe for concurrent use; the control loop drives it from one goroutine.
type Controller struct {
	symbol string
	limits Limits
	orders OrderSubmitter
	log    zerolog.Logger

	pos   Position
	daily DailyCounter
}

// NewController validates limits and returns a flat controller.
func NewController(symbol string, limits Limits, orders OrderSubmitter, log zerolog.Logger) (*Controller, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if orders == nil {
		return nil, errors.New("risk: nil order submitter")
	}
	c := &Controller{
		symbol: symbol,
		limits: limits,
		orders: orders,
		log:    log.With().Str("component", "risk").Logger(),
	}
	c.publish()
	return c, nil
}

// Limits returns the configured limits.
func (c *Controller) Limits() Limits { return c.limits }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	return State{Position: c.pos, Daily: c.daily}
}

// InPosition reports whether a position is held.
func (c *Controller) InPosition() bool { return c.pos.InPosition }

// CanBuy reports whether RequestBuy would pass the gates.
func (c *Controller) CanBuy() bool {
	return !c.pos.InPosition && c.limits.Allow(c.daily.Count)
}

// OnNewDay resets the counter when date differs from the one last seen.
func (c *Controller) OnNewDay(date Date) {
	if date == c.daily.AsOf {
		return
	}
	if c.daily.Count > 0 {
		c.log.Info().Str("from", c.daily.AsOf.String()).Str("to", date.String()).Int("trades", c.daily.Count).Msg("daily trade counter reset")
	}
	c.daily = DailyCounter{Count: 0, AsOf: date}
	c.publish()
}

// RequestBuy opens a position sized at Notional/price. State changes only
// after the order is confirmed.
func (c *Controller) RequestBuy(ctx context.Context, price decimal.Decimal) (execution.Fill, error) {
	if c.pos.InPosition {
		return execution.Fill{}, ErrAlreadyInPosition
	}
	if !c.limits.Allow(c.daily.Count) {
		return execution.Fill{}, fmt.Errorf("%w: %d/%d", ErrDailyLimitReached, c.daily.Count, c.limits.MaxDailyTrades)
	}
	order, err := c.order(execution.Buy, price, price)
	if err != nil {
		return execution.Fill{}, err
	}
	fill, err := c.submit(ctx, order)
	if err != nil {
		return execution.Fill{}, err
	}

	c.pos = Position{InPosition: true, Entry: decimal.NewNullDecimal(price)}
	c.daily.Count++
	c.publish()
	c.log.Info().Str("entry", price.String()).Int("trades_today", c.daily.Count).Msg("position opened")
	return fill, nil
}

// RequestSell closes the position. The amount is sized against the entry
// price so it matches what the buy acquired.
func (c *Controller) RequestSell(ctx context.Context, price decimal.Decimal) (execution.Fill, error) {
	if !c.pos.InPosition {
		return execution.Fill{}, ErrNotInPosition
	}
	order, err := c.order(execution.Sell, price, c.pos.Entry.Decimal)
	if err != nil {
		return execution.Fill{}, err
	}
	fill, err := c.submit(ctx, order)
	if err != nil {
		return execution.Fill{}, err
	}

	entry := c.pos.Entry.Decimal
	c.pos = Position{}
	c.publish()
	c.log.Info().Str("entry", entry.String()).Str("exit", price.String()).Msg("position closed")
	return fill, nil
}

// CheckStopLossTakeProfit sells when price has moved at least StopLoss below
// or TakeProfit above the entry. It returns ExitNone when nothing happened.
func (c *Controller) CheckStopLossTakeProfit(ctx context.Context, price decimal.Decimal) (Exit, error) {
	if !c.pos.InPosition {
		return ExitNone, nil
	}
	change := c.Change(price)

	exit := ExitNone
	switch {
	case change.LessThanOrEqual(c.limits.StopLoss.Neg()):
		exit = ExitStopLoss
	case change.GreaterThanOrEqual(c.limits.TakeProfit):
		exit = ExitTakeProfit
	default:
		return ExitNone, nil
	}

	c.log.Info().Str("exit", string(exit)).Str("change", change.StringFixed(4)).Msg("exit threshold crossed")
	if _, err := c.RequestSell(ctx, price); err != nil {
		return ExitNone, err
	}
	return exit, nil
}

// Change returns (price-entry)/entry, or zero when flat.
func (c *Controller) Change(price decimal.Decimal) decimal.Decimal {
	if !c.pos.InPosition || c.pos.Entry.Decimal.IsZero() {
		return decimal.Zero
	}
	entry := c.pos.Entry.Decimal
	return price.Sub(entry).Div(entry)
}

func (c *Controller) order(side execution.Side, price, sizingPrice decimal.Decimal) (execution.Order, error) {
	if !price.IsPositive() || !sizingPrice.IsPositive() {
		return execution.Order{}, fmt.Errorf("%w: non-positive price %s", execution.ErrExecution, price)
	}
	return execution.Order{
		Symbol:   c.symbol,
		Side:     side,
		Amount:   c.limits.Notional.DivRound(sizingPrice, c.limits.AmountPrecision),
		Price:    price,
		Notional: c.limits.Notional,
	}, nil
}

func (c *Controller) submit(ctx context.Context, order execution.Order) (execution.Fill, error) {
	fill, err := c.orders.Submit(ctx, order)
	if err == nil {
		return fill, nil
	}
	if errors.Is(err, execution.ErrExecution) {
		return execution.Fill{}, err
	}
	return execution.Fill{}, fmt.Errorf("%w: %w", execution.ErrExecution, err)
}

func (c *Controller) publish() {
	open := 0.0
	if c.pos.InPosition {
		open = 1
	}
	metrics.PositionOpen.WithLabelValues(c.symbol).Set(open)
	metrics.DailyTrades.WithLabelValues(c.symbol).Set(float64(c.daily.Count))
}
