// Package paper simulates order execution against a virtual quote balance so
// the loop can run without exchange credentials.
package paper

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"cobabot-go/internal/execution"
)

var (
	// ErrInsufficientCash rejects a buy costing more than the available cash.
	ErrInsufficientCash = errors.New("insufficient cash for buy")
	// ErrInsufficientPosition rejects a sell when nothing is held.
	ErrInsufficientPosition = errors.New("insufficient position to sell")
)

type positionState struct {
	Qty     decimal.Decimal
	AvgCost decimal.Decimal
}

// Account tracks virtual cash, realized PnL, and per-symbol positions while trading in paper mode.
type Account struct {
	mu           sync.Mutex
	startingCash decimal.Decimal
	cash         decimal.Decimal
	realizedPnL  decimal.Decimal
	positions    map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Qty         decimal.Decimal
	AvgCost     decimal.Decimal
	MarketValue decimal.Decimal
	Unrealized  decimal.Decimal
}

// Snapshot represents a thread-safe view of the account state, optionally marked to market using provided prices.
type Snapshot struct {
	Cash        decimal.Decimal
	RealizedPnL decimal.Decimal
	Equity      decimal.Decimal
	Positions   map[string]PositionSnapshot
}

// NewAccount constructs an account populated with starting cash.
func NewAccount(startingCash decimal.Decimal) *Account {
	return &Account{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() decimal.Decimal { return a.startingCash }

// MarketFill executes a market order at the provided price, mutating balances if successful.
// A sell larger than the held quantity (rounding at the venue) is capped to the position.
func (a *Account) MarketFill(symbol string, side execution.Side, qty, price decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, errors.New("quantity must be positive")
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.New("price must be positive")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[symbol]

	switch side {
	case execution.Buy:
		notional := qty.Mul(price)
		if notional.GreaterThan(a.cash) {
			return decimal.Zero, ErrInsufficientCash
		}
		newQty := state.Qty.Add(qty)
		newAvg := state.AvgCost.Mul(state.Qty).Add(notional).Div(newQty)
		a.cash = a.cash.Sub(notional)
		a.positions[symbol] = positionState{Qty: newQty, AvgCost: newAvg}
		return qty, nil

	case execution.Sell:
		if !state.Qty.IsPositive() {
			return decimal.Zero, ErrInsufficientPosition
		}
		if qty.GreaterThan(state.Qty) {
			qty = state.Qty
		}
		a.realizedPnL = a.realizedPnL.Add(price.Sub(state.AvgCost).Mul(qty))
		a.cash = a.cash.Add(qty.Mul(price))
		newQty := state.Qty.Sub(qty)
		if newQty.IsZero() {
			delete(a.positions, symbol)
		} else {
			a.positions[symbol] = positionState{Qty: newQty, AvgCost: state.AvgCost}
		}
		return qty, nil

	default:
		return decimal.Zero, errors.New("unknown order side")
	}
}

// Snapshot returns a copy of balances, optionally marked using the supplied prices map.
func (a *Account) Snapshot(prices map[string]decimal.Decimal) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for sym, pos := range a.positions {
		mark, ok := prices[sym]
		marketValue, unrealized := decimal.Zero, decimal.Zero
		if ok && mark.IsPositive() {
			marketValue = pos.Qty.Mul(mark)
			unrealized = mark.Sub(pos.AvgCost).Mul(pos.Qty)
		}
		positions[sym] = PositionSnapshot{
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			MarketValue: marketValue,
			Unrealized:  unrealized,
		}
		equity = equity.Add(marketValue)
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// AvailableCash reports free cash that can be deployed into new longs.
func (a *Account) AvailableCash() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Position returns the current position size for the supplied symbol.
func (a *Account) Position(symbol string) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[symbol].Qty
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}
