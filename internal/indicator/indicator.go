// Package indicator computes technical indicators over an ordered bar series.
//
// Every series function returns one Value per input element. Elements that
// precede the indicator's lookback carry Ready=false and must not be used.
package indicator

import (
	"errors"
	"fmt"

	"cobabot-go/internal/signal"
)

var (
	// ErrInsufficientData means the series is shorter than the longest lookback.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnorderedBars means bar timestamps are not strictly increasing.
	ErrUnorderedBars = errors.New("bars not strictly increasing")
	// ErrInvalidParams rejects non-positive or inconsistent periods.
	ErrInvalidParams = errors.New("invalid indicator params")
)

// Value is a single indicator reading. Ready is false until the lookback is filled.
type Value struct {
	V     float64
	Ready bool
}

func ready(v float64) Value { return Value{V: v, Ready: true} }

// Params holds the lookback windows for every indicator the engine computes.
type Params struct {
	RSIPeriod       int
	EMAShortPeriod  int
	EMALongPeriod   int
	BollingerPeriod int
	BollingerStdDev float64
	MACDFastPeriod  int
	MACDSlowPeriod  int
	MACDSignal      int
}

// DefaultParams mirrors the classic 14 / 9-21 / 20x2 / 12-26-9 settings.
func DefaultParams() Params {
	return Params{
		RSIPeriod:       14,
		EMAShortPeriod:  9,
		EMALongPeriod:   21,
		BollingerPeriod: 20,
		BollingerStdDev: 2,
		MACDFastPeriod:  12,
		MACDSlowPeriod:  26,
		MACDSignal:      9,
	}
}

// Validate reports the first inconsistent parameter.
func (p Params) Validate() error {
	switch {
	case p.RSIPeriod <= 0:
		return fmt.Errorf("%w: rsi period %d", ErrInvalidParams, p.RSIPeriod)
	case p.EMAShortPeriod <= 0 || p.EMALongPeriod <= 0:
		return fmt.Errorf("%w: ema periods %d/%d", ErrInvalidParams, p.EMAShortPeriod, p.EMALongPeriod)
	case p.BollingerPeriod <= 0:
		return fmt.Errorf("%w: bollinger period %d", ErrInvalidParams, p.BollingerPeriod)
	case p.BollingerStdDev <= 0:
		return fmt.Errorf("%w: bollinger std dev %.2f", ErrInvalidParams, p.BollingerStdDev)
	case p.MACDFastPeriod <= 0 || p.MACDSlowPeriod <= 0 || p.MACDSignal <= 0:
		return fmt.Errorf("%w: macd periods %d/%d/%d", ErrInvalidParams, p.MACDFastPeriod, p.MACDSlowPeriod, p.MACDSignal)
	case p.MACDFastPeriod >= p.MACDSlowPeriod:
		return fmt.Errorf("%w: macd fast %d must be below slow %d", ErrInvalidParams, p.MACDFastPeriod, p.MACDSlowPeriod)
	}
	return nil
}

// Lookback is the minimum series length the engine accepts.
// RSI needs one extra bar because it works on price deltas.
func (p Params) Lookback() int {
	n := p.RSIPeriod + 1
	for _, v := range []int{p.EMAShortPeriod, p.EMALongPeriod, p.BollingerPeriod, p.MACDSlowPeriod} {
		if v > n {
			n = v
		}
	}
	return n
}

// SignalWarmup is the series length at which the last two rows both carry a
// complete set. The MACD signal line fills last: it needs MACDSignal ready
// MACD values, the first of which lands at index MACDSlowPeriod-1.
func (p Params) SignalWarmup() int {
	n := p.Lookback()
	if m := p.MACDSlowPeriod + p.MACDSignal - 1; m > n {
		n = m
	}
	return n + 1
}

// Set is the indicator bundle attached to one bar.
type Set struct {
	RSI        Value
	EMAShort   Value
	EMALong    Value
	BBUpper    Value
	BBMiddle   Value
	BBLower    Value
	MACD       Value
	MACDSignal Value
}

// Complete reports whether every indicator in the set is available.
func (s Set) Complete() bool {
	return s.RSI.Ready && s.EMAShort.Ready && s.EMALong.Ready &&
		s.BBUpper.Ready && s.BBMiddle.Ready && s.BBLower.Ready &&
		s.MACD.Ready && s.MACDSignal.Ready
}

// Row pairs a bar with its indicator set.
type Row struct {
	Bar signal.Bar
	Set Set
}

// Engine annotates bar series with the configured indicators.
type Engine struct {
	params Params
}

// NewEngine validates params and returns a ready engine.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{params: params}, nil
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.params }

// Compute annotates bars without modifying them.
func (e *Engine) Compute(bars []signal.Bar) ([]Row, error) {
	if need := e.params.Lookback(); len(bars) < need {
		return nil, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(bars), need)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return nil, fmt.Errorf("%w: bar %d at %s", ErrUnorderedBars, i, bars[i].Time)
		}
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close.InexactFloat64()
	}

	p := e.params
	rsi := RSI(closes, p.RSIPeriod)
	short := EMA(closes, p.EMAShortPeriod)
	long := EMA(closes, p.EMALongPeriod)
	upper, middle, lower := Bollinger(closes, p.BollingerPeriod, p.BollingerStdDev)
	line, sig := MACD(closes, p.MACDFastPeriod, p.MACDSlowPeriod, p.MACDSignal)

	rows := make([]Row, len(bars))
	for i, b := range bars {
		rows[i] = Row{
			Bar: b,
			Set: Set{
				RSI:        rsi[i],
				EMAShort:   short[i],
				EMALong:    long[i],
				BBUpper:    upper[i],
				BBMiddle:   middle[i],
				BBLower:    lower[i],
				MACD:       line[i],
				MACDSignal: sig[i],
			},
		}
	}
	return rows, nil
}
