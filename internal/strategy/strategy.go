// Package strategy turns indicator-annotated bars into trading signals.
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"cobabot-go/internal/indicator"
	"cobabot-go/internal/signal"
)

// ErrInsufficientData is returned when fewer than two rows carry a full indicator set.
var ErrInsufficientData = fmt.Errorf("strategy: %w", indicator.ErrInsufficientData)

// Evaluator defines behaviour shared by signal generators used by the bot.
type Evaluator interface {
	Evaluate(rows []indicator.Row) (signal.Signal, error)
	Name() string
}

// Params expresses the oscillator thresholds the generator compares against.
type Params struct {
	RSIOverbought float64
	RSIOversold   float64
}

// DefaultParams returns the 70/30 RSI band.
func DefaultParams() Params {
	return Params{RSIOverbought: 70, RSIOversold: 30}
}

// Validate rejects bands where oversold is not below overbought.
func (p Params) Validate() error {
	if p.RSIOversold >= p.RSIOverbought {
		return errors.New("rsi oversold must be below overbought")
	}
	return nil
}

// Confluence requires RSI, EMA, Bollinger and MACD to agree before buying and
// sells as soon as any one of them turns against the position.
type Confluence struct {
	overbought float64
	oversold   float64
}

// NewConfluence builds the generator; zero thresholds fall back to the defaults.
func NewConfluence(p Params) *Confluence {
	def := DefaultParams()
	if p.RSIOverbought == 0 {
		p.RSIOverbought = def.RSIOverbought
	}
	if p.RSIOversold == 0 {
		p.RSIOversold = def.RSIOversold
	}
	return &Confluence{overbought: p.RSIOverbought, oversold: p.RSIOversold}
}

// Name returns the identifier for logging.
func (c *Confluence) Name() string { return "Confluence" }

// Evaluate inspects the two most recent complete rows and reports the verdict
// for the latest one. Buy and Sell are evaluated independently.
func (c *Confluence) Evaluate(rows []indicator.Row) (signal.Signal, error) {
	latest, previous, ok := lastTwoComplete(rows)
	if !ok {
		return signal.Signal{}, ErrInsufficientData
	}

	set := latest.Set
	closePx := latest.Bar.Close.InexactFloat64()

	oversold := set.RSI.V < c.oversold
	golden := set.EMAShort.V > set.EMALong.V
	belowBand := closePx < set.BBLower.V
	macdUp := set.MACD.V > set.MACDSignal.V

	overbought := set.RSI.V > c.overbought
	death := set.EMAShort.V < set.EMALong.V
	aboveBand := closePx > set.BBUpper.V
	macdDown := set.MACD.V < set.MACDSignal.V

	trend := signal.Bearish
	if golden {
		trend = signal.Bullish
	}

	var reasons []string
	add := func(cond bool, label string) {
		if cond {
			reasons = append(reasons, label)
		}
	}
	add(oversold, "rsi_oversold")
	add(overbought, "rsi_overbought")
	add(golden, "ema_bullish")
	add(death, "ema_bearish")
	add(golden && previous.Set.EMAShort.V <= previous.Set.EMALong.V, "golden_cross")
	add(death && previous.Set.EMAShort.V >= previous.Set.EMALong.V, "death_cross")
	add(belowBand, "below_lower_band")
	add(aboveBand, "above_upper_band")
	add(macdUp, "macd_above_signal")
	add(macdDown, "macd_below_signal")

	return signal.Signal{
		Buy:    oversold && golden && belowBand && macdUp,
		Sell:   overbought || death || aboveBand || macdDown,
		Price:  latest.Bar.Close,
		RSI:    set.RSI.V,
		Trend:  trend,
		Time:   latest.Bar.Time,
		Reason: strings.Join(reasons, ","),
	}, nil
}

func lastTwoComplete(rows []indicator.Row) (latest, previous indicator.Row, ok bool) {
	found := 0
	for i := len(rows) - 1; i >= 0 && found < 2; i-- {
		if !rows[i].Set.Complete() {
			continue
		}
		if found == 0 {
			latest = rows[i]
		} else {
			previous = rows[i]
		}
		found++
	}
	return latest, previous, found == 2
}
