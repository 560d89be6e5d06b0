package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobabot-go/internal/indicator"
	"cobabot-go/internal/signal"
)

func v(x float64) indicator.Value { return indicator.Value{V: x, Ready: true} }

type rowSpec struct {
	close, rsi, short, long, upper, lower, macd, sig float64
}

func makeRow(ts time.Time, s rowSpec) indicator.Row {
	px := decimal.NewFromFloat(s.close)
	return indicator.Row{
		Bar: signal.Bar{Time: ts, Open: px, High: px, Low: px, Close: px, Volume: decimal.NewFromInt(1)},
		Set: indicator.Set{
			RSI:        v(s.rsi),
			EMAShort:   v(s.short),
			EMALong:    v(s.long),
			BBUpper:    v(s.upper),
			BBMiddle:   v((s.upper + s.lower) / 2),
			BBLower:    v(s.lower),
			MACD:       v(s.macd),
			MACDSignal: v(s.sig),
		},
	}
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestEvaluateBuyWhenAllConditionsAgree(t *testing.T) {
	rows := []indicator.Row{
		makeRow(t0, rowSpec{close: 101, rsi: 40, short: 100, long: 100.5, upper: 105, lower: 97, macd: 0.1, sig: 0.2}),
		makeRow(t0.Add(time.Hour), rowSpec{close: 95, rsi: 25, short: 101, long: 100, upper: 106, lower: 96, macd: 0.5, sig: 0.3}),
	}

	sig, err := NewConfluence(DefaultParams()).Evaluate(rows)
	require.NoError(t, err)

	assert.True(t, sig.Buy)
	assert.False(t, sig.Sell)
	assert.True(t, sig.Price.Equal(decimal.NewFromInt(95)))
	assert.Equal(t, 25.0, sig.RSI)
	assert.Equal(t, signal.Bullish, sig.Trend)
	assert.Equal(t, t0.Add(time.Hour), sig.Time)
	assert.Contains(t, sig.Reason, "golden_cross")
}

func TestEvaluateSellOnAnySingleCondition(t *testing.T) {
	base := rowSpec{close: 100, rsi: 50, short: 101, long: 100, upper: 105, lower: 95, macd: 0.5, sig: 0.3}
	cases := map[string]func(r *rowSpec){
		"overbought": func(r *rowSpec) { r.rsi = 75 },
		"death":      func(r *rowSpec) { r.short = 99 },
		"above_band": func(r *rowSpec) { r.close = 106 },
		"macd_down":  func(r *rowSpec) { r.macd = 0.1 },
	}
	strat := NewConfluence(DefaultParams())

	quiet, err := strat.Evaluate([]indicator.Row{makeRow(t0, base), makeRow(t0.Add(time.Hour), base)})
	require.NoError(t, err)
	assert.False(t, quiet.Sell)
	assert.False(t, quiet.Buy)

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			latest := base
			mutate(&latest)
			sig, err := strat.Evaluate([]indicator.Row{makeRow(t0, base), makeRow(t0.Add(time.Hour), latest)})
			require.NoError(t, err)
			assert.True(t, sig.Sell)
			assert.False(t, sig.Buy)
		})
	}
}

func TestEvaluateAllowsBuyAndSellTogether(t *testing.T) {
	// Overlapping RSI bands make a reading both oversold and overbought.
	strat := NewConfluence(Params{RSIOverbought: 20, RSIOversold: 30})
	row := rowSpec{close: 95, rsi: 25, short: 101, long: 100, upper: 106, lower: 96, macd: 0.5, sig: 0.3}

	sig, err := strat.Evaluate([]indicator.Row{makeRow(t0, row), makeRow(t0.Add(time.Hour), row)})
	require.NoError(t, err)
	assert.True(t, sig.Buy)
	assert.True(t, sig.Sell)
}

func TestEvaluateBearishOnEqualEMAs(t *testing.T) {
	row := rowSpec{close: 100, rsi: 50, short: 100, long: 100, upper: 105, lower: 95, macd: 0.5, sig: 0.3}
	sig, err := NewConfluence(DefaultParams()).Evaluate([]indicator.Row{makeRow(t0, row), makeRow(t0.Add(time.Hour), row)})
	require.NoError(t, err)
	assert.Equal(t, signal.Bearish, sig.Trend)
	assert.False(t, sig.Sell)
}

func TestEvaluateNeedsTwoCompleteRows(t *testing.T) {
	strat := NewConfluence(DefaultParams())
	row := makeRow(t0, rowSpec{close: 100, rsi: 50, short: 100, long: 100, upper: 105, lower: 95})

	_, err := strat.Evaluate(nil)
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)

	_, err = strat.Evaluate([]indicator.Row{row})
	assert.ErrorIs(t, err, ErrInsufficientData)

	warm := row
	warm.Bar.Time = t0.Add(time.Hour)
	warm.Set.MACDSignal = indicator.Value{}
	_, err = strat.Evaluate([]indicator.Row{row, warm})
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
}

func TestEvaluateOnComputedRowsAtSignalWarmup(t *testing.T) {
	params := indicator.DefaultParams()
	engine, err := indicator.NewEngine(params)
	require.NoError(t, err)

	series := func(n int) []signal.Bar {
		bars := make([]signal.Bar, n)
		for i := range bars {
			px := decimal.NewFromInt(int64(30_000_000 + 1000*(i%5)))
			bars[i] = signal.Bar{Time: t0.Add(time.Duration(i) * time.Hour), Open: px, High: px, Low: px, Close: px, Volume: decimal.NewFromInt(1)}
		}
		return bars
	}
	strat := NewConfluence(DefaultParams())

	rows, err := engine.Compute(series(params.SignalWarmup() - 1))
	require.NoError(t, err)
	_, err = strat.Evaluate(rows)
	assert.ErrorIs(t, err, ErrInsufficientData)

	rows, err = engine.Compute(series(params.SignalWarmup()))
	require.NoError(t, err)
	_, err = strat.Evaluate(rows)
	assert.NoError(t, err)
}

func TestNewConfluenceKeepsExplicitThresholds(t *testing.T) {
	strat := NewConfluence(Params{RSIOverbought: 80, RSIOversold: 10})
	assert.Equal(t, 80.0, strat.overbought)
	assert.Equal(t, 10.0, strat.oversold)
}

func TestEvaluateSkipsTrailingIncompleteRows(t *testing.T) {
	a := makeRow(t0, rowSpec{close: 100, rsi: 50, short: 101, long: 100, upper: 105, lower: 95, macd: 1, sig: 0})
	b := makeRow(t0.Add(time.Hour), rowSpec{close: 102, rsi: 55, short: 101, long: 100, upper: 105, lower: 95, macd: 1, sig: 0})
	c := makeRow(t0.Add(2*time.Hour), rowSpec{close: 110})
	c.Set = indicator.Set{}

	sig, err := NewConfluence(DefaultParams()).Evaluate([]indicator.Row{a, b, c})
	require.NoError(t, err)
	assert.True(t, sig.Price.Equal(decimal.NewFromInt(102)))
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{RSIOverbought: 30, RSIOversold: 30}.Validate())
}
