package exchange

import (
	"fmt"
	"strings"
	"time"
)

// Market splits a unified symbol such as "BTC/IDR".
type Market struct {
	Base  string
	Quote string
}

// ParseSymbol accepts "BTC/IDR", "btc_idr" or "BTC-IDR".
func ParseSymbol(symbol string) (Market, error) {
	symbol = strings.TrimSpace(symbol)
	for _, sep := range []string{"/", "_", "-"} {
		if base, quote, ok := strings.Cut(symbol, sep); ok {
			base, quote = sanitizeAsset(base), sanitizeAsset(quote)
			if base == "" || quote == "" {
				break
			}
			return Market{Base: base, Quote: quote}, nil
		}
	}
	return Market{}, fmt.Errorf("%w: unrecognised symbol %q", ErrExchange, symbol)
}

// ChartID is the upper-case concatenation the chart endpoint expects, e.g. BTCIDR.
func (m Market) ChartID() string { return m.Base + m.Quote }

// PairID is the lower-case pair the trade API expects, e.g. btc_idr.
func (m Market) PairID() string { return strings.ToLower(m.Base + "_" + m.Quote) }

func (m Market) String() string { return m.Base + "/" + m.Quote }

func sanitizeAsset(asset string) string {
	asset = strings.TrimSpace(asset)
	var b strings.Builder
	b.Grow(len(asset))
	for _, r := range asset {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if r >= 'a' && r <= 'z' {
				r -= 32
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

type timeframe struct {
	step       time.Duration
	resolution string
}

var timeframes = map[string]timeframe{
	"1m":  {time.Minute, "1"},
	"15m": {15 * time.Minute, "15"},
	"30m": {30 * time.Minute, "30"},
	"1h":  {time.Hour, "60"},
	"4h":  {4 * time.Hour, "240"},
	"1d":  {24 * time.Hour, "1D"},
	"3d":  {72 * time.Hour, "3D"},
	"1w":  {7 * 24 * time.Hour, "1W"},
}

// TimeframeDuration returns the bar width for a timeframe label like "1h".
func TimeframeDuration(tf string) (time.Duration, error) {
	t, err := lookupTimeframe(tf)
	return t.step, err
}

func lookupTimeframe(tf string) (timeframe, error) {
	t, ok := timeframes[strings.ToLower(strings.TrimSpace(tf))]
	if !ok {
		return timeframe{}, fmt.Errorf("%w: unsupported timeframe %q", ErrExchange, tf)
	}
	return t, nil
}
