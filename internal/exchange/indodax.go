package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"cobabot-go/internal/signal"
)

// IndodaxClient reads OHLCV bars from the Indodax TradingView chart feed.
type IndodaxClient struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	spacing  time.Duration
	now      func() time.Time
	log      zerolog.Logger
	validate *validator.Validate
}

type indodaxCandle struct {
	Time   int64           `json:"Time" validate:"gt=0"`
	Open   decimal.Decimal `json:"Open" validate:"gt=0"`
	High   decimal.Decimal `json:"High" validate:"gt=0"`
	Low    decimal.Decimal `json:"Low" validate:"gt=0"`
	Close  decimal.Decimal `json:"Close" validate:"gt=0"`
	Volume decimal.Decimal `json:"Volume" validate:"gte=0"`
}

type indodaxError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func newIndodaxClient(s settings, log zerolog.Logger) *IndodaxClient {
	return &IndodaxClient{
		baseURL:  s.baseURL,
		client:   s.client,
		limiter:  rate.NewLimiter(rate.Every(s.rateLimit), 1),
		spacing:  s.rateLimit,
		now:      s.now,
		log:      log,
		validate: newValidator(),
	}
}

// NewIndodaxClient builds a standalone market data client.
func NewIndodaxClient(log zerolog.Logger, opts ...Option) *IndodaxClient {
	return newIndodaxClient(newSettings(opts), log)
}

// MinInterval implements BarSource.
func (c *IndodaxClient) MinInterval() time.Duration { return c.spacing }

// FetchRecentBars implements BarSource.
func (c *IndodaxClient) FetchRecentBars(ctx context.Context, symbol, tf string, count int) ([]signal.Bar, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrExchange)
	}
	market, err := ParseSymbol(symbol)
	if err != nil {
		return nil, err
	}
	frame, err := lookupTimeframe(tf)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrNetwork, err)
	}

	to := c.now()
	// One extra bar of slack so the window still holds count closed bars.
	from := to.Add(-time.Duration(count+1) * frame.step)
	q := url.Values{}
	q.Set("symbol", market.ChartID())
	q.Set("tf", frame.resolution)
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	endpoint := c.baseURL + "/tradingview/history_v2?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", "cobabot-go/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http do: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrExchange, resp.StatusCode, truncate(body, 200))
	}

	candles, err := c.decodeCandles(body)
	if err != nil {
		return nil, err
	}
	bars := toBars(candles, count)
	c.log.Debug().Str("symbol", market.String()).Str("tf", tf).Int("bars", len(bars)).Msg("fetched bars")
	return bars, nil
}

func (c *IndodaxClient) decodeCandles(body []byte) ([]indodaxCandle, error) {
	var candles []indodaxCandle
	if err := json.Unmarshal(body, &candles); err != nil {
		var apiErr indodaxError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%w: %s %s", ErrExchange, apiErr.Error, apiErr.Description)
		}
		return nil, fmt.Errorf("%w: decode response: %w", ErrExchange, err)
	}
	for i := range candles {
		if err := c.validate.Struct(candles[i]); err != nil {
			return nil, fmt.Errorf("%w: candle %d: %w", ErrExchange, i, err)
		}
		if candles[i].High.LessThan(candles[i].Low) {
			return nil, fmt.Errorf("%w: candle %d: high below low", ErrExchange, i)
		}
	}
	return candles, nil
}

// toBars sorts, drops duplicate timestamps and keeps the newest count bars.
func toBars(candles []indodaxCandle, count int) []signal.Bar {
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	bars := make([]signal.Bar, 0, len(candles))
	for _, k := range candles {
		ts := time.Unix(k.Time, 0).UTC()
		bar := signal.Bar{Time: ts, Open: k.Open, High: k.High, Low: k.Low, Close: k.Close, Volume: k.Volume}
		if n := len(bars); n > 0 && bars[n-1].Time.Equal(ts) {
			bars[n-1] = bar
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars
}

// newValidator teaches validator to compare decimal fields numerically.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Classify reports whether err came from the transport or the venue.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrExchange):
		return "exchange"
	default:
		return "error"
	}
}
