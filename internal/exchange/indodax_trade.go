package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"cobabot-go/internal/execution"
)

// TradeGateway places market orders through the Indodax private API.
type TradeGateway struct {
	endpoint string
	key      string
	secret   []byte
	client   *http.Client
	limiter  *rate.Limiter
	now      func() time.Time
	log      zerolog.Logger

	mu        sync.Mutex
	lastNonce int64
}

type tapiResponse struct {
	Success   int                        `json:"success"`
	Error     string                     `json:"error"`
	ErrorCode string                     `json:"error_code"`
	Return    map[string]json.RawMessage `json:"return"`
}

// NewTradeGateway builds a live order gateway. Credentials are required.
func NewTradeGateway(log zerolog.Logger, opts ...Option) (*TradeGateway, error) {
	s := newSettings(opts)
	if s.apiKey == "" || s.apiSecret == "" {
		return nil, errors.New("indodax: api key and secret are required")
	}
	return &TradeGateway{
		endpoint: s.tradeURL,
		key:      s.apiKey,
		secret:   []byte(s.apiSecret),
		client:   s.client,
		limiter:  rate.NewLimiter(rate.Every(s.rateLimit), 1),
		now:      s.now,
		log:      log.With().Str("component", "indodax_trade").Logger(),
	}, nil
}

// PlaceMarketOrder implements execution.Gateway. Buys are sent as a quote
// amount (amount × price), sells as the base amount.
func (g *TradeGateway) PlaceMarketOrder(ctx context.Context, order execution.Order) (execution.Fill, error) {
	market, err := ParseSymbol(order.Symbol)
	if err != nil {
		return execution.Fill{}, err
	}

	form := url.Values{}
	form.Set("method", "trade")
	form.Set("pair", market.PairID())
	form.Set("order_type", "market")
	switch order.Side {
	case execution.Buy:
		form.Set("type", "buy")
		form.Set(strings.ToLower(market.Quote), order.Amount.Mul(order.Price).Round(0).String())
	case execution.Sell:
		form.Set("type", "sell")
		form.Set(strings.ToLower(market.Base), order.Amount.String())
	default:
		return execution.Fill{}, fmt.Errorf("%w: unknown side %q", ErrExchange, order.Side)
	}

	ret, err := g.call(ctx, form)
	if err != nil {
		return execution.Fill{}, err
	}
	return g.parseFill(order, market, ret), nil
}

func (g *TradeGateway) call(ctx context.Context, form url.Values) (map[string]json.RawMessage, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrNetwork, err)
	}
	form.Set("nonce", strconv.FormatInt(g.nonce(), 10))
	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", g.key)
	req.Header.Set("Sign", Sign(g.secret, body))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http do: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrExchange, resp.StatusCode, truncate(raw, 200))
	}

	var payload tapiResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrExchange, err)
	}
	if payload.Success != 1 {
		return nil, fmt.Errorf("%w: %s %s", ErrExchange, payload.ErrorCode, payload.Error)
	}
	return payload.Return, nil
}

func (g *TradeGateway) parseFill(order execution.Order, market Market, ret map[string]json.RawMessage) execution.Fill {
	base := strings.ToLower(market.Base)
	quote := strings.ToLower(market.Quote)

	fill := execution.Fill{
		OrderID: rawString(ret["order_id"]),
		Symbol:  order.Symbol,
		Side:    order.Side,
		Amount:  order.Amount,
		Price:   order.Price,
		Time:    g.now(),
	}

	var baseAmt, quoteAmt decimal.Decimal
	if order.Side == execution.Buy {
		baseAmt = rawDecimal(ret["receive_"+base])
		quoteAmt = rawDecimal(ret["spend_"+quoteAlias(quote)])
	} else {
		baseAmt = rawDecimal(ret["sold_"+base])
		quoteAmt = rawDecimal(ret["receive_"+quoteAlias(quote)])
	}
	if baseAmt.IsPositive() {
		fill.Amount = baseAmt
		if quoteAmt.IsPositive() {
			fill.Price = quoteAmt.Div(baseAmt)
		}
	}
	g.log.Info().Str("order_id", fill.OrderID).Str("amount", fill.Amount.String()).Str("px", fill.Price.String()).Msg("market order confirmed")
	return fill
}

// nonce is a millisecond timestamp forced to increase between calls.
func (g *TradeGateway) nonce() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.now().UnixMilli()
	if n <= g.lastNonce {
		n = g.lastNonce + 1
	}
	g.lastNonce = n
	return n
}

// Sign returns the hex HMAC-SHA512 of body keyed by secret.
func Sign(secret []byte, body string) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// Indodax reports rupiah balances with the "rp" suffix.
func quoteAlias(quote string) string {
	if quote == "idr" {
		return "rp"
	}
	return quote
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func rawDecimal(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Zero
	}
	return d
}
