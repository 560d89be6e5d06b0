// Package exchange hosts the market data and order connectors for the venue.
package exchange

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cobabot-go/internal/signal"
)

var (
	// ErrNetwork covers transport failures: DNS, refused connections, timeouts.
	ErrNetwork = errors.New("exchange network error")
	// ErrExchange covers answers the venue gave that we cannot use.
	ErrExchange = errors.New("exchange error")
)

const (
	// ProviderStub emits deterministic synthetic bars (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderIndodax polls the Indodax public chart endpoint.
	ProviderIndodax = "indodax"
)

// BarSource supplies recent OHLCV bars, oldest first.
type BarSource interface {
	FetchRecentBars(ctx context.Context, symbol, timeframe string, count int) ([]signal.Bar, error)
	// MinInterval is the smallest spacing between calls the provider tolerates.
	MinInterval() time.Duration
}

// Feed represents a pluggable market data source implementation.
type Feed struct {
	provider string
	log      zerolog.Logger
	settings settings
	indodax  *IndodaxClient
	stub     *Stub
}

type settings struct {
	baseURL   string
	tradeURL  string
	rateLimit time.Duration
	timeout   time.Duration
	client    *http.Client
	apiKey    string
	apiSecret string
	now       func() time.Time
	stubPath  func(time.Time) float64
}

// Option configures Feed construction parameters.
type Option func(*settings)

const (
	defaultIndodaxBaseURL  = "https://indodax.com"
	defaultIndodaxTradeURL = "https://indodax.com/tapi"
	defaultRateLimit       = time.Second
	defaultRequestTimeout  = 10 * time.Second
)

// WithBaseURL overrides the public API root.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		if u != "" {
			s.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithTradeURL overrides the private trade endpoint.
func WithTradeURL(u string) Option {
	return func(s *settings) {
		if u != "" {
			s.tradeURL = u
		}
	}
}

// WithRateLimit sets the minimum spacing between requests.
func WithRateLimit(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.rateLimit = d
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client, mostly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.client = c
		}
	}
}

// WithCredentials sets the private API key pair.
func WithCredentials(key, secret string) Option {
	return func(s *settings) {
		s.apiKey = key
		s.apiSecret = secret
	}
}

// WithClock overrides the time source used to build request windows and stub bars.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStubPath replaces the stub's price curve.
func WithStubPath(path func(time.Time) float64) Option {
	return func(s *settings) {
		if path != nil {
			s.stubPath = path
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		baseURL:   defaultIndodaxBaseURL,
		tradeURL:  defaultIndodaxTradeURL,
		rateLimit: defaultRateLimit,
		timeout:   defaultRequestTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	return s
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider: strings.ToLower(provider),
		log:      log.With().Str("component", "feed").Str("provider", provider).Logger(),
		settings: newSettings(opts),
	}
	switch f.provider {
	case ProviderIndodax:
		f.indodax = newIndodaxClient(f.settings, f.log)
	default:
		f.provider = ProviderStub
		f.stub = newStub(f.settings)
	}
	return f
}

// Provider reports the active provider name.
func (f *Feed) Provider() string { return f.provider }

// FetchRecentBars returns up to count bars ending at the most recent one.
func (f *Feed) FetchRecentBars(ctx context.Context, symbol, timeframe string, count int) ([]signal.Bar, error) {
	if f.indodax != nil {
		return f.indodax.FetchRecentBars(ctx, symbol, timeframe, count)
	}
	return f.stub.FetchRecentBars(ctx, symbol, timeframe, count)
}

// MinInterval implements BarSource.
func (f *Feed) MinInterval() time.Duration {
	if f.indodax != nil {
		return f.indodax.MinInterval()
	}
	return 0
}
