// Package app assembles a trading loop from a loaded configuration.
package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"cobabot-go/internal/config"
	"cobabot-go/internal/engine"
	"cobabot-go/internal/exchange"
	"cobabot-go/internal/execution"
	"cobabot-go/internal/indicator"
	"cobabot-go/internal/notify"
	"cobabot-go/internal/risk"
	"cobabot-go/internal/strategy"
	"cobabot-go/internal/util"
)

// Bot is a wired loop plus handles the binaries report on.
type Bot struct {
	Engine *engine.Engine
	Risk   *risk.Controller
	Feed   *exchange.Feed
}

// Option adjusts how Build wires collaborators.
type Option func(*options)

type options struct {
	feedOpts   []exchange.Option
	engineOpts []engine.Option
	notifier   notify.Notifier
	clock      engine.Clock
}

// WithFeedOptions appends exchange options after the configured ones.
func WithFeedOptions(opts ...exchange.Option) Option {
	return func(o *options) { o.feedOpts = append(o.feedOpts, opts...) }
}

// WithEngineOptions forwards options to engine.New.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// WithNotifier replaces the configured notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock replaces the wall clock used by the loop.
func WithClock(c engine.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Build wires feed, indicators, strategy, risk and notifier around gateway.
func Build(cfg *config.Config, gateway execution.Gateway, log zerolog.Logger, opts ...Option) (*Bot, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	if o.clock == nil {
		o.clock = engine.SystemClock{Location: loc}
	}
	if o.notifier == nil {
		if o.notifier, err = NewNotifier(cfg, log); err != nil {
			return nil, err
		}
	}

	ind, err := indicator.NewEngine(cfg.IndicatorParams())
	if err != nil {
		return nil, err
	}
	feed := NewFeed(cfg, log, o.feedOpts...)
	controller, err := risk.NewController(cfg.Exchange.Symbol, cfg.RiskLimits(), execution.NewExecutor(log, gateway), log)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(cfg.EngineConfig(), engine.Deps{
		Source:     feed,
		Indicators: ind,
		Strategy:   strategy.NewConfluence(cfg.StrategyParams()),
		Risk:       controller,
		Notifier:   o.notifier,
		Clock:      o.clock,
	}, log, o.engineOpts...)
	if err != nil {
		return nil, err
	}
	return &Bot{Engine: eng, Risk: controller, Feed: feed}, nil
}

// NewFeed builds the configured bar source.
func NewFeed(cfg *config.Config, log zerolog.Logger, extra ...exchange.Option) *exchange.Feed {
	return exchange.NewFeed(cfg.Exchange.Provider, log, append(ExchangeOptions(cfg), extra...)...)
}

// ExchangeOptions translates the exchange section; empty values keep defaults.
func ExchangeOptions(cfg *config.Config) []exchange.Option {
	e := cfg.Exchange
	var opts []exchange.Option
	if e.BaseURL != "" {
		opts = append(opts, exchange.WithBaseURL(e.BaseURL))
	}
	if e.TradeURL != "" {
		opts = append(opts, exchange.WithTradeURL(e.TradeURL))
	}
	if e.RateLimitMs > 0 {
		opts = append(opts, exchange.WithRateLimit(e.RateLimit()))
	}
	if e.RequestTimeoutMs > 0 {
		opts = append(opts, exchange.WithTimeout(e.RequestTimeout()))
	}
	if e.APIKey != "" || e.APISecret != "" {
		opts = append(opts, exchange.WithCredentials(e.APIKey, e.APISecret))
	}
	return opts
}

// NewNotifier fans out to the log and, when configured, Telegram.
func NewNotifier(cfg *config.Config, log zerolog.Logger) (notify.Notifier, error) {
	logNotifier := notify.NewLog(log)
	if !cfg.Notify.TelegramEnabled() {
		return logNotifier, nil
	}
	var topts []notify.TelegramOption
	if cfg.Notify.TelegramBaseURL != "" {
		topts = append(topts, notify.WithBaseURL(cfg.Notify.TelegramBaseURL))
	}
	tg, err := notify.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID, log, topts...)
	if err != nil {
		return nil, err
	}
	return notify.Multi{logNotifier, tg}, nil
}

// Describe logs the effective settings without secrets.
func Describe(cfg *config.Config, log zerolog.Logger) {
	log.Info().
		Str("provider", cfg.Exchange.Provider).
		Str("sym", cfg.Exchange.Symbol).
		Str("tf", cfg.Exchange.Timeframe).
		Int("bars", cfg.Exchange.BarLimit).
		Float64("notional", cfg.Risk.InvestmentNotional).
		Float64("stop_loss", cfg.Risk.StopLossFraction).
		Float64("take_profit", cfg.Risk.TakeProfitFraction).
		Int("max_daily_trades", cfg.Risk.MaxDailyTrades).
		Dur("poll", time.Duration(cfg.Loop.PollIntervalSeconds)*time.Second).
		Bool("telegram", cfg.Notify.TelegramEnabled()).
		Msg("Bot initialized successfully")
}

// Logger builds the process logger from the app section. The returned closer
// releases the log file, if any.
func Logger(cfg *config.Config) (zerolog.Logger, func() error, error) {
	closer := func() error { return nil }
	writers := []io.Writer{os.Stdout}
	if cfg.App.LogFile != "" {
		f, err := util.OpenLogFile(cfg.App.LogFile)
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		writers = append(writers, f)
		closer = f.Close
	}
	log := util.NewLogger(cfg.App.LogLevel, writers...)
	return log.With().Str("app", cfg.App.Name).Logger(), closer, nil
}
