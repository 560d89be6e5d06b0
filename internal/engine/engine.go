// Package engine runs the polling decision loop: fetch bars, derive
// indicators, honour stop-loss/take-profit, then act on the signal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cobabot-go/internal/exchange"
	"cobabot-go/internal/indicator"
	"cobabot-go/internal/metrics"
	"cobabot-go/internal/notify"
	"cobabot-go/internal/risk"
	"cobabot-go/internal/signal"
	"cobabot-go/internal/strategy"
)

// Outcome labels what a single Step did.
type Outcome string

const (
	// OutcomeFetchFailed: every fetch attempt failed.
	OutcomeFetchFailed Outcome = "fetch_failed"
	// OutcomeInsufficientData: too few bars, or indicators still warming up.
	OutcomeInsufficientData Outcome = "insufficient_data"
	// OutcomeStaleData: the newest bar is older than MaxBarAge.
	OutcomeStaleData Outcome = "stale_data"
	// OutcomePositionClosed: stop-loss or take-profit sold the position.
	OutcomePositionClosed Outcome = "position_closed"
	// OutcomeBought: a buy signal opened a position.
	OutcomeBought Outcome = "bought"
	// OutcomeSold: a sell signal closed the position.
	OutcomeSold Outcome = "sold"
	// OutcomeHeld: nothing to do, or the buy was gated.
	OutcomeHeld Outcome = "held"
	// OutcomeFailed: an error or panic was contained and reported.
	OutcomeFailed Outcome = "failed"
	// OutcomeCancelled: the context ended mid-step.
	OutcomeCancelled Outcome = "cancelled"
)

const (
	// StartupMessage is sent once when Run begins.
	StartupMessage = "Bot started running..."
	defaultPoll    = 60 * time.Second
	defaultBars    = 100
)

// IndicatorComputer annotates bars; *indicator.Engine satisfies it.
type IndicatorComputer interface {
	Compute(bars []signal.Bar) ([]indicator.Row, error)
}

// Config holds the loop cadence and the instrument being traded.
type Config struct {
	Symbol       string
	Timeframe    string
	BarLimit     int
	PollInterval time.Duration
	Retry        RetryPolicy
	// MaxBarAge skips cycles whose newest bar is older than this; 0 disables.
	MaxBarAge time.Duration
}

// Deps are the collaborators a loop needs.
type Deps struct {
	Source     exchange.BarSource
	Indicators IndicatorComputer
	Strategy   strategy.Evaluator
	Risk       *risk.Controller
	Notifier   notify.Notifier
	Clock      Clock
}

// Option tweaks an Engine.
type Option func(*Engine)

// WithSleeper replaces the timer used between cycles and retries.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) {
		if s != nil {
			e.sleep = s
		}
	}
}

// Engine owns one decision loop. Step must not be called concurrently.
type Engine struct {
	cfg        Config
	source     exchange.BarSource
	indicators IndicatorComputer
	strategy   strategy.Evaluator
	risk       *risk.Controller
	notifier   notify.Notifier
	clock      Clock
	sleep      Sleeper
	log        zerolog.Logger
}

// New wires a loop. Zero cadence values fall back to the defaults.
func New(cfg Config, deps Deps, log zerolog.Logger, opts ...Option) (*Engine, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("engine: nil bar source")
	case deps.Indicators == nil:
		return nil, errors.New("engine: nil indicator computer")
	case deps.Strategy == nil:
		return nil, errors.New("engine: nil strategy")
	case deps.Risk == nil:
		return nil, errors.New("engine: nil risk controller")
	case cfg.Symbol == "" || cfg.Timeframe == "":
		return nil, errors.New("engine: symbol and timeframe are required")
	}
	if cfg.BarLimit <= 0 {
		cfg.BarLimit = defaultBars
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPoll
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLog(log)
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	e := &Engine{
		cfg:        cfg,
		source:     deps.Source,
		indicators: deps.Indicators,
		strategy:   deps.Strategy,
		risk:       deps.Risk,
		notifier:   deps.Notifier,
		clock:      deps.Clock,
		sleep:      Sleep,
		log:        log.With().Str("component", "engine").Str("sym", cfg.Symbol).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Period is the wait between cycles: the poll interval, stretched to the
// source's minimum spacing when that is longer.
func (e *Engine) Period() time.Duration {
	if spacing := e.source.MinInterval(); spacing > e.cfg.PollInterval {
		return spacing
	}
	return e.cfg.PollInterval
}

// Run announces start-up and steps until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.notify(ctx, StartupMessage)
	period := e.Period()
	e.log.Info().Dur("period", period).Str("strategy", e.strategy.Name()).Msg("loop started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome := e.Step(ctx)
		e.log.Debug().Str("outcome", string(outcome)).Msg("cycle done")
		if err := e.sleep(ctx, period); err != nil {
			e.log.Info().Msg("loop stopped")
			return err
		}
	}
}

// Step runs one full iteration. Failures and panics are contained here.
func (e *Engine) Step(ctx context.Context) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, fmt.Errorf("panic: %v", r))
			outcome = OutcomeFailed
		}
		metrics.CyclesTotal.WithLabelValues(string(outcome)).Inc()
	}()

	now := e.clock.Now()
	e.risk.OnNewDay(risk.DateOf(now))

	res := e.cfg.Retry.Fetch(ctx, func(ctx context.Context) ([]signal.Bar, error) {
		return e.source.FetchRecentBars(ctx, e.cfg.Symbol, e.cfg.Timeframe, e.cfg.BarLimit)
	}, e.sleep, e.recordAttempt)
	if !res.OK() {
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		e.log.Warn().Err(res.Err).Int("attempts", res.Attempts).Msg("market data unavailable, skipping cycle")
		return OutcomeFetchFailed
	}
	if len(res.Bars) == 0 {
		e.log.Info().Msg("no bars returned")
		return OutcomeInsufficientData
	}

	latest := res.Bars[len(res.Bars)-1]
	if e.cfg.MaxBarAge > 0 && now.Sub(latest.Time) > e.cfg.MaxBarAge {
		e.log.Warn().Time("bar_time", latest.Time).Dur("max_age", e.cfg.MaxBarAge).Msg("latest bar is stale, skipping cycle")
		return OutcomeStaleData
	}

	rows, err := e.indicators.Compute(res.Bars)
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) {
			e.log.Info().Err(err).Int("bars", len(res.Bars)).Msg("not enough history")
			return OutcomeInsufficientData
		}
		e.fail(ctx, err)
		return OutcomeFailed
	}

	price := latest.Close
	exit, err := e.risk.CheckStopLossTakeProfit(ctx, price)
	if err != nil {
		e.fail(ctx, err)
		return OutcomeFailed
	}
	if exit != risk.ExitNone {
		e.log.Info().Str("exit", string(exit)).Str("px", price.String()).Msg("position closed by exit rule")
		e.notify(ctx, fmt.Sprintf("Position closed at %s", price))
		return OutcomePositionClosed
	}

	sig, err := e.strategy.Evaluate(rows)
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) {
			e.log.Info().Err(err).Msg("indicators still warming up")
			return OutcomeInsufficientData
		}
		e.fail(ctx, err)
		return OutcomeFailed
	}
	e.log.Debug().
		Bool("buy", sig.Buy).
		Bool("sell", sig.Sell).
		Float64("rsi", sig.RSI).
		Str("trend", string(sig.Trend)).
		Str("reason", sig.Reason).
		Msg("signal")

	switch {
	case sig.Buy && e.risk.CanBuy():
		if _, err := e.risk.RequestBuy(ctx, price); err != nil {
			e.fail(ctx, err)
			return OutcomeFailed
		}
		e.notify(ctx, tradeMessage("Buy", price, sig))
		return OutcomeBought
	case sig.Sell && e.risk.InPosition():
		if _, err := e.risk.RequestSell(ctx, price); err != nil {
			e.fail(ctx, err)
			return OutcomeFailed
		}
		e.notify(ctx, tradeMessage("Sell", price, sig))
		return OutcomeSold
	}
	if sig.Buy {
		state := e.risk.Snapshot()
		e.log.Info().Bool("in_position", state.Position.InPosition).Int("trades_today", state.Daily.Count).Msg("buy signal gated")
	}
	return OutcomeHeld
}

func tradeMessage(side string, price decimal.Decimal, sig signal.Signal) string {
	return fmt.Sprintf("%s order executed at %s\nRSI: %.2f\nEMA Status: %s", side, price, sig.RSI, sig.Trend)
}

func (e *Engine) recordAttempt(err error) {
	metrics.BarFetchAttemptsTotal.WithLabelValues(exchange.Classify(err)).Inc()
	if err != nil {
		e.log.Debug().Err(err).Msg("bar fetch attempt failed")
	}
}

func (e *Engine) fail(ctx context.Context, err error) {
	e.log.Error().Err(err).Msg("cycle failed")
	e.notify(ctx, fmt.Sprintf("Error occurred: %v", err))
}

// notify is best effort; delivery failures are only logged.
func (e *Engine) notify(ctx context.Context, text string) {
	if err := e.notifier.Send(ctx, text); err != nil {
		e.log.Warn().Err(err).Msg("notification not delivered")
	}
}
