// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"cobabot-go/internal/engine"
	"cobabot-go/internal/indicator"
	"cobabot-go/internal/risk"
	"cobabot-go/internal/strategy"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	LogFile     string `yaml:"log_file"`
	Timezone    string `yaml:"timezone"`
}

// Exchange describes the venue, the instrument, and the HTTP client knobs.
type Exchange struct {
	Provider         string `yaml:"provider" validate:"oneof=indodax stub"`
	Symbol           string `yaml:"symbol" validate:"required"`
	Timeframe        string `yaml:"timeframe" validate:"oneof=1m 15m 30m 1h 4h 1d 3d 1w"`
	BarLimit         int    `yaml:"bar_limit" validate:"gte=2,lte=1000"`
	BaseURL          string `yaml:"base_url" validate:"omitempty,url"`
	TradeURL         string `yaml:"trade_url" validate:"omitempty,url"`
	RateLimitMs      int    `yaml:"rate_limit_ms" validate:"gte=0"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms" validate:"gte=0"`
	APIKey           string `yaml:"api_key"`
	APISecret        string `yaml:"api_secret"`
}

// Risk encodes sizing and exit guard-rails.
type Risk struct {
	InvestmentNotional float64 `yaml:"investment_notional" validate:"gt=0"`
	StopLossFraction   float64 `yaml:"stop_loss_fraction" validate:"gt=0,lt=1"`
	TakeProfitFraction float64 `yaml:"take_profit_fraction" validate:"gt=0"`
	MaxDailyTrades     int     `yaml:"max_daily_trades" validate:"gte=1"`
	AmountPrecision    int32   `yaml:"amount_precision" validate:"gte=0,lte=18"`
}

// Strategy groups the indicator windows and RSI thresholds.
type Strategy struct {
	RSIPeriod        int     `yaml:"rsi_period" validate:"gte=1"`
	RSIOverbought    float64 `yaml:"rsi_overbought" validate:"gt=0,lte=100"`
	RSIOversold      float64 `yaml:"rsi_oversold" validate:"gt=0,lt=100"`
	EMAShortPeriod   int     `yaml:"ema_short_period" validate:"gte=1"`
	EMALongPeriod    int     `yaml:"ema_long_period" validate:"gte=1"`
	BollingerPeriod  int     `yaml:"bollinger_period" validate:"gte=2"`
	BollingerStdDev  float64 `yaml:"bollinger_std_dev" validate:"gt=0"`
	MACDFastPeriod   int     `yaml:"macd_fast_period" validate:"gte=1"`
	MACDSlowPeriod   int     `yaml:"macd_slow_period" validate:"gtfield=MACDFastPeriod"`
	MACDSignalPeriod int     `yaml:"macd_signal_period" validate:"gte=1"`
}

// Loop sets the polling cadence and fetch retry policy.
type Loop struct {
	PollIntervalSeconds    int `yaml:"poll_interval_seconds" validate:"gte=1"`
	FetchRetryCount        int `yaml:"fetch_retry_count" validate:"gte=1"`
	FetchRetryDelaySeconds int `yaml:"fetch_retry_delay_seconds" validate:"gte=0"`
	MaxBarAgeSeconds       int `yaml:"max_bar_age_seconds" validate:"gte=0"`
}

// Notify holds Telegram delivery settings; empty token or chat means log only.
type Notify struct {
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	TelegramBaseURL  string `yaml:"telegram_base_url" validate:"omitempty,url"`
}

// Paper captures paper-trading account settings.
type Paper struct {
	StartingCash float64 `yaml:"starting_cash" validate:"gte=0"`
	SlippageBps  float64 `yaml:"slippage_bps" validate:"gte=0"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Risk     Risk     `yaml:"risk"`
	Strategy Strategy `yaml:"strategy"`
	Loop     Loop     `yaml:"loop"`
	Notify   Notify   `yaml:"notify"`
	Paper    Paper    `yaml:"paper"`
}

// Default returns the stock bot: BTC/IDR hourly, 100k IDR per trade.
func Default() Config {
	return Config{
		App:      App{Name: "cobabot", Env: "dev", MetricsAddr: ":9090", LogLevel: "info", Timezone: "Local"},
		Exchange: Exchange{Provider: "indodax", Symbol: "BTC/IDR", Timeframe: "1h", BarLimit: 100, RateLimitMs: 1000, RequestTimeoutMs: 10000},
		Risk:     Risk{InvestmentNotional: 100000, StopLossFraction: 0.02, TakeProfitFraction: 0.03, MaxDailyTrades: 3, AmountPrecision: 8},
		Strategy: Strategy{
			RSIPeriod: 14, RSIOverbought: 70, RSIOversold: 30,
			EMAShortPeriod: 9, EMALongPeriod: 21,
			BollingerPeriod: 20, BollingerStdDev: 2,
			MACDFastPeriod: 12, MACDSlowPeriod: 26, MACDSignalPeriod: 9,
		},
		Loop:  Loop{PollIntervalSeconds: 60, FetchRetryCount: 3, FetchRetryDelaySeconds: 5},
		Paper: Paper{StartingCash: 1_000_000, SlippageBps: 5},
	}
}

// Load reads a YAML file over the defaults, overlays secrets from the
// environment (and .env when present) and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	_ = godotenv.Load() // best-effort
	config.ApplyEnv(os.LookupEnv)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyEnv overlays credentials and the log level from lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Exchange.APIKey, "INDODAX_API_KEY")
	set(&c.Exchange.APISecret, "INDODAX_API_SECRET")
	set(&c.Notify.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	set(&c.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")
	set(&c.App.LogLevel, "COBABOT_LOG_LEVEL")
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone: %w", ErrInvalidConfig, err)
	}
	if _, err := indicator.NewEngine(c.IndicatorParams()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.StrategyParams().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.RiskLimits().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if need := c.IndicatorParams().SignalWarmup(); c.Exchange.BarLimit < need {
		return fmt.Errorf("%w: bar_limit %d is below the %d bars the signal needs",
			ErrInvalidConfig, c.Exchange.BarLimit, need)
	}
	return nil
}

// Save persists a Config struct to disk as YAML. Secrets are left out; they
// belong in the environment.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	out := *cfg
	out.Exchange.APIKey, out.Exchange.APISecret = "", ""
	out.Notify.TelegramBotToken = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Location resolves App.Timezone; empty or "Local" is the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" || c.App.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.App.Timezone)
}

// IndicatorParams maps the strategy section onto indicator windows.
func (c *Config) IndicatorParams() indicator.Params {
	s := c.Strategy
	return indicator.Params{
		RSIPeriod:       s.RSIPeriod,
		EMAShortPeriod:  s.EMAShortPeriod,
		EMALongPeriod:   s.EMALongPeriod,
		BollingerPeriod: s.BollingerPeriod,
		BollingerStdDev: s.BollingerStdDev,
		MACDFastPeriod:  s.MACDFastPeriod,
		MACDSlowPeriod:  s.MACDSlowPeriod,
		MACDSignal:      s.MACDSignalPeriod,
	}
}

// StrategyParams returns the RSI band.
func (c *Config) StrategyParams() strategy.Params {
	return strategy.Params{RSIOverbought: c.Strategy.RSIOverbought, RSIOversold: c.Strategy.RSIOversold}
}

// RiskLimits converts the risk section to exact decimals.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		Notional:        decimal.NewFromFloat(c.Risk.InvestmentNotional),
		StopLoss:        decimal.NewFromFloat(c.Risk.StopLossFraction),
		TakeProfit:      decimal.NewFromFloat(c.Risk.TakeProfitFraction),
		MaxDailyTrades:  c.Risk.MaxDailyTrades,
		AmountPrecision: c.Risk.AmountPrecision,
	}
}

// EngineConfig returns the loop cadence.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Symbol:       c.Exchange.Symbol,
		Timeframe:    c.Exchange.Timeframe,
		BarLimit:     c.Exchange.BarLimit,
		PollInterval: time.Duration(c.Loop.PollIntervalSeconds) * time.Second,
		Retry: engine.RetryPolicy{
			Attempts: c.Loop.FetchRetryCount,
			Delay:    time.Duration(c.Loop.FetchRetryDelaySeconds) * time.Second,
		},
		MaxBarAge: time.Duration(c.Loop.MaxBarAgeSeconds) * time.Second,
	}
}

// RateLimit returns the request spacing.
func (e Exchange) RateLimit() time.Duration {
	return time.Duration(e.RateLimitMs) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout.
func (e Exchange) RequestTimeout() time.Duration {
	return time.Duration(e.RequestTimeoutMs) * time.Millisecond
}

// TelegramEnabled reports whether both token and chat are set.
func (n Notify) TelegramEnabled() bool {
	return n.TelegramBotToken != "" && n.TelegramChatID != ""
}
