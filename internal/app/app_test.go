package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobabot-go/internal/config"
	"cobabot-go/internal/engine"
	"cobabot-go/internal/exchange"
	"cobabot-go/internal/notify"
	"cobabot-go/internal/paper"
)

var fixedNow = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

type captured struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captured) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	return nil
}

func stubConfig() *config.Config {
	cfg := config.Default()
	cfg.Exchange.Provider = exchange.ProviderStub
	cfg.App.Timezone = "UTC"
	return &cfg
}

func TestBuildStubLoopSteps(t *testing.T) {
	cfg := stubConfig()
	gw := paper.NewGateway(paper.NewAccount(decimal.NewFromInt(1_000_000)), zerolog.Nop())
	note := &captured{}

	bot, err := Build(cfg, gw, zerolog.Nop(),
		WithFeedOptions(exchange.WithClock(func() time.Time { return fixedNow })),
		WithClock(engine.ClockFunc(func() time.Time { return fixedNow })),
		WithNotifier(note),
	)
	require.NoError(t, err)
	assert.Equal(t, exchange.ProviderStub, bot.Feed.Provider())
	assert.Equal(t, 60*time.Second, bot.Engine.Period())

	outcome := bot.Engine.Step(context.Background())
	assert.Contains(t, []engine.Outcome{engine.OutcomeBought, engine.OutcomeHeld}, outcome)
	if outcome == engine.OutcomeBought {
		assert.True(t, bot.Risk.InPosition())
		require.Len(t, note.msgs, 1)
		assert.Contains(t, note.msgs[0], "Buy order executed at")
	}
}

func TestBuildRejectsBadTimezone(t *testing.T) {
	cfg := stubConfig()
	cfg.App.Timezone = "Nowhere/Atlantis"
	_, err := Build(cfg, paper.NewGateway(paper.NewAccount(decimal.Zero), zerolog.Nop()), zerolog.Nop())
	require.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	cfg := stubConfig()
	n, err := NewNotifier(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &notify.Log{}, n)

	cfg.Notify.TelegramBotToken = "tok"
	cfg.Notify.TelegramChatID = "42"
	n, err = NewNotifier(cfg, zerolog.Nop())
	require.NoError(t, err)
	multi, ok := n.(notify.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestExchangeOptions(t *testing.T) {
	cfg := stubConfig()
	cfg.Exchange.RateLimitMs = 0
	cfg.Exchange.RequestTimeoutMs = 0
	assert.Empty(t, ExchangeOptions(cfg))

	cfg.Exchange.BaseURL = "http://localhost:1"
	cfg.Exchange.RateLimitMs = 250
	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"
	assert.Len(t, ExchangeOptions(cfg), 3)
}

func TestLoggerWritesFile(t *testing.T) {
	cfg := stubConfig()
	cfg.App.LogFile = filepath.Join(t.TempDir(), "bot.log")
	log, closer, err := Logger(cfg)
	require.NoError(t, err)
	Describe(cfg, log)
	require.NoError(t, closer())

	data, err := os.ReadFile(cfg.App.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Bot initialized successfully")
	assert.Contains(t, string(data), `"app":"cobabot"`)
}
