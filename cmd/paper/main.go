// Binary paper runs the trading loop against a simulated account.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"cobabot-go/internal/app"
	"cobabot-go/internal/config"
	"cobabot-go/internal/metrics"
	"cobabot-go/internal/paper"
	"cobabot-go/internal/util"
)

var (
	configPath = flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	stub       = flag.Bool("stub", false, "use synthetic bars instead of the exchange feed")
)

func main() {
	flag.Parse()
	boot := util.NewLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if *stub {
		cfg.Exchange.Provider = "stub"
	}
	log, closeLog, err := app.Logger(cfg)
	if err != nil {
		boot.Fatal().Err(err).Msg("open log file")
	}
	defer closeLog()

	srv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	account := paper.NewAccount(decimal.NewFromFloat(cfg.Paper.StartingCash))
	ledger := paper.NewLedger(256)
	gateway := paper.NewGateway(account, log, paper.WithSlippageBps(cfg.Paper.SlippageBps), paper.WithRecorder(ledger))

	bot, err := app.Build(cfg, gateway, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build bot")
	}
	app.Describe(cfg, log)

	if err := bot.Engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("loop stopped")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = srv.Shutdown(shutdownCtx)

	snap := account.Snapshot(nil)
	totals := ledger.Totals()
	log.Info().
		Int("buys", totals.Buys).
		Int("sells", totals.Sells).
		Str("net_quote", totals.Net().String()).
		Str("cash", snap.Cash.String()).
		Str("realized_pnl", snap.RealizedPnL.String()).
		Msg("shutting down")
}
