// Binary executor runs the trading loop with live Indodax market orders.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"cobabot-go/internal/app"
	"cobabot-go/internal/config"
	"cobabot-go/internal/exchange"
	"cobabot-go/internal/metrics"
	"cobabot-go/internal/util"
)

var (
	configPath = flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	live       = flag.Bool("live", false, "confirm that real orders may be placed")
)

func main() {
	flag.Parse()
	boot := util.NewLogger("info")

	if !*live {
		boot.Fatal().Msg("refusing to trade without -live")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if cfg.Exchange.Provider != exchange.ProviderIndodax {
		boot.Fatal().Str("provider", cfg.Exchange.Provider).Msg("live trading needs the indodax provider")
	}
	log, closeLog, err := app.Logger(cfg)
	if err != nil {
		boot.Fatal().Err(err).Msg("open log file")
	}
	defer closeLog()

	gateway, err := exchange.NewTradeGateway(log, app.ExchangeOptions(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("trade gateway")
	}

	srv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	state := bot.Risk.Snapshot()
	log.Info().
		Bool("in_position", state.Position.InPosition).
		Int("trades_today", state.Daily.Count).
		Msg("shutting down")
}
