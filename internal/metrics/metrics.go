// Package metrics registers the bot's Prometheus collectors and serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cycles_total", Help: "Control loop iterations by outcome"},
		[]string{"outcome"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	OrderFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_failures_total", Help: "Orders rejected or not confirmed"},
		[]string{"symbol", "side"},
	)
	BarFetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bar_fetch_attempts_total", Help: "OHLCV fetch attempts by result"},
		[]string{"result"},
	)
	PositionOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "position_open", Help: "1 while a position is held"},
		[]string{"symbol"},
	)
	DailyTrades = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "daily_trades", Help: "Buys executed on the current calendar day"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, OrdersTotal, OrderFailuresTotal, BarFetchAttemptsTotal, PositionOpen, DailyTrades)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
