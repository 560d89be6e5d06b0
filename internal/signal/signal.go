// Package signal standardizes payloads shared between data ingestion and strategy layers.
package signal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar models one OHLCV candle as delivered by a market data source.
type Bar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Trend reports the EMA regime at the latest bar.
type Trend string

const (
	// Bullish means the short EMA sits above the long EMA.
	Bullish Trend = "bullish"
	// Bearish covers every other case, including equality.
	Bearish Trend = "bearish"
)

// Signal is the buy/sell verdict for the latest bar. Buy and Sell may both be true.
type Signal struct {
	Buy    bool
	Sell   bool
	Price  decimal.Decimal
	RSI    float64
	Trend  Trend
	Time   time.Time
	Reason string
}
