package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var fixedNow = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func TestStubFeedEmitsOrderedBars(t *testing.T) {
	feed := NewFeed(ProviderStub, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))

	bars, err := feed.FetchRecentBars(context.Background(), "BTC/IDR", "1h", 100)
	if err != nil {
		t.Fatalf("FetchRecentBars returned error: %v", err)
	}
	if len(bars) != 100 {
		t.Fatalf("expected 100 bars, got %d", len(bars))
	}
	if !bars[99].Time.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last bar time %s", bars[99].Time)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			t.Fatalf("bars not strictly increasing at %d", i)
		}
		if !bars[i].Open.Equal(bars[i-1].Close) {
			t.Fatalf("bar %d does not open at previous close", i)
		}
		if bars[i].High.LessThan(bars[i].Low) {
			t.Fatalf("bar %d high below low", i)
		}
	}
	if feed.MinInterval() != 0 {
		t.Fatalf("stub should not impose spacing")
	}
}

func TestStubFeedHonoursPathAndContext(t *testing.T) {
	feed := NewFeed("", zerolog.Nop(),
		WithClock(func() time.Time { return fixedNow }),
		WithStubPath(func(time.Time) float64 { return 42 }),
	)
	if feed.Provider() != ProviderStub {
		t.Fatalf("empty provider should default to stub")
	}
	bars, err := feed.FetchRecentBars(context.Background(), "BTC/IDR", "15m", 3)
	if err != nil {
		t.Fatalf("FetchRecentBars returned error: %v", err)
	}
	if bars[2].Close.IntPart() != 42 || bars[1].Time.Sub(bars[0].Time) != 15*time.Minute {
		t.Fatalf("unexpected bars %+v", bars)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := feed.FetchRecentBars(ctx, "BTC/IDR", "1h", 3); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error on cancelled context, got %v", err)
	}
	if _, err := feed.FetchRecentBars(context.Background(), "BTC/IDR", "7m", 3); !errors.Is(err, ErrExchange) {
		t.Fatalf("expected exchange error on bad timeframe, got %v", err)
	}
}

func TestParseSymbol(t *testing.T) {
	cases := map[string]string{
		"BTC/IDR": "btc_idr",
		"btc_idr": "btc_idr",
		"eth-idr": "eth_idr",
	}
	for in, pair := range cases {
		m, err := ParseSymbol(in)
		if err != nil {
			t.Fatalf("ParseSymbol(%q) returned error: %v", in, err)
		}
		if m.PairID() != pair {
			t.Fatalf("expected %s got %s", pair, m.PairID())
		}
	}
	m, _ := ParseSymbol("BTC/IDR")
	if m.ChartID() != "BTCIDR" || m.String() != "BTC/IDR" {
		t.Fatalf("unexpected market ids %s %s", m.ChartID(), m)
	}
	for _, bad := range []string{"", "BTCIDR", "/IDR"} {
		if _, err := ParseSymbol(bad); !errors.Is(err, ErrExchange) {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestIndodaxFeedDecodesHistory(t *testing.T) {
	const body = `[
		{"Time":1714554000,"Open":1010,"High":1030,"Low":1000,"Close":1020,"Volume":"0.5"},
		{"Time":1714550400,"Open":"1000","High":"1015","Low":"990","Close":"1010","Volume":"1.25"},
		{"Time":1714554000,"Open":1010,"High":1040,"Low":1000,"Close":1035,"Volume":"0.7"}
	]`
	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tradingview/history_v2" {
			http.NotFound(w, r)
			return
		}
		gotQuery.Store(r.URL.Query())
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	feed := NewFeed(ProviderIndodax, zerolog.Nop(),
		WithBaseURL(server.URL),
		WithRateLimit(time.Millisecond),
		WithClock(func() time.Time { return fixedNow }),
	)
	bars, err := feed.FetchRecentBars(context.Background(), "BTC/IDR", "1h", 100)
	if err != nil {
		t.Fatalf("FetchRecentBars returned error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected duplicate timestamp collapsed into 2 bars, got %d", len(bars))
	}
	if bars[0].Time.Unix() != 1714550400 || bars[1].Close.IntPart() != 1035 {
		t.Fatalf("unexpected bars %+v", bars)
	}
	if bars[0].Volume.String() != "1.25" {
		t.Fatalf("expected quoted volume decoded, got %s", bars[0].Volume)
	}

	q := gotQuery.Load().(url.Values)
	if q["symbol"][0] != "BTCIDR" || q["tf"][0] != "60" {
		t.Fatalf("unexpected query %v", q)
	}
	if q["to"][0] != "1714559400" {
		t.Fatalf("unexpected window end %v", q["to"])
	}
	if feed.MinInterval() != time.Millisecond {
		t.Fatalf("unexpected min interval %s", feed.MinInterval())
	}
}

func TestIndodaxFeedTrimsToCount(t *testing.T) {
	const body = `[
		{"Time":100,"Open":1,"High":1,"Low":1,"Close":1,"Volume":1},
		{"Time":200,"Open":2,"High":2,"Low":2,"Close":2,"Volume":1},
		{"Time":300,"Open":3,"High":3,"Low":3,"Close":3,"Volume":1}
	]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewIndodaxClient(zerolog.Nop(), WithBaseURL(server.URL), WithRateLimit(time.Millisecond))
	bars, err := client.FetchRecentBars(context.Background(), "BTC/IDR", "1m", 2)
	if err != nil {
		t.Fatalf("FetchRecentBars returned error: %v", err)
	}
	if len(bars) != 2 || bars[0].Close.IntPart() != 2 {
		t.Fatalf("expected newest two bars, got %+v", bars)
	}
}

func TestIndodaxFeedErrorKinds(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"status":   {http.StatusBadGateway, "bad gateway"},
		"api":      {http.StatusOK, `{"error":"invalid_symbol","error_description":"Symbol not found"}`},
		"garbage":  {http.StatusOK, `<html>`},
		"negative": {http.StatusOK, `[{"Time":100,"Open":1,"High":1,"Low":1,"Close":-1,"Volume":1}]`},
		"inverted": {http.StatusOK, `[{"Time":100,"Open":1,"High":1,"Low":2,"Close":1,"Volume":1}]`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewIndodaxClient(zerolog.Nop(), WithBaseURL(server.URL), WithRateLimit(time.Millisecond))
			_, err := client.FetchRecentBars(context.Background(), "BTC/IDR", "1h", 10)
			if !errors.Is(err, ErrExchange) {
				t.Fatalf("expected exchange error, got %v", err)
			}
			if Classify(err) != "exchange" {
				t.Fatalf("unexpected classification %s", Classify(err))
			}
		})
	}
}

func TestIndodaxFeedNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client := NewIndodaxClient(zerolog.Nop(), WithBaseURL(addr), WithRateLimit(time.Millisecond))
	_, err := client.FetchRecentBars(context.Background(), "BTC/IDR", "1h", 10)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if Classify(err) != "network" || Classify(nil) != "ok" {
		t.Fatalf("unexpected classification")
	}
}
