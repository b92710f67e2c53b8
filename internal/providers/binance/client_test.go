package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
)

func TestPricesFromTickerStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/24hr" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		symbols := r.URL.Query().Get("symbols")
		if !strings.Contains(symbols, "BTCUSDT") || !strings.Contains(symbols, "ETHUSDT") || strings.Contains(symbols, "MATIC") {
			t.Errorf("unexpected symbols: %s", symbols)
		}
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"65000.10","priceChangePercent":"-1.50"},
			{"symbol":"ETHUSDT","lastPrice":"3200.00","priceChangePercent":"2.00"}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	prices, err := c.Prices(context.Background(), []string{"BTC", "eth", "MATIC", "USDT"})
	if err != nil {
		t.Fatalf("Prices failed: %v", err)
	}
	if prices["BTC"].Price != 65000.10 || prices["BTC"].Change24h != -1.5 {
		t.Fatalf("unexpected BTC quote: %+v", prices["BTC"])
	}
	if prices["ETH"].Price != 3200 {
		t.Fatalf("unexpected ETH quote: %+v", prices["ETH"])
	}
	if prices["USDT"].Price != 1 {
		t.Fatalf("expected USDT pegged at 1, got %+v", prices["USDT"])
	}
	if prices.Has("MATIC") {
		t.Fatal("expected unlisted symbol to be skipped")
	}
}

func TestPricesMapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Prices(context.Background(), []string{"BTC"})
	if !clierr.Is(err, clierr.CodeRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}
