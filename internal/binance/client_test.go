package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, "test-key", "test-secret", 5*time.Second, zap.NewNop())
}

func TestSymbolFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/exchangeInfo" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "ETHUSDT" {
			t.Errorf("unexpected symbol %q", got)
		}
		w.Write([]byte(`{"symbols":[{"symbol":"ETHUSDT","filters":[
			{"filterType":"LOT_SIZE","minQty":"0.0001","stepSize":"0.0001","maxQty":"9000"},
			{"filterType":"NOTIONAL","minNotional":"5.00000000"},
			{"filterType":"PRICE_FILTER","minPrice":"0.01"}
		]}]}`))
	})

	filter, err := client.SymbolFilters(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("symbol filters: %v", err)
	}
	if filter.MinQty != 0.0001 || filter.StepSize != 0.0001 || filter.MinNotional != 5 {
		t.Fatalf("unexpected filter: %#v", filter)
	}
}

func TestSymbolFiltersLegacyMinNotional(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[{"symbol":"ADAUSDT","filters":[
			{"filterType":"LOT_SIZE","minQty":"0.1","stepSize":"0.1"},
			{"filterType":"MIN_NOTIONAL","minNotional":"10"}
		]}]}`))
	})

	filter, err := client.SymbolFilters(context.Background(), "ADAUSDT")
	if err != nil {
		t.Fatalf("symbol filters: %v", err)
	}
	if filter.MinNotional != 10 {
		t.Fatalf("expected minNotional 10, got %v", filter.MinNotional)
	}
}

func TestSymbolFiltersMissingSymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[]}`))
	})
	if _, err := client.SymbolFilters(context.Background(), "NOPEUSDT"); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}

func TestSymbolFiltersMissingLotSize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[{"symbol":"ETHUSDT","filters":[
			{"filterType":"NOTIONAL","minNotional":"5"}
		]}]}`))
	})
	if _, err := client.SymbolFilters(context.Background(), "ETHUSDT"); err == nil {
		t.Fatalf("expected error without LOT_SIZE")
	}
}

func TestCandles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "ETHUSDT" || q.Get("interval") != "1m" || q.Get("limit") != "2" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte(`[
			[1700000000000,"2500.0","2510.5","2490.1","2505.3","120.5",1700000059999,"0","0","0","0","0"],
			[1700000060000,"2505.3","2520.0","2500.0","2518.7","98.2",1700000119999,"0","0","0","0","0"]
		]`))
	})

	candles, err := client.Candles(context.Background(), "ETHUSDT", "1m", 2)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	first := candles[0]
	if first.OpenTime != 1700000000000 || first.Open != 2500 || first.Close != 2505.3 || first.Volume != 120.5 {
		t.Fatalf("unexpected candle: %#v", first)
	}
	if candles[1].Close != 2518.7 {
		t.Fatalf("unexpected second close: %v", candles[1].Close)
	}
}

func TestCandlesMalformedRow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1700000000000,"2500.0"]]`))
	})
	if _, err := client.Candles(context.Background(), "ETHUSDT", "1m", 1); err == nil {
		t.Fatalf("expected error for short kline row")
	}
}

func TestPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"2505.31000000"}`))
	})

	price, err := client.Price(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price != 2505.31 {
		t.Fatalf("expected 2505.31, got %v", price)
	}
}

func TestMarketBuySignsRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v3/order" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-MBX-APIKEY"); got != "test-key" {
			t.Errorf("unexpected api key header %q", got)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "ETHUSDT" || q.Get("side") != "BUY" || q.Get("type") != "MARKET" {
			t.Errorf("unexpected order params %v", q)
		}
		if q.Get("quantity") != "0.05" {
			t.Errorf("unexpected quantity %q", q.Get("quantity"))
		}
		if q.Get("timestamp") == "" {
			t.Errorf("missing timestamp")
		}

		raw := r.URL.RawQuery
		idx := strings.Index(raw, "&signature=")
		if idx < 0 {
			t.Fatalf("missing signature in %q", raw)
		}
		signed, signature := raw[:idx], raw[idx+len("&signature="):]
		mac := hmac.New(sha256.New, []byte("test-secret"))
		mac.Write([]byte(signed))
		if want := hex.EncodeToString(mac.Sum(nil)); signature != want {
			t.Errorf("bad signature: got %s want %s", signature, want)
		}

		w.Write([]byte(`{"orderId":123,"status":"FILLED"}`))
	})

	if err := client.MarketBuy(context.Background(), "ETHUSDT", 0.05); err != nil {
		t.Fatalf("market buy: %v", err)
	}
}

func TestMarketSellAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})

	err := client.MarketSell(context.Background(), "ETHUSDT", 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != -2010 {
		t.Fatalf("unexpected api error: %#v", apiErr)
	}
	if !strings.Contains(apiErr.Error(), "insufficient balance") {
		t.Fatalf("unexpected message: %s", apiErr.Error())
	}
}
