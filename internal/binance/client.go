// Package binance is the spot REST and stream client the engine trades
// through. Public market data goes unsigned; orders carry an HMAC-SHA256
// signature over the query string.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type Client struct {
	baseURL   string
	apiKey    string
	apiSecret []byte
	http      *http.Client
	log       *zap.Logger
}

func New(baseURL, apiKey, apiSecret string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// SymbolFilters fetches the LOT_SIZE and NOTIONAL filters for a symbol.
// Older exchangeInfo payloads name the notional filter MIN_NOTIONAL; a symbol
// without one trades with minNotional 0.
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (SymbolFilter, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var payload struct {
		Symbols []struct {
			Symbol  string           `json:"symbol"`
			Filters []map[string]any `json:"filters"`
		} `json:"symbols"`
	}
	if err := c.get(ctx, "/api/v3/exchangeInfo", params, &payload); err != nil {
		return SymbolFilter{}, err
	}
	for _, sym := range payload.Symbols {
		if sym.Symbol != symbol {
			continue
		}
		var filter SymbolFilter
		haveLot := false
		for _, f := range sym.Filters {
			switch f["filterType"] {
			case "LOT_SIZE":
				minQty, ok1 := parseFloatField(f, "minQty")
				stepSize, ok2 := parseFloatField(f, "stepSize")
				if !ok1 || !ok2 {
					return SymbolFilter{}, fmt.Errorf("malformed LOT_SIZE filter for %s", symbol)
				}
				filter.MinQty = minQty
				filter.StepSize = stepSize
				haveLot = true
			case "NOTIONAL", "MIN_NOTIONAL":
				if minNotional, ok := parseFloatField(f, "minNotional"); ok {
					filter.MinNotional = minNotional
				}
			}
		}
		if !haveLot {
			return SymbolFilter{}, fmt.Errorf("no LOT_SIZE filter for %s", symbol)
		}
		return filter, nil
	}
	return SymbolFilter{}, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

// Candles returns up to limit klines, oldest first, matching the exchange
// ordering.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	var rows [][]any
	if err := c.get(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}
	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKline(row []any) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return Candle{}, fmt.Errorf("kline open time has type %T", row[0])
	}
	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		str, ok := row[i].(string)
		if !ok {
			return Candle{}, fmt.Errorf("kline field %d has type %T", i, row[i])
		}
		val, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("kline field %d: %w", i, err)
		}
		fields[i-1] = val
	}
	return Candle{
		OpenTime: int64(openTime),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var payload struct {
		Price string `json:"price"`
	}
	if err := c.get(ctx, "/api/v3/ticker/price", params, &payload); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", payload.Price, err)
	}
	return price, nil
}

func (c *Client) MarketBuy(ctx context.Context, symbol string, quantity float64) error {
	return c.placeMarketOrder(ctx, symbol, "BUY", quantity)
}

func (c *Client) MarketSell(ctx context.Context, symbol string, quantity float64) error {
	return c.placeMarketOrder(ctx, symbol, "SELL", quantity)
}

func (c *Client) placeMarketOrder(ctx context.Context, symbol, side string, quantity float64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	var payload struct {
		OrderID int64  `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := c.signedPost(ctx, "/api/v3/order", params, &payload); err != nil {
		return err
	}
	if c.log != nil {
		c.log.Debug("market order accepted",
			zap.String("symbol", symbol),
			zap.String("side", side),
			zap.Float64("quantity", quantity),
			zap.Int64("order_id", payload.OrderID),
			zap.String("status", payload.Status),
		)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) signedPost(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()
	query += "&signature=" + c.sign(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	return c.do(req, out)
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, c.apiSecret)
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		apiErr := &APIError{Status: resp.StatusCode, Message: string(body)}
		var payload struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Msg != "" {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Msg
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
