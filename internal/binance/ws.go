package binance

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// PriceFeed maintains a live mid-price cache from the bookTicker stream so
// the trading loop can avoid a REST round trip per symbol. Prices older than
// maxAge are treated as absent and the caller falls back to REST.
type PriceFeed struct {
	url            string
	reconnectDelay time.Duration
	maxAge         time.Duration
	symbols        []string
	log            *zap.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	prices map[string]pricePoint
}

type pricePoint struct {
	price float64
	at    time.Time
}

func NewPriceFeed(url string, symbols []string, reconnectDelay, maxAge time.Duration, log *zap.Logger) *PriceFeed {
	return &PriceFeed{
		url:            url,
		reconnectDelay: reconnectDelay,
		maxAge:         maxAge,
		symbols:        symbols,
		log:            log,
		prices:         make(map[string]pricePoint),
	}
}

// Price returns the cached mid price when it is fresh enough to trade on.
func (f *PriceFeed) Price(symbol string) (float64, bool) {
	f.mu.RLock()
	point, ok := f.prices[symbol]
	f.mu.RUnlock()
	if !ok || time.Since(point.at) > f.maxAge {
		return 0, false
	}
	return point.price, true
}

// Run keeps the stream connected until ctx is cancelled, resubscribing after
// every reconnect.
func (f *PriceFeed) Run(ctx context.Context) error {
	for {
		if err := f.connectAndSubscribe(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logStreamError("price feed connect failed", err)
		} else {
			err := f.readLoop(ctx)
			if ctx.Err() != nil {
				f.resetConn()
				return ctx.Err()
			}
			f.logStreamError("price feed read loop ended", err)
		}
		f.resetConn()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *PriceFeed) connectAndSubscribe(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		return err
	}
	params := make([]string, 0, len(f.symbols))
	for _, sym := range f.symbols {
		params = append(params, strings.ToLower(sym)+"@bookTicker")
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "marshal subscribe")
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe write")
		return err
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	return nil
}

func (f *PriceFeed) readLoop(ctx context.Context) error {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return errors.New("price feed not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		f.handleMessage(data)
	}
}

func (f *PriceFeed) handleMessage(data []byte) {
	var tick struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
	}
	if err := json.Unmarshal(data, &tick); err != nil || tick.Symbol == "" {
		return
	}
	bid, errBid := strconv.ParseFloat(tick.Bid, 64)
	ask, errAsk := strconv.ParseFloat(tick.Ask, 64)
	if errBid != nil || errAsk != nil || bid <= 0 || ask <= 0 {
		return
	}
	f.mu.Lock()
	f.prices[tick.Symbol] = pricePoint{price: (bid + ask) / 2, at: time.Now()}
	f.mu.Unlock()
}

func (f *PriceFeed) logStreamError(msg string, err error) {
	if f.log == nil || err == nil {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		f.log.Info(msg, zap.Error(err))
		return
	}
	f.log.Warn(msg, zap.Error(err))
}

func (f *PriceFeed) resetConn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close(websocket.StatusNormalClosure, "reset")
		f.conn = nil
	}
}
