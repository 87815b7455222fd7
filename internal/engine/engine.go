// Package engine runs the per-symbol trading loop: signal computation, the
// position state machine, order sizing and placement, persistence and audit.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rsibot/internal/audit"
	"rsibot/internal/binance"
	"rsibot/internal/config"
	"rsibot/internal/history"
	"rsibot/internal/indicator"
	"rsibot/internal/metrics"
	"rsibot/internal/sizing"
	"rsibot/internal/state"
	"rsibot/internal/strategy"

	"go.uber.org/zap"
)

// Gateway is the exchange surface the engine trades through. All calls block
// on the network and honor ctx cancellation.
type Gateway interface {
	SymbolFilters(ctx context.Context, symbol string) (binance.SymbolFilter, error)
	Candles(ctx context.Context, symbol, interval string, limit int) ([]binance.Candle, error)
	Price(ctx context.Context, symbol string) (float64, error)
	MarketBuy(ctx context.Context, symbol string, quantity float64) error
	MarketSell(ctx context.Context, symbol string, quantity float64) error
}

type Notifier interface {
	Send(ctx context.Context, message string) error
}

type SymbolStatus struct {
	InPosition bool    `json:"in_position"`
	EntryPrice float64 `json:"entry_price"`
	AuxPrice   float64 `json:"aux_price"`
	Signal     float64 `json:"signal"`
}

type Deps struct {
	Config  *config.Config
	Log     *zap.Logger
	Gateway Gateway
	Store   state.Store
	Audit   *audit.Log
	Policy  strategy.ExitPolicy
	Metrics *metrics.Metrics
	Alerts  Notifier
	History *history.Writer
	Feed    *binance.PriceFeed
}

type Engine struct {
	cfg     *config.Config
	log     *zap.Logger
	gateway Gateway
	store   state.Store
	audit   *audit.Log
	policy  strategy.ExitPolicy
	metrics *metrics.Metrics
	alerts  Notifier
	history *history.Writer
	feed    *binance.PriceFeed

	sizers map[string]sizing.Sizer

	mu      sync.RWMutex
	book    *state.Book
	signals map[string]float64
}

func New(deps Deps) *Engine {
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		cfg:     deps.Config,
		log:     deps.Log,
		gateway: deps.Gateway,
		store:   deps.Store,
		audit:   deps.Audit,
		policy:  deps.Policy,
		metrics: m,
		alerts:  deps.Alerts,
		history: deps.History,
		feed:    deps.Feed,
		sizers:  make(map[string]sizing.Sizer),
		signals: make(map[string]float64),
	}
}

// Run initializes filters and positions, then cycles until ctx is cancelled.
// Cycle failures back off and retry; nothing but cancellation stops the loop.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.init(ctx); err != nil {
		return err
	}
	if e.feed != nil {
		go func() {
			_ = e.feed.Run(ctx)
		}()
	}
	e.log.Info("trading loop started",
		zap.Int("symbols", len(e.cfg.Symbols)),
		zap.String("exit_policy", e.policy.Name()),
		zap.Duration("cycle_interval", e.cfg.Strategy.CycleInterval),
	)
	for {
		if err := e.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.metrics.CycleErrors.Inc()
			e.log.Warn("cycle failed", zap.Error(err))
			if err := sleepCtx(ctx, e.cfg.Strategy.ErrorBackoff); err != nil {
				return err
			}
			continue
		}
		if err := sleepCtx(ctx, e.cfg.Strategy.CycleInterval); err != nil {
			return err
		}
	}
}

func (e *Engine) init(ctx context.Context) error {
	symbols := make([]string, 0, len(e.cfg.Symbols))
	for _, sym := range e.cfg.Symbols {
		filter, err := e.gateway.SymbolFilters(ctx, sym.Symbol)
		if err != nil {
			return fmt.Errorf("filters for %s: %w", sym.Symbol, err)
		}
		e.sizers[sym.Symbol] = sizing.New(filter.MinQty, filter.StepSize, filter.MinNotional)
		symbols = append(symbols, sym.Symbol)
	}
	positions, err := state.LoadAndMigrate(ctx, e.store, symbols)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	e.mu.Lock()
	e.book = state.NewBook(positions)
	e.mu.Unlock()
	return nil
}

// cycle processes every symbol in turn. A data failure aborts the cycle so
// the caller can back off; order failures are absorbed per symbol.
func (e *Engine) cycle(ctx context.Context) error {
	budget := e.cfg.Strategy.BudgetUSD / float64(len(e.cfg.Symbols))
	for _, sym := range e.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processSymbol(ctx, sym, budget); err != nil {
			return fmt.Errorf("%s: %w", sym.Symbol, err)
		}
	}
	return nil
}

func (e *Engine) processSymbol(ctx context.Context, sym config.SymbolConfig, budget float64) error {
	candles, err := e.gateway.Candles(ctx, sym.Symbol, e.cfg.Strategy.CandleInterval, e.cfg.Strategy.CandleLimit)
	if err != nil {
		return fmt.Errorf("candles: %w", err)
	}
	closes := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = candle.Close
	}
	rsi, ok := indicator.RSI(closes, e.cfg.Strategy.RSIPeriod)
	if !ok {
		e.log.Debug("not enough candles for rsi", zap.String("symbol", sym.Symbol), zap.Int("candles", len(candles)))
		return nil
	}
	price, err := e.currentPrice(ctx, sym.Symbol)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	e.setSignal(sym.Symbol, rsi)

	book := e.positions()
	pos := book.Get(sym.Symbol)
	switch strategy.PhaseOf(pos) {
	case strategy.PhaseHolding:
		prevAux := e.policy.AuxPrice(pos)
		exit := e.policy.ShouldExit(&pos, price)
		if e.policy.AuxPrice(pos) != prevAux {
			book.Set(sym.Symbol, pos)
			e.persist(ctx)
		}
		if exit {
			e.exitPosition(ctx, sym.Symbol, pos, price, rsi, budget)
		}
	case strategy.PhaseIdle:
		if rsi < float64(sym.Oversold) {
			e.enterPosition(ctx, sym.Symbol, price, rsi, budget)
		}
	}

	final := book.Get(sym.Symbol)
	e.history.RecordSnapshot(history.PositionSnapshot{
		Time:       time.Now().UTC(),
		Symbol:     sym.Symbol,
		InPosition: final.InPosition,
		EntryPrice: final.EntryPrice,
		AuxPrice:   e.policy.AuxPrice(final),
		Price:      price,
		Signal:     rsi,
	})
	return nil
}

// enterPosition places a market buy. The fill reference is the ticker price,
// not the actual fill; the slippage is accepted. Order failures are logged
// and the symbol is retried naturally next cycle.
func (e *Engine) enterPosition(ctx context.Context, symbol string, price, rsi, budget float64) {
	qty := e.sizers[symbol].Quantity(budget, price)
	if qty == 0 {
		e.log.Debug("entry infeasible under exchange filters",
			zap.String("symbol", symbol), zap.Float64("price", price), zap.Float64("budget", budget))
		return
	}
	if err := e.gateway.MarketBuy(ctx, symbol, qty); err != nil {
		e.metrics.OrdersFailed.Inc()
		e.log.Error("market buy failed", zap.String("symbol", symbol), zap.Float64("qty", qty), zap.Error(err))
		return
	}
	e.metrics.OrdersPlaced.Inc()
	pos := state.Position{InPosition: true, EntryPrice: price}
	e.policy.Arm(&pos, price)
	e.positions().Set(symbol, pos)
	now := time.Now()
	if err := e.audit.Append(audit.Record{
		Time:         now,
		Symbol:       symbol,
		Action:       audit.ActionBuy,
		Price:        price,
		Signal:       rsi,
		AuxPrice:     e.policy.AuxPrice(pos),
		CurrentPrice: price,
	}); err != nil {
		e.log.Warn("audit append failed", zap.Error(err))
	}
	e.persist(ctx)
	e.metrics.PositionsOpened.Inc()
	e.history.RecordTrade(history.Trade{
		Time: now.UTC(), Symbol: symbol, Action: string(audit.ActionBuy),
		Price: price, Quantity: qty, Signal: rsi,
	})
	e.notify(ctx, fmt.Sprintf("BUY %s qty %g at %.6f (RSI %.2f)", symbol, qty, price, rsi))
	e.log.Info("entered position",
		zap.String("symbol", symbol), zap.Float64("price", price), zap.Float64("qty", qty), zap.Float64("rsi", rsi))
}

// exitPosition sells the quantity the entry bought: sizing runs against the
// entry price so the sell mirrors the original purchase.
func (e *Engine) exitPosition(ctx context.Context, symbol string, pos state.Position, price, rsi, budget float64) {
	qty := e.sizers[symbol].Quantity(budget, pos.EntryPrice)
	if qty == 0 {
		e.log.Warn("exit sizing returned zero", zap.String("symbol", symbol), zap.Float64("entry_price", pos.EntryPrice))
		return
	}
	if err := e.gateway.MarketSell(ctx, symbol, qty); err != nil {
		e.metrics.OrdersFailed.Inc()
		e.log.Error("market sell failed", zap.String("symbol", symbol), zap.Float64("qty", qty), zap.Error(err))
		return
	}
	e.metrics.OrdersPlaced.Inc()
	pctChange := (price - pos.EntryPrice) / pos.EntryPrice * 100
	aux := e.policy.AuxPrice(pos)
	e.positions().Set(symbol, state.Position{})
	now := time.Now()
	if err := e.audit.Append(audit.Record{
		Time:         now,
		Symbol:       symbol,
		Action:       audit.ActionSell,
		Price:        price,
		Signal:       rsi,
		PctChange:    &pctChange,
		AuxPrice:     aux,
		CurrentPrice: price,
	}); err != nil {
		e.log.Warn("audit append failed", zap.Error(err))
	}
	e.persist(ctx)
	e.metrics.PositionsClosed.Inc()
	e.history.RecordTrade(history.Trade{
		Time: now.UTC(), Symbol: symbol, Action: string(audit.ActionSell),
		Price: price, Quantity: qty, Signal: rsi, PctChange: pctChange,
	})
	e.notify(ctx, fmt.Sprintf("SELL %s qty %g at %.6f (%+.2f%%)", symbol, qty, price, pctChange))
	e.log.Info("exited position",
		zap.String("symbol", symbol), zap.Float64("price", price), zap.Float64("pct_change", pctChange))
}

// persist writes the whole book. On failure the in-memory state remains
// authoritative and the loop keeps trading.
func (e *Engine) persist(ctx context.Context) {
	if err := e.store.Save(ctx, e.positions().Snapshot()); err != nil {
		e.metrics.PersistErrors.Inc()
		e.log.Warn("state save failed", zap.Error(err))
	}
}

func (e *Engine) currentPrice(ctx context.Context, symbol string) (float64, error) {
	if e.feed != nil {
		if price, ok := e.feed.Price(symbol); ok {
			return price, nil
		}
	}
	return e.gateway.Price(ctx, symbol)
}

func (e *Engine) notify(ctx context.Context, message string) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Send(ctx, message); err != nil {
		e.log.Warn("alert send failed", zap.Error(err))
	}
}

func (e *Engine) positions() *state.Book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book
}

func (e *Engine) setSignal(symbol string, rsi float64) {
	e.mu.Lock()
	e.signals[symbol] = rsi
	e.mu.Unlock()
}

// Status reports a read-only snapshot for the control plane. Signals are the
// worker's last computed RSI values; nothing is refetched here.
func (e *Engine) Status() map[string]SymbolStatus {
	e.mu.RLock()
	book := e.book
	signals := make(map[string]float64, len(e.signals))
	for sym, rsi := range e.signals {
		signals[sym] = rsi
	}
	e.mu.RUnlock()

	out := make(map[string]SymbolStatus, len(e.cfg.Symbols))
	for _, sym := range e.cfg.Symbols {
		status := SymbolStatus{Signal: signals[sym.Symbol]}
		if book != nil {
			pos := book.Get(sym.Symbol)
			status.InPosition = pos.InPosition
			status.EntryPrice = pos.EntryPrice
			status.AuxPrice = e.policy.AuxPrice(pos)
		}
		out[sym.Symbol] = status
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
