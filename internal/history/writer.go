// Package history mirrors executed trades and per-cycle position snapshots
// into Postgres for offline analysis. It is strictly best-effort: writes are
// queued and dropped under backpressure so the trading loop never blocks on
// the database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"rsibot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type Trade struct {
	Time      time.Time
	Symbol    string
	Action    string
	Price     float64
	Quantity  float64
	Signal    float64
	PctChange float64
}

type PositionSnapshot struct {
	Time       time.Time
	Symbol     string
	InPosition bool
	EntryPrice float64
	AuxPrice   float64
	Price      float64
	Signal     float64
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	trades    chan Trade
	snapshots chan PositionSnapshot
	started   atomic.Bool
	dropTrade atomic.Uint64
	dropSnap  atomic.Uint64
}

// New returns nil (not an error) when no DSN is configured, so callers can
// hold a nil *Writer and every method stays safe to call.
func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, nil
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		trades:    make(chan Trade, 256),
		snapshots: make(chan PositionSnapshot, 256),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) RecordTrade(trade Trade) {
	if w == nil {
		return
	}
	select {
	case w.trades <- trade:
	default:
		if w.dropTrade.Add(1) == 1 && w.log != nil {
			w.log.Warn("history trade queue full")
		}
	}
}

func (w *Writer) RecordSnapshot(snap PositionSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.snapshots <- snap:
	default:
		if w.dropSnap.Add(1) == 1 && w.log != nil {
			w.log.Warn("history snapshot queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade := <-w.trades:
			w.writeTrade(ctx, trade)
		case snap := <-w.snapshots:
			w.writeSnapshot(ctx, snap)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		signal DOUBLE PRECISION NOT NULL,
		pct_change DOUBLE PRECISION NOT NULL
	)`, w.table("trades"))); err != nil {
		return err
	}
	return w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		in_position BOOLEAN NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		aux_price DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		signal DOUBLE PRECISION NOT NULL
	)`, w.table("position_snapshots")))
}

func (w *Writer) writeTrade(ctx context.Context, trade Trade) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, symbol, action, price, quantity, signal, pct_change)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("trades"))
	if _, err := w.db.ExecContext(ctx, query,
		trade.Time, trade.Symbol, trade.Action, trade.Price, trade.Quantity, trade.Signal, trade.PctChange,
	); err != nil && w.log != nil {
		w.log.Warn("history trade insert failed", zap.Error(err))
	}
}

func (w *Writer) writeSnapshot(ctx context.Context, snap PositionSnapshot) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, symbol, in_position, entry_price, aux_price, price, signal)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("position_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time, snap.Symbol, snap.InPosition, snap.EntryPrice, snap.AuxPrice, snap.Price, snap.Signal,
	); err != nil && w.log != nil {
		w.log.Warn("history snapshot insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
