// Package audit keeps the append-only CSV trail of every trade action.
package audit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

var header = []string{"timestamp", "symbol", "action", "price", "signal", "pct_change", "aux_price", "current_price"}

// Record is one trade action. PctChange is nil on entries, which renders as
// an empty column.
type Record struct {
	Time         time.Time
	Symbol       string
	Action       Action
	Price        float64
	Signal       float64
	PctChange    *float64
	AuxPrice     float64
	CurrentPrice float64
}

type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open appends to an existing log or creates it with the header row. The
// header is written exactly once over the lifetime of the file.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	log := &Log{file: file}
	if info.Size() == 0 {
		if err := log.writeRow(header); err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	return log, nil
}

func (l *Log) Append(rec Record) error {
	pctChange := ""
	if rec.PctChange != nil {
		pctChange = strconv.FormatFloat(*rec.PctChange, 'f', 2, 64)
	}
	return l.writeRow([]string{
		rec.Time.Format("2006-01-02 15:04:05"),
		rec.Symbol,
		string(rec.Action),
		strconv.FormatFloat(rec.Price, 'f', -1, 64),
		strconv.FormatFloat(rec.Signal, 'f', 2, 64),
		pctChange,
		strconv.FormatFloat(rec.AuxPrice, 'f', -1, 64),
		strconv.FormatFloat(rec.CurrentPrice, 'f', -1, 64),
	})
}

func (l *Log) writeRow(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := csv.NewWriter(l.file)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
