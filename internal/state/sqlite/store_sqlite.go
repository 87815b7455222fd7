// Package sqlite provides a SQLite-backed position store for deployments
// that outgrow the flat JSON file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"rsibot/internal/state"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS positions (symbol TEXT PRIMARY KEY, record TEXT NOT NULL)`)
	return err
}

func (s *Store) Load(ctx context.Context) (map[string]state.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, record FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	positions := make(map[string]state.Position)
	for rows.Next() {
		var symbol, record string
		if err := rows.Scan(&symbol, &record); err != nil {
			return nil, err
		}
		var pos state.Position
		if err := json.Unmarshal([]byte(record), &pos); err != nil {
			return nil, fmt.Errorf("decode position %s: %w", symbol, err)
		}
		positions[symbol] = pos
	}
	return positions, rows.Err()
}

// Save writes the whole map in one transaction so readers never see one
// symbol updated ahead of another.
func (s *Store) Save(ctx context.Context, positions map[string]state.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for symbol, pos := range positions {
		record, err := json.Marshal(pos)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO positions (symbol, record) VALUES (?, ?) ON CONFLICT(symbol) DO UPDATE SET record = excluded.record`,
			symbol, string(record)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}
