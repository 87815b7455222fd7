// Package state holds the per-symbol position records and their persistence
// contract. The trading worker is the sole writer; the control plane only
// ever sees snapshots.
package state

import "context"

// Position is the durable record kept for every configured symbol. While a
// position is open exactly one of PeakPrice (trailing policy) or TargetPrice
// (take-profit policy) is non-zero; a closed position is all zeroes.
type Position struct {
	InPosition  bool    `json:"in_position"`
	EntryPrice  float64 `json:"entry_price"`
	PeakPrice   float64 `json:"peak_price"`
	TargetPrice float64 `json:"target_price"`
}

type Store interface {
	Load(ctx context.Context) (map[string]Position, error)
	Save(ctx context.Context, positions map[string]Position) error
	Close() error
}

// Migrate fills in a default closed record for every configured symbol the
// loaded data is missing. Records for symbols no longer configured are kept:
// dropping them could orphan an open position. The bool reports whether the
// result differs from the input, i.e. whether a rewrite is worthwhile.
func Migrate(loaded map[string]Position, symbols []string) (map[string]Position, bool) {
	out := make(map[string]Position, len(symbols))
	changed := false
	for sym, pos := range loaded {
		out[sym] = pos
	}
	for _, sym := range symbols {
		if _, ok := out[sym]; !ok {
			out[sym] = Position{}
			changed = true
		}
	}
	return out, changed
}

// LoadAndMigrate reads the persisted positions, heals the schema for the
// configured symbol set and writes the result straight back so the next crash
// recovers from a complete file.
func LoadAndMigrate(ctx context.Context, store Store, symbols []string) (map[string]Position, error) {
	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	migrated, changed := Migrate(loaded, symbols)
	if changed {
		if err := store.Save(ctx, migrated); err != nil {
			return nil, err
		}
	}
	return migrated, nil
}
