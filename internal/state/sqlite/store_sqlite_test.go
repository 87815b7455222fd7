package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"rsibot/internal/state"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "positions.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	positions := map[string]state.Position{
		"ETHUSDT": {InPosition: true, EntryPrice: 2500, PeakPrice: 2600},
		"ADAUSDT": {},
	}
	if err := store.Save(ctx, positions); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(loaded))
	}
	if loaded["ETHUSDT"] != positions["ETHUSDT"] {
		t.Fatalf("unexpected position: %#v", loaded["ETHUSDT"])
	}
}

func TestSQLiteStoreOverwrite(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "positions.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, map[string]state.Position{"ETHUSDT": {InPosition: true, EntryPrice: 1, PeakPrice: 1}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, map[string]state.Position{"ETHUSDT": {}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded["ETHUSDT"] != (state.Position{}) {
		t.Fatalf("expected reset position, got %#v", loaded["ETHUSDT"])
	}
}

func TestSQLiteStoreEmpty(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "positions.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty map, got %#v", loaded)
	}
}
