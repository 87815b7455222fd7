package state

import "sync"

// Book is the in-memory view of all positions. The worker mutates it, the
// control plane reads copies, so every accessor goes through the lock.
type Book struct {
	mu        sync.RWMutex
	positions map[string]Position
}

func NewBook(positions map[string]Position) *Book {
	book := &Book{positions: make(map[string]Position, len(positions))}
	for sym, pos := range positions {
		book.positions[sym] = pos
	}
	return book
}

func (b *Book) Get(symbol string) Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[symbol]
}

func (b *Book) Set(symbol string, pos Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[symbol] = pos
}

// Snapshot returns a copy that callers may hold without further locking.
func (b *Book) Snapshot() map[string]Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Position, len(b.positions))
	for sym, pos := range b.positions {
		out[sym] = pos
	}
	return out
}
