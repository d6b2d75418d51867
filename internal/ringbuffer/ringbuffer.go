// Package ringbuffer implements the per-symbol double-buffered bounded
// queues that decouple high-throughput producers (the WS ingestion
// workers) from slower consumers (bar builders, the S3 archiver) without
// ever blocking a producer.
package ringbuffer

import (
	"sync"

	"github.com/reflexcore/ingestcore/internal/model"
)

// Buffer is a single bounded ring with drain-and-swap semantics: writers
// append to active, a drain swaps active<->drain and returns the swapped-out
// contents. One mutex guards both halves. Append is amortized O(1); Drain
// swaps the halves and allocates a fresh empty half; Snapshot copies the
// active half.
type Buffer[T any] struct {
	mu       sync.Mutex
	active   []T
	drain    []T
	capacity int
}

// New creates a Buffer with the given capacity. A non-positive capacity is
// coerced to 1; a capacity-1 buffer must never grow beyond 1 element.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		active:   make([]T, 0, capacity),
		drain:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Append adds an item to the active half. Non-blocking, amortized O(1),
// never fails: if active is at capacity the oldest entry is evicted first.
func (b *Buffer[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.active) >= b.capacity {
		// Evict the oldest entry by re-slicing past it; append reallocates
		// only when the backing array runs out of room.
		b.active = b.active[1:]
	}
	b.active = append(b.active, item)
}

// Drain atomically swaps active and drain, then returns what was active.
// The returned slice is exclusively owned by the caller; no item is ever
// returned twice across successive Drain calls.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active, b.drain = b.drain, b.active
	out := b.drain
	b.drain = make([]T, 0, b.capacity)
	return out
}

// Snapshot returns up to the most recent n items in active without mutating
// the buffer. n <= 0 returns the entire active contents.
func (b *Buffer[T]) Snapshot(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.active))
	copy(out, b.active)
	if n > 0 && n < len(out) {
		out = out[len(out)-n:]
	}
	return out
}

// Len returns the current number of items held in the active half.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// Pair bundles the trades and quotes ring buffers owned by a single symbol.
type Pair struct {
	Trades *Buffer[model.TradeEvent]
	Quotes *Buffer[model.QuoteEvent]
}

// Default per-symbol ring buffer capacities.
const (
	DefaultTradeCapacity = 200_000
	DefaultQuoteCapacity = 300_000
)

// NewPair creates a Pair with the given per-channel capacities.
func NewPair(tradeCapacity, quoteCapacity int) *Pair {
	return &Pair{
		Trades: New[model.TradeEvent](tradeCapacity),
		Quotes: New[model.QuoteEvent](quoteCapacity),
	}
}
