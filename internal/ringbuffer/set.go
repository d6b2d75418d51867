package ringbuffer

import (
	"sync"

	"github.com/reflexcore/ingestcore/internal/model"
)

// Set is a thread-safe map from symbol to that symbol's ring buffer pair,
// created lazily on first reference. Used to fan trade/quote events landing
// on the bus out into per-symbol buffers for downstream bar building and
// cold archival.
type Set struct {
	mu          sync.Mutex
	pairs       map[model.Symbol]*Pair
	tradeCap    int
	quoteCap    int
}

// NewSet creates an empty Set using tradeCap/quoteCap for every pair it
// lazily creates.
func NewSet(tradeCap, quoteCap int) *Set {
	return &Set{
		pairs:    make(map[model.Symbol]*Pair),
		tradeCap: tradeCap,
		quoteCap: quoteCap,
	}
}

// GetOrCreate returns sym's pair, creating it with the Set's configured
// capacities on first reference.
func (s *Set) GetOrCreate(sym model.Symbol) *Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[sym]
	if !ok {
		p = NewPair(s.tradeCap, s.quoteCap)
		s.pairs[sym] = p
	}
	return p
}

// AppendTrade appends ev to sym's trade buffer, creating the pair if needed.
func (s *Set) AppendTrade(sym model.Symbol, ev model.TradeEvent) {
	s.GetOrCreate(sym).Trades.Append(ev)
}

// AppendQuote appends ev to sym's quote buffer, creating the pair if needed.
func (s *Set) AppendQuote(sym model.Symbol, ev model.QuoteEvent) {
	s.GetOrCreate(sym).Quotes.Append(ev)
}

// Symbols returns every symbol currently tracked by the set.
func (s *Set) Symbols() []model.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Symbol, 0, len(s.pairs))
	for sym := range s.pairs {
		out = append(out, sym)
	}
	return out
}
