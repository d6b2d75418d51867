package registry

import "github.com/reflexcore/ingestcore/internal/model"

// Hydrate updates sym's Snapshot from a single incoming quote. Pure function
// of the quote and the target record; no cross-symbol state. If either side
// of the quote is missing (non-positive), the quote is ignored and Hydrate
// is a no-op.
func (r *Registry) Hydrate(sym model.Symbol, q model.QuoteEvent) {
	if q.Bid <= 0 || q.Ask <= 0 {
		return
	}
	snap := model.DeriveSnapshot(q.Bid, q.Ask, float64(q.BidSize), float64(q.AskSize), q.TimestampNS)

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sym]
	if !ok {
		rec = model.NewSymbolRecord(sym)
		r.records[sym] = rec
	}
	rec.Snapshot = snap
	mid := snap.Mid
	rec.LastPrice = &mid
}
