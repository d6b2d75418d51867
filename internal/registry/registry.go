// Package registry implements the thread-safe symbol registry and the
// snapshot hydrator that updates it from incoming quotes.
package registry

import (
	"sync"

	"github.com/reflexcore/ingestcore/internal/model"
)

// Registry is a thread-safe map from symbol to live state. A symbol's
// record, once created, is never removed.
type Registry struct {
	mu      sync.Mutex
	records map[model.Symbol]*model.SymbolRecord
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[model.Symbol]*model.SymbolRecord)}
}

// GetOrCreate returns the record for sym, creating it lazily with default
// zero Snapshot and mode COLD on first reference.
func (r *Registry) GetOrCreate(sym model.Symbol) *model.SymbolRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sym]
	if !ok {
		rec = model.NewSymbolRecord(sym)
		r.records[sym] = rec
	}
	return rec
}

// SetMode atomically updates a symbol's mode, creating the record if needed.
func (r *Registry) SetMode(sym model.Symbol, mode model.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sym]
	if !ok {
		rec = model.NewSymbolRecord(sym)
		r.records[sym] = rec
	}
	rec.Mode = mode
}

// Modes returns a snapshot copy of every known symbol's current mode.
func (r *Registry) Modes() map[model.Symbol]model.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[model.Symbol]model.Mode, len(r.records))
	for sym, rec := range r.records {
		out[sym] = rec.Mode
	}
	return out
}

// Snapshot returns a copy of the current Snapshot for sym, or the zero
// Snapshot if the symbol has never been referenced.
func (r *Registry) Snapshot(sym model.Symbol) model.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sym]
	if !ok {
		return model.Snapshot{}
	}
	return rec.Snapshot
}

// Len returns the number of symbols known to the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
