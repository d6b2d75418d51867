package registry

import (
	"math"
	"testing"

	"github.com/reflexcore/ingestcore/internal/model"
)

func TestHydrateDerivesSpreadMidImbalance(t *testing.T) {
	r := New()
	r.Hydrate("AAPL", model.QuoteEvent{
		Symbol: "AAPL", Bid: 100.0, Ask: 100.10, BidSize: 50, AskSize: 150,
	})
	snap := r.Snapshot("AAPL")
	if math.Abs(snap.Spread-0.10) > 1e-9 {
		t.Fatalf("expected spread 0.10, got %v", snap.Spread)
	}
	if math.Abs(snap.Mid-100.05) > 1e-9 {
		t.Fatalf("expected mid 100.05, got %v", snap.Mid)
	}
	if math.Abs(snap.Imbalance-(-0.5)) > 1e-9 {
		t.Fatalf("expected imbalance -0.5, got %v", snap.Imbalance)
	}
	rec := r.GetOrCreate("AAPL")
	if rec.LastPrice == nil || math.Abs(*rec.LastPrice-100.05) > 1e-9 {
		t.Fatalf("expected last_price 100.05, got %v", rec.LastPrice)
	}
}

func TestHydrateZeroSizeGivesZeroImbalance(t *testing.T) {
	r := New()
	r.Hydrate("AAPL", model.QuoteEvent{Symbol: "AAPL", Bid: 10, Ask: 10, BidSize: 0, AskSize: 0})
	snap := r.Snapshot("AAPL")
	if snap.Imbalance != 0 {
		t.Fatalf("expected imbalance 0 for zero liquidity, got %v", snap.Imbalance)
	}
}

func TestHydrateIgnoresMissingSide(t *testing.T) {
	r := New()
	r.Hydrate("AAPL", model.QuoteEvent{Symbol: "AAPL", Bid: 0, Ask: 100, BidSize: 1, AskSize: 1})
	if r.GetOrCreate("AAPL").LastPrice != nil {
		t.Fatalf("expected no update for quote missing bid side")
	}
}

func TestHydrateCrossedSpreadClampsToZero(t *testing.T) {
	r := New()
	r.Hydrate("AAPL", model.QuoteEvent{Symbol: "AAPL", Bid: 100, Ask: 99, BidSize: 1, AskSize: 1})
	snap := r.Snapshot("AAPL")
	if snap.Spread != 0 {
		t.Fatalf("expected clamped spread 0, got %v", snap.Spread)
	}
	if snap.Mid != 100 {
		t.Fatalf("expected mid to fall back to bid (100), got %v", snap.Mid)
	}
}
