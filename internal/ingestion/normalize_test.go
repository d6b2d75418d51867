package ingestion

import "testing"

func TestNormalizeTradeHappyPath(t *testing.T) {
	raw := map[string]any{
		"ev": "T", "sym": "aapl", "p": 123.45, "s": 100.0, "t": 1_700_000_000_000.0,
		"ex": 4.0, "id": "abc123", "cond": []any{1.0, 2.0},
	}
	ev, err := normalizeTrade(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Symbol != "AAPL" {
		t.Fatalf("expected upper-cased symbol AAPL, got %s", ev.Symbol)
	}
	if ev.Price != 123.45 || ev.Size != 100 {
		t.Fatalf("expected price=123.45 size=100, got %v/%v", ev.Price, ev.Size)
	}
	if ev.Exchange == nil || *ev.Exchange != 4 {
		t.Fatalf("expected exchange=4, got %v", ev.Exchange)
	}
	if ev.TradeID != "abc123" {
		t.Fatalf("expected trade id abc123, got %s", ev.TradeID)
	}
	if len(ev.Conditions) != 2 || ev.Conditions[0] != 1 || ev.Conditions[1] != 2 {
		t.Fatalf("expected conditions [1 2], got %v", ev.Conditions)
	}
}

func TestNormalizeTradeMissingPriceRejected(t *testing.T) {
	raw := map[string]any{"sym": "AAPL", "s": 100.0, "t": 1.0}
	if _, err := normalizeTrade(raw); err == nil {
		t.Fatal("expected error for trade missing price")
	}
}

func TestNormalizeTradeInvalidSymbolRejected(t *testing.T) {
	raw := map[string]any{"sym": "", "p": 1.0, "s": 1.0, "t": 1.0}
	if _, err := normalizeTrade(raw); err == nil {
		t.Fatal("expected error for blank symbol")
	}
}

func TestNormalizeQuoteHappyPath(t *testing.T) {
	raw := map[string]any{
		"ev": "Q", "sym": "msft", "bp": 100.0, "bs": 50.0, "ap": 100.1, "as": 150.0, "t": 1.0,
	}
	ev, err := normalizeQuote(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Symbol != "MSFT" || ev.Bid != 100.0 || ev.Ask != 100.1 {
		t.Fatalf("unexpected quote: %+v", ev)
	}
	if ev.BidSize != 50 || ev.AskSize != 150 {
		t.Fatalf("unexpected sizes: %+v", ev)
	}
}

func TestNormalizeQuoteCrossedRejected(t *testing.T) {
	raw := map[string]any{"sym": "MSFT", "bp": 100.0, "bs": 1.0, "ap": 99.0, "as": 1.0, "t": 1.0}
	if _, err := normalizeQuote(raw); err == nil {
		t.Fatal("expected error for ask < bid")
	}
}

func TestNormalizeQuoteMissingFieldRejected(t *testing.T) {
	raw := map[string]any{"sym": "MSFT", "bp": 100.0, "ap": 101.0, "t": 1.0}
	if _, err := normalizeQuote(raw); err == nil {
		t.Fatal("expected error for missing bid size")
	}
}
