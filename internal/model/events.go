package model

import "fmt"

// TradeEvent is the canonical, normalized trade. The optional fields are
// filled in right after NewTrade returns; after that it is never mutated.
type TradeEvent struct {
	Symbol     Symbol
	Price      float64
	Size       uint32
	TimestampNS int64
	Exchange   *uint16
	TradeID    string
	Conditions []uint16
}

// NewTrade validates and constructs a TradeEvent. Returns an error for any
// missing or out-of-range required field; callers should count and drop on
// error rather than propagate it upward.
func NewTrade(sym Symbol, price float64, size uint32, tsNS int64) (TradeEvent, error) {
	if price <= 0 {
		return TradeEvent{}, fmt.Errorf("trade %s: price must be > 0, got %v", sym, price)
	}
	if size < 1 {
		return TradeEvent{}, fmt.Errorf("trade %s: size must be >= 1, got %d", sym, size)
	}
	return TradeEvent{Symbol: sym, Price: price, Size: size, TimestampNS: tsNS}, nil
}

// QuoteEvent is the canonical, normalized NBBO quote. Immutable after
// construction.
type QuoteEvent struct {
	Symbol      Symbol
	Bid         float64
	Ask         float64
	BidSize     uint32
	AskSize     uint32
	TimestampNS int64
	Exchange    *uint16
	Conditions  []uint16
}

// NewQuote validates the NBBO invariant (ask >= bid when both sides are
// present) and constructs a QuoteEvent. An invalid quote is discarded by the
// caller, never stored.
func NewQuote(sym Symbol, bid, ask float64, bidSize, askSize uint32, tsNS int64) (QuoteEvent, error) {
	if bid > 0 && ask > 0 && ask < bid {
		return QuoteEvent{}, fmt.Errorf("quote %s: invalid NBBO, ask %v < bid %v", sym, ask, bid)
	}
	return QuoteEvent{
		Symbol: sym, Bid: bid, Ask: ask, BidSize: bidSize, AskSize: askSize, TimestampNS: tsNS,
	}, nil
}
