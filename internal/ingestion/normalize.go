package ingestion

import (
	"fmt"

	"github.com/reflexcore/ingestcore/internal/model"
)

func floatField(raw map[string]any, key string) (float64, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func uint16Slice(v any) []uint16 {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]uint16, 0, len(arr))
	for _, item := range arr {
		if f, ok := item.(float64); ok {
			out = append(out, uint16(f))
		}
	}
	return out
}

func uint16Field(raw map[string]any, key string) *uint16 {
	f, ok := floatField(raw, key)
	if !ok {
		return nil
	}
	v := uint16(f)
	return &v
}

// normalizeTrade parses a raw {ev:"T", sym, p, s, t, ex?, id?, cond?}
// event into the canonical TradeEvent. Events failing required-field
// checks are rejected, per the wire contract.
func normalizeTrade(raw map[string]any) (model.TradeEvent, error) {
	symRaw, _ := raw["sym"].(string)
	sym, err := model.NormalizeSymbol(symRaw)
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("trade: %w", err)
	}
	price, ok := floatField(raw, "p")
	if !ok {
		return model.TradeEvent{}, fmt.Errorf("trade %s: missing price", sym)
	}
	size, ok := floatField(raw, "s")
	if !ok {
		return model.TradeEvent{}, fmt.Errorf("trade %s: missing size", sym)
	}
	ts, ok := floatField(raw, "t")
	if !ok {
		return model.TradeEvent{}, fmt.Errorf("trade %s: missing timestamp", sym)
	}

	ev, err := model.NewTrade(sym, price, uint32(size), int64(ts))
	if err != nil {
		return model.TradeEvent{}, err
	}
	ev.Exchange = uint16Field(raw, "ex")
	if id, ok := raw["id"].(string); ok {
		ev.TradeID = id
	}
	ev.Conditions = uint16Slice(raw["cond"])
	return ev, nil
}

// normalizeQuote parses a raw {ev:"Q", sym, bp, bs, ap, as, t, ex?,
// cond?} event into the canonical QuoteEvent.
func normalizeQuote(raw map[string]any) (model.QuoteEvent, error) {
	symRaw, _ := raw["sym"].(string)
	sym, err := model.NormalizeSymbol(symRaw)
	if err != nil {
		return model.QuoteEvent{}, fmt.Errorf("quote: %w", err)
	}
	bid, ok := floatField(raw, "bp")
	if !ok {
		return model.QuoteEvent{}, fmt.Errorf("quote %s: missing bid price", sym)
	}
	ask, ok := floatField(raw, "ap")
	if !ok {
		return model.QuoteEvent{}, fmt.Errorf("quote %s: missing ask price", sym)
	}
	bidSize, ok := floatField(raw, "bs")
	if !ok {
		return model.QuoteEvent{}, fmt.Errorf("quote %s: missing bid size", sym)
	}
	askSize, ok := floatField(raw, "as")
	if !ok {
		return model.QuoteEvent{}, fmt.Errorf("quote %s: missing ask size", sym)
	}
	ts, ok := floatField(raw, "t")
	if !ok {
		return model.QuoteEvent{}, fmt.Errorf("quote %s: missing timestamp", sym)
	}

	ev, err := model.NewQuote(sym, bid, ask, uint32(bidSize), uint32(askSize), int64(ts))
	if err != nil {
		return model.QuoteEvent{}, err
	}
	ev.Exchange = uint16Field(raw, "ex")
	ev.Conditions = uint16Slice(raw["cond"])
	return ev, nil
}
