package model

import (
	"fmt"
	"strings"
)

// Symbol is the uppercase partition key used throughout the core: 1..16
// bytes, alphanumeric plus '.' and '-'.
type Symbol string

// NormalizeSymbol upper-cases and validates a raw symbol string. Every entry
// point that accepts a symbol from the wire, a control message, or a DB row
// must pass it through here before using it as a map key.
func NormalizeSymbol(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if len(s) == 0 || len(s) > 16 {
		return "", fmt.Errorf("symbol %q: length must be 1..16", raw)
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '.' && r != '-' {
			return "", fmt.Errorf("symbol %q: invalid character %q", raw, r)
		}
	}
	return Symbol(s), nil
}

// ChannelTag identifies an upstream stream category.
type ChannelTag string

const (
	ChannelTrade     ChannelTag = "T"
	ChannelQuote     ChannelTag = "Q"
	ChannelAggregate ChannelTag = "A"
)

// NormalizeChannel validates and upper-cases a raw channel tag.
func NormalizeChannel(raw string) (ChannelTag, error) {
	ch := ChannelTag(strings.ToUpper(strings.TrimSpace(raw)))
	switch ch {
	case ChannelTrade, ChannelQuote, ChannelAggregate:
		return ch, nil
	default:
		return "", fmt.Errorf("channel %q: must be T, Q or A", raw)
	}
}

// Mode is the symbol registry's lifecycle classification.
type Mode string

const (
	ModeCold  Mode = "COLD"
	ModeWatch Mode = "WATCH"
	ModeWarm  Mode = "WARM"
	ModeHot   Mode = "HOT"
)

// State is the 3-valued classification used by the state→subscription
// bridge's source maps and effective set. It is a strict subset of
// Mode: the bridge never asserts WATCH.
type State string

const (
	StateCold State = "COLD"
	StateWarm State = "WARM"
	StateHot  State = "HOT"
)

// ParseState validates and upper-cases a raw state string from a source
// payload, rejecting anything unrecognized at ingress.
func ParseState(raw string) (State, bool) {
	s := State(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StateCold, StateWarm, StateHot:
		return s, true
	default:
		return "", false
	}
}
