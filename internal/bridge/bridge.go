// Package bridge implements the state→subscription bridge: it merges
// four asynchronous state sources (override, evaluator, chart, db) by a
// fixed priority order into an effective HOT/WARM/COLD classification per
// symbol, and debounces that into replace-style control messages on
// wsctl:ticks and wsctl:quotes so the ingestion processes' WebSocket
// subscriptions track it.
package bridge

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reflexcore/ingestcore/internal/bus"
	"github.com/reflexcore/ingestcore/internal/health"
	"github.com/reflexcore/ingestcore/internal/model"
)

const (
	sourceOverride = "override"
	sourceEval     = "evaluator"
	sourceChart    = "chart"
	sourceDB       = "db"
)

// sourcePriority lists the four sources from highest to lowest priority.
var sourcePriority = []string{sourceOverride, sourceEval, sourceChart, sourceDB}

// DefaultChartTTL bounds how long a chart assertion is honored without a
// refresh before it is treated as absent.
const DefaultChartTTL = 45 * time.Second

// DefaultDebounce collapses bursts of source updates into a single push.
const DefaultDebounce = 150 * time.Millisecond

// DBSource abstracts the bridge's one durable source: a one-shot bootstrap
// query plus a live change notification stream. The persist package's
// Mongo-backed implementation is the production DBSource.
type DBSource interface {
	Bootstrap(ctx context.Context) (map[model.Symbol]model.State, error)
	Watch(ctx context.Context, onChange func(model.StateAssertion)) error
}

// Config wires a Bridge to its bus and db source.
type Config struct {
	Bus              *bus.Bus
	DB               DBSource
	EvaluatorTopic   string
	OverrideTopic    string
	ChartTopic       string
	TicksTopic       string
	QuotesTopic      string
	HealthTopic      string
	ChartTTL         time.Duration
	DebounceInterval time.Duration
}

// Bridge is the state→subscription bridge.
type Bridge struct {
	bus           *bus.Bus
	db            DBSource
	evalTopic     string
	overrideTopic string
	chartTopic    string
	ticksTopic    string
	quotesTopic   string
	healthTopic   string
	chartTTL      time.Duration
	debounce      time.Duration

	mu         sync.Mutex
	sourceMaps map[string]map[model.Symbol]model.State
	chartTS    map[model.Symbol]time.Time
	effWarm    map[model.Symbol]bool
	effHot     map[model.Symbol]bool

	pushSignal chan struct{}

	updatesIn    atomic.Uint64
	dbBootCount  atomic.Uint64
	dbNotifyIn   atomic.Uint64
	pushOut      atomic.Uint64
	chartExpired atomic.Uint64
}

// New creates a Bridge. It performs no I/O until Start is called.
func New(cfg Config) *Bridge {
	chartTTL := cfg.ChartTTL
	if chartTTL <= 0 {
		chartTTL = DefaultChartTTL
	}
	debounce := cfg.DebounceInterval
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Bridge{
		bus:           cfg.Bus,
		db:            cfg.DB,
		evalTopic:     cfg.EvaluatorTopic,
		overrideTopic: cfg.OverrideTopic,
		chartTopic:    cfg.ChartTopic,
		ticksTopic:    cfg.TicksTopic,
		quotesTopic:   cfg.QuotesTopic,
		healthTopic:   cfg.HealthTopic,
		chartTTL:      chartTTL,
		debounce:      debounce,
		sourceMaps: map[string]map[model.Symbol]model.State{
			sourceOverride: {},
			sourceEval:     {},
			sourceChart:    {},
			sourceDB:       {},
		},
		chartTS:    make(map[model.Symbol]time.Time),
		effWarm:    make(map[model.Symbol]bool),
		effHot:     make(map[model.Symbol]bool),
		pushSignal: make(chan struct{}, 1),
	}
}

// Start bootstraps the db source, performs an initial push, then launches
// the bridge's background loops (db watch, pusher, chart TTL expirer,
// health publisher). It runs until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	boot, err := b.db.Bootstrap(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.sourceMaps[sourceDB] = boot
	b.mu.Unlock()
	b.dbBootCount.Store(uint64(len(boot)))

	b.recomputeAndPush("bootstrap")

	b.bus.Subscribe(b.evalTopic, b.handlerFor(sourceEval))
	b.bus.Subscribe(b.overrideTopic, b.handlerFor(sourceOverride))
	b.bus.Subscribe(b.chartTopic, b.handlerFor(sourceChart))

	go func() {
		if err := b.db.Watch(ctx, b.onDBChange); err != nil && ctx.Err() == nil {
			log.Printf("bridge: db watch loop exited: %v", err)
		}
	}()
	go b.pusherLoop(ctx)
	go b.chartTTLLoop(ctx)
	if b.healthTopic != "" {
		go health.NewPublisher(b.bus, b.healthTopic, health.DefaultInterval).Run(ctx, b.snapshot)
	}
	return nil
}

func (b *Bridge) handlerFor(source string) bus.Handler {
	return func(topic string, message any) {
		assertion, ok := message.(model.StateAssertion)
		if !ok {
			return
		}
		b.applySourcePayload(source, assertion)
	}
}

func (b *Bridge) onDBChange(assertion model.StateAssertion) {
	b.dbNotifyIn.Add(1)
	b.applySourcePayload(sourceDB, assertion)
}

// applySourcePayload normalizes a single-or-batch state assertion and
// merges it into source's map, then schedules a debounced push.
func (b *Bridge) applySourcePayload(source string, assertion model.StateAssertion) {
	items := assertion.Batch
	if len(items) == 0 && assertion.Symbol != "" {
		items = []model.StateAssertion{assertion}
	}
	if len(items) == 0 {
		return
	}

	changed := false
	now := time.Now()
	b.mu.Lock()
	for _, it := range items {
		sym, err := model.NormalizeSymbol(it.Symbol)
		if err != nil {
			continue
		}
		st, ok := model.ParseState(it.State)
		if !ok {
			continue
		}
		if source == sourceChart {
			b.chartTS[sym] = now
		}
		b.sourceMaps[source][sym] = st
		changed = true
	}
	b.mu.Unlock()

	if changed {
		b.updatesIn.Add(1)
		b.schedulePush()
	}
}

func (b *Bridge) schedulePush() {
	select {
	case b.pushSignal <- struct{}{}:
	default:
	}
}

func (b *Bridge) pusherLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.pushSignal:
			select {
			case <-time.After(b.debounce):
			case <-ctx.Done():
				return
			}
			b.recomputeAndPush("debounced-update")
		}
	}
}

func (b *Bridge) recomputeAndPush(reason string) {
	newWarm, newHot := b.computeEffective()

	b.mu.Lock()
	changed := !sameSet(newWarm, b.effWarm) || !sameSet(newHot, b.effHot)
	if changed {
		b.effWarm = newWarm
		b.effHot = newHot
	}
	b.mu.Unlock()

	if !changed {
		return
	}

	warmHot := unionSets(newWarm, newHot)
	b.bus.Publish(b.ticksTopic, model.ControlMessage{
		Op:      model.ControlReplace,
		Channel: model.ChannelTrade,
		Symbols: sortedSymbols(newHot),
	})
	b.bus.Publish(b.quotesTopic, model.ControlMessage{
		Op:      model.ControlReplace,
		Channel: model.ChannelQuote,
		Symbols: sortedSymbols(warmHot),
	})
	b.pushOut.Add(1)
	log.Printf("bridge: pushed subscriptions (%s): hot=%d warm+hot=%d", reason, len(newHot), len(warmHot))
}

func (b *Bridge) computeEffective() (warm, hot map[model.Symbol]bool) {
	warm = make(map[model.Symbol]bool)
	hot = make(map[model.Symbol]bool)

	b.mu.Lock()
	defer b.mu.Unlock()

	symbols := make(map[model.Symbol]bool)
	for _, m := range b.sourceMaps {
		for sym := range m {
			symbols[sym] = true
		}
	}

	now := time.Now()
	for sym := range symbols {
		st := b.effectiveStateLocked(sym, now)
		switch st {
		case model.StateHot:
			hot[sym] = true
		case model.StateWarm:
			warm[sym] = true
		}
	}
	return warm, hot
}

// effectiveStateLocked must be called with b.mu held.
func (b *Bridge) effectiveStateLocked(sym model.Symbol, now time.Time) model.State {
	for _, src := range sourcePriority {
		st, ok := b.sourceMaps[src][sym]
		if !ok {
			continue
		}
		if src == sourceChart {
			ts, ok := b.chartTS[sym]
			if !ok || now.Sub(ts) > b.chartTTL {
				continue
			}
		}
		return st
	}
	return model.StateCold
}

func (b *Bridge) chartTTLLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.expireChartEntries() {
				b.schedulePush()
			}
		}
	}
}

func (b *Bridge) expireChartEntries() bool {
	now := time.Now()
	var expired []model.Symbol

	b.mu.Lock()
	for sym, ts := range b.chartTS {
		if now.Sub(ts) > b.chartTTL {
			expired = append(expired, sym)
		}
	}
	for _, sym := range expired {
		delete(b.chartTS, sym)
		delete(b.sourceMaps[sourceChart], sym)
	}
	b.mu.Unlock()

	if len(expired) > 0 {
		b.chartExpired.Add(uint64(len(expired)))
		return true
	}
	return false
}

func (b *Bridge) snapshot() map[string]any {
	b.mu.Lock()
	sizes := map[string]int{
		"db":       len(b.sourceMaps[sourceDB]),
		"evaluator": len(b.sourceMaps[sourceEval]),
		"override": len(b.sourceMaps[sourceOverride]),
		"chart":    len(b.sourceMaps[sourceChart]),
		"eff_hot":  len(b.effHot),
		"eff_warm": len(b.effWarm),
	}
	b.mu.Unlock()

	return map[string]any{
		"component":     "state_bridge",
		"timestamp_ns":  time.Now().UnixNano(),
		"sizes":         sizes,
		"updates_in":    b.updatesIn.Load(),
		"db_boot_count": b.dbBootCount.Load(),
		"db_notify_in":  b.dbNotifyIn.Load(),
		"push_out":      b.pushOut.Load(),
		"chart_expired": b.chartExpired.Load(),
	}
}

func sameSet(a, b map[model.Symbol]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func unionSets(a, b map[model.Symbol]bool) map[model.Symbol]bool {
	out := make(map[model.Symbol]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func sortedSymbols(m map[model.Symbol]bool) []string {
	out := make([]string, 0, len(m))
	for sym := range m {
		out = append(out, string(sym))
	}
	sort.Strings(out)
	return out
}
