package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/reflexcore/ingestcore/internal/bus"
	"github.com/reflexcore/ingestcore/internal/model"
)

type fakeDB struct {
	boot map[model.Symbol]model.State
}

func (f *fakeDB) Bootstrap(ctx context.Context) (map[model.Symbol]model.State, error) {
	if f.boot == nil {
		return map[model.Symbol]model.State{}, nil
	}
	return f.boot, nil
}

func (f *fakeDB) Watch(ctx context.Context, onChange func(model.StateAssertion)) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestBridge(t *testing.T, boot map[model.Symbol]model.State) (*Bridge, *bus.Bus) {
	t.Helper()
	b := bus.New(100)
	br := New(Config{
		Bus:              b,
		DB:               &fakeDB{boot: boot},
		EvaluatorTopic:   "state:evaluator",
		OverrideTopic:    "state:override",
		ChartTopic:       "state:chart",
		TicksTopic:       "wsctl:ticks",
		QuotesTopic:      "wsctl:quotes",
		HealthTopic:      "health:bridge",
		ChartTTL:         50 * time.Millisecond,
		DebounceInterval: 10 * time.Millisecond,
	})
	return br, b
}

func waitForControl(t *testing.T, b *bus.Bus, topic string, timeout time.Duration) model.ControlMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		recent := b.Recent(0)
		for i := len(recent) - 1; i >= 0; i-- {
			if recent[i].Topic == topic {
				if ctrl, ok := recent[i].Message.(model.ControlMessage); ok {
					return ctrl
				}
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no control message observed on %s within %s", topic, timeout)
	return model.ControlMessage{}
}

func TestBootstrapPushesInitialSubscriptions(t *testing.T) {
	br, b := newTestBridge(t, map[model.Symbol]model.State{"AAPL": model.StateHot, "MSFT": model.StateWarm})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := br.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ticks := waitForControl(t, b, "wsctl:ticks", time.Second)
	if len(ticks.Symbols) != 1 || ticks.Symbols[0] != "AAPL" {
		t.Fatalf("expected HOT-only ticks=[AAPL], got %v", ticks.Symbols)
	}

	quotes := waitForControl(t, b, "wsctl:quotes", time.Second)
	if len(quotes.Symbols) != 2 || quotes.Symbols[0] != "AAPL" || quotes.Symbols[1] != "MSFT" {
		t.Fatalf("expected WARM+HOT quotes=[AAPL MSFT], got %v", quotes.Symbols)
	}
}

func TestOverrideOutranksEvaluatorAndDB(t *testing.T) {
	br, b := newTestBridge(t, map[model.Symbol]model.State{"AAPL": model.StateCold})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	br.Start(ctx)

	b.Publish("state:evaluator", model.StateAssertion{Symbol: "AAPL", State: "WARM"})
	b.Publish("state:override", model.StateAssertion{Symbol: "AAPL", State: "HOT"})

	ticks := waitForControl(t, b, "wsctl:ticks", time.Second)
	if len(ticks.Symbols) != 1 || ticks.Symbols[0] != "AAPL" {
		t.Fatalf("expected override HOT to win, got ticks=%v", ticks.Symbols)
	}
}

func TestChartExpiresAfterTTL(t *testing.T) {
	br, b := newTestBridge(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	br.Start(ctx)

	b.Publish("state:chart", model.StateAssertion{Symbol: "AAPL", State: "HOT"})
	first := waitForControl(t, b, "wsctl:ticks", time.Second)
	if len(first.Symbols) != 1 {
		t.Fatalf("expected chart HOT to push AAPL, got %v", first.Symbols)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		recent := b.Recent(0)
		for i := len(recent) - 1; i >= 0; i-- {
			if recent[i].Topic != "wsctl:ticks" {
				continue
			}
			if last, ok := recent[i].Message.(model.ControlMessage); ok && len(last.Symbols) == 0 {
				return
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected chart entry to expire and clear the HOT subscription")
}

func countControlMessages(b *bus.Bus) int {
	n := 0
	for _, e := range b.Recent(0) {
		if e.Topic == "wsctl:ticks" || e.Topic == "wsctl:quotes" {
			n++
		}
	}
	return n
}

func TestNoPushWhenEffectiveSetUnchanged(t *testing.T) {
	br, b := newTestBridge(t, map[model.Symbol]model.State{"AAPL": model.StateHot})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	br.Start(ctx)

	waitForControl(t, b, "wsctl:ticks", time.Second)
	countBefore := countControlMessages(b)

	// No source update follows the bootstrap push, so the effective set
	// never changes and no further control messages should appear.
	time.Sleep(50 * time.Millisecond)
	countAfter := countControlMessages(b)
	if countAfter != countBefore {
		t.Fatalf("expected no additional pushes without a change, before=%d after=%d", countBefore, countAfter)
	}
}
