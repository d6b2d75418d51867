package health

import (
	"context"
	"testing"
	"time"

	"github.com/reflexcore/ingestcore/internal/bus"
)

func TestRunPublishesImmediatelyOnStart(t *testing.T) {
	b := bus.New(10)
	p := NewPublisher(b, "health:test", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx, func() map[string]any { return map[string]any{"ok": true} })
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if Latest(b, "health:test") != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	rec := Latest(b, "health:test")
	if rec == nil || rec["ok"] != true {
		t.Fatalf("expected immediate publish with ok=true, got %v", rec)
	}
	cancel()
}

func TestLatestIgnoresOtherTopics(t *testing.T) {
	b := bus.New(10)
	b.Publish("health:a", map[string]any{"component": "a"})
	b.Publish("health:b", map[string]any{"component": "b"})
	b.Publish("health:a", map[string]any{"component": "a2"})

	rec := Latest(b, "health:a")
	if rec == nil || rec["component"] != "a2" {
		t.Fatalf("expected latest health:a record, got %v", rec)
	}
}

func TestLatestReturnsNilWhenUnpublished(t *testing.T) {
	b := bus.New(10)
	if Latest(b, "health:missing") != nil {
		t.Fatal("expected nil for a topic with no publishes")
	}
}
