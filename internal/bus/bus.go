// Package bus implements the in-process publish/subscribe message bus:
// synchronous topic fan-out plus a bounded recent-history ring, shared by
// every component in the process (ingestion workers, the state bridge, and
// health publishers all publish and subscribe through one Bus instance).
package bus

import (
	"log"
	"sync"
)

// Handler receives a published message. A Handler that panics is isolated:
// it is recovered, logged, and does not interrupt delivery to the remaining
// subscribers for that publish call.
type Handler func(topic string, message any)

// entry is one (topic, message) pair retained in recent history.
type entry struct {
	Topic   string
	Message any
}

// Bus is a synchronous, in-process publish/subscribe fan-out with a bounded
// recent-history buffer. Safe for concurrent use.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]Handler
	history     []entry
	historyCap  int
}

// DefaultHistoryCapacity bounds the bus's recent-history ring when New is
// called without an explicit capacity.
const DefaultHistoryCapacity = 4096

// New creates a Bus with the given recent-history capacity.
func New(historyCapacity int) *Bus {
	if historyCapacity <= 0 {
		historyCapacity = DefaultHistoryCapacity
	}
	return &Bus{
		subscribers: make(map[string][]Handler),
		historyCap:  historyCapacity,
	}
}

// Subscribe appends handler to topic's subscriber list. Handlers for a topic
// are invoked in the order they were subscribed.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish fans out message to every subscriber of topic, in publish order
// for a given subscriber, then appends (topic, message) to recent history.
// A subscriber that panics is recovered and logged; it never prevents
// delivery to the remaining subscribers or the history append.
func (b *Bus) Publish(topic string, message any) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.subscribers[topic]))
	copy(handlers, b.subscribers[topic])
	b.mu.Unlock()

	for _, h := range handlers {
		invokeSafely(topic, h, message)
	}

	b.mu.Lock()
	b.history = append(b.history, entry{Topic: topic, Message: message})
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
	b.mu.Unlock()
}

func invokeSafely(topic string, h Handler, message any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: subscriber for topic %q panicked: %v", topic, r)
		}
	}()
	h(topic, message)
}

// Recent returns up to the last limit (topic, message) pairs published on
// the bus, oldest first. limit <= 0 returns the entire retained history.
func (b *Bus) Recent(limit int) []struct {
	Topic   string
	Message any
} {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.history
	if limit > 0 && limit < len(src) {
		src = src[len(src)-limit:]
	}
	out := make([]struct {
		Topic   string
		Message any
	}, len(src))
	for i, e := range src {
		out[i] = struct {
			Topic   string
			Message any
		}{Topic: e.Topic, Message: e.Message}
	}
	return out
}
