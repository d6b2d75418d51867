// Package ingestion implements the two structurally identical ingestion
// processes (one per event tag, trade and quote): each owns a WebSocket
// client, a bounded inbound work queue, a pool of normalizing workers, and
// a control-topic listener that drives the client's subscriptions.
package ingestion

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/reflexcore/ingestcore/internal/bus"
	"github.com/reflexcore/ingestcore/internal/health"
	"github.com/reflexcore/ingestcore/internal/model"
	"github.com/reflexcore/ingestcore/internal/wsclient"
)

// DefaultQueueCapacity matches the 200k-500k range the wire contract
// expects for a single process's inbound work queue.
const DefaultQueueCapacity = 300_000

// DefaultWorkers is the number of normalizing workers per process.
const DefaultWorkers = 2

// dropWarnEvery controls how often a sustained-backpressure warning is
// logged.
const dropWarnEvery = 10_000

// Config wires a Process to its WebSocket client, bus, and topics.
type Config struct {
	Channel       model.ChannelTag
	Client        *wsclient.Client
	Bus           *bus.Bus
	EventsTopic   string // "bus:trades" or "bus:quotes"
	ControlTopic  string // "wsctl:ticks" or "wsctl:quotes"
	HealthTopic   string
	QueueCapacity int
	Workers       int
}

// Process is one of the two ingestion pipelines (trade or quote).
type Process struct {
	channel      model.ChannelTag
	client       *wsclient.Client
	bus          *bus.Bus
	eventsTopic  string
	controlTopic string
	healthTopic  string
	workers      int
	queue        *workQueue

	processed atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a Process. It does not start consuming until Start is called.
func New(cfg Config) *Process {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Process{
		channel:      cfg.Channel,
		client:       cfg.Client,
		bus:          cfg.Bus,
		eventsTopic:  cfg.EventsTopic,
		controlTopic: cfg.ControlTopic,
		healthTopic:  cfg.HealthTopic,
		workers:      workers,
		queue:        newWorkQueue(capacity),
	}
}

// Start registers the process's WS handler and control subscription,
// launches its worker pool and health publisher, and returns immediately.
// It runs until ctx is cancelled.
func (p *Process) Start(ctx context.Context) {
	p.client.OnEvent(string(p.channel), p.onEvent)
	p.bus.Subscribe(p.controlTopic, p.onControl)

	go func() {
		<-ctx.Done()
		p.queue.close()
	}()

	for i := 0; i < p.workers; i++ {
		go p.worker()
	}

	if p.healthTopic != "" {
		go health.NewPublisher(p.bus, p.healthTopic, health.DefaultInterval).Run(ctx, p.snapshot)
	}
}

func (p *Process) onEvent(ev string, raw map[string]any) {
	_, dropped := p.queue.enqueue(raw)
	if dropped {
		n := p.dropped.Add(1)
		if n%dropWarnEvery == 0 {
			log.Printf("ingestion[%s]: %d events dropped due to sustained backpressure", p.channel, n)
		}
	}
}

func (p *Process) onControl(topic string, message any) {
	ctrl, ok := message.(model.ControlMessage)
	if !ok {
		return
	}
	if ctrl.Channel != p.channel {
		return
	}
	switch ctrl.Op {
	case model.ControlSubscribe:
		p.client.Subscribe(string(p.channel), ctrl.Symbols)
	case model.ControlUnsubscribe:
		p.client.Unsubscribe(string(p.channel), ctrl.Symbols)
	case model.ControlReplace:
		p.client.ReplaceSubscriptions(string(p.channel), ctrl.Symbols)
	default:
		log.Printf("ingestion[%s]: unknown control op %q", p.channel, ctrl.Op)
	}
}

func (p *Process) worker() {
	for {
		item, ok := p.queue.dequeue()
		if !ok {
			return
		}
		p.normalizeAndPublish(item)
	}
}

func (p *Process) normalizeAndPublish(raw map[string]any) {
	switch p.channel {
	case model.ChannelTrade:
		ev, err := normalizeTrade(raw)
		if err != nil {
			return
		}
		p.processed.Add(1)
		p.bus.Publish(p.eventsTopic, ev)
	case model.ChannelQuote:
		ev, err := normalizeQuote(raw)
		if err != nil {
			return
		}
		p.processed.Add(1)
		p.bus.Publish(p.eventsTopic, ev)
	}
}

func (p *Process) snapshot() map[string]any {
	return map[string]any{
		"component":       "ingestion:" + string(p.channel),
		"timestamp_ns":    time.Now().UnixNano(),
		"processed":       p.processed.Load(),
		"dropped":         p.dropped.Load(),
		"queue_depth":     p.queue.len(),
		"subscribed":      p.client.Subscribed(string(p.channel)),
	}
}
