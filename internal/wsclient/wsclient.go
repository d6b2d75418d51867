// Package wsclient implements the outbound WebSocket feed client: dial,
// auth, ping/pong keepalive, reconnect with backoff and jitter, a bounded
// outbound send queue, and per-channel subscribe/unsubscribe/replace with
// diffing against the currently-held set so only changes generate wire
// traffic. After a reconnect and successful auth, every held set is resent
// in full.
package wsclient

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reflexcore/ingestcore/internal/rng"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second // ping period plus a 10s pong timeout
	pingPeriod     = 20 * time.Second
	maxMessageSize = 1 << 20
)

// Handler receives one decoded event from the feed. ev is the event's "ev"
// tag ("T", "Q", "status", ...); raw is the decoded JSON object.
type Handler func(ev string, raw map[string]any)

// Options configures a Client. Zero-value fields fall back to defaults
// matching the upstream feed's documented behavior.
type Options struct {
	Name         string
	URL          string
	APIKey       string
	MaxBackoff   time.Duration
	MaxSendQueue int
	Seed         int64
	DialTimeout  time.Duration
}

// Client is a single outbound WebSocket connection to the feed, with
// reconnect, auth, and per-channel subscription management. Safe for
// concurrent use.
type Client struct {
	name        string
	url         string
	apiKey      string
	maxBackoff  time.Duration
	dialTimeout time.Duration
	rng         *rng.RNG

	mu        sync.Mutex
	subs      map[string]map[string]bool // channel -> symbol set
	conn      *websocket.Conn
	connected bool

	sendMu sync.Mutex
	sendCh chan []byte

	handlersMu sync.Mutex
	handlers   map[string][]Handler

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Client. It does not dial until Start is called.
func New(opts Options) *Client {
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}
	maxSendQueue := opts.MaxSendQueue
	if maxSendQueue <= 0 {
		maxSendQueue = 10_000
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &Client{
		name:        opts.Name,
		url:         opts.URL,
		apiKey:      opts.APIKey,
		maxBackoff:  maxBackoff,
		dialTimeout: dialTimeout,
		rng:         rng.New(opts.Seed),
		subs:        make(map[string]map[string]bool),
		sendCh:      make(chan []byte, maxSendQueue),
		handlers:    make(map[string][]Handler),
		stopCh:      make(chan struct{}),
	}
}

// OnEvent registers a handler for events tagged ev. Use "*" to receive
// every event regardless of tag. Handlers for a tag fire in registration
// order.
func (c *Client) OnEvent(ev string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[ev] = append(c.handlers[ev], h)
}

// Start begins the connect-and-reconnect loop in a background goroutine
// and returns immediately. The loop exits when ctx is cancelled or Stop
// is called.
func (c *Client) Start(ctx context.Context) {
	go c.runForever(ctx)
	go c.sendPump(ctx)
}

// Stop halts the client's reconnect loop and closes any active connection.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *Client) runForever(ctx context.Context) {
	backoff := time.Second
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		attempt++
		log.Printf("wsclient[%s]: connecting to %s (attempt %d)", c.name, c.url, attempt)
		err := c.connectAndServe(ctx)
		if err != nil {
			log.Printf("wsclient[%s]: connection error: %v", c.name, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		slp := backoff
		if slp > c.maxBackoff {
			slp = c.maxBackoff
		}
		jitter := time.Duration(c.rng.Float64() * float64(slp) * 0.2)
		wait := slp + jitter
		log.Printf("wsclient[%s]: disconnected; retrying in %s", c.name, wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	dialer := &websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connected = false
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	c.enqueueAuth()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readPump(conn)
	}()

	select {
	case <-readDone:
		return nil
	case <-ctx.Done():
		conn.Close()
		<-readDone
		return ctx.Err()
	case <-c.stopCh:
		conn.Close()
		<-readDone
		return nil
	}
}

func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("wsclient[%s]: read error: %v", c.name, err)
			}
			return
		}
		c.dispatch(message)
	}
}

func (c *Client) dispatch(message []byte) {
	var raw any
	if err := json.Unmarshal(message, &raw); err != nil {
		log.Printf("wsclient[%s]: non-JSON message, dropping", c.name)
		return
	}

	var events []map[string]any
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				events = append(events, m)
			}
		}
	case map[string]any:
		events = append(events, v)
	default:
		return
	}

	for _, ev := range events {
		tag, _ := ev["ev"].(string)
		if tag == "" || tag == "status" {
			c.handleStatus(ev)
			continue
		}
		c.invokeHandlers(tag, ev)
		c.invokeHandlers("*", ev)
	}
}

func (c *Client) handleStatus(ev map[string]any) {
	status, _ := ev["status"].(string)
	message, _ := ev["message"].(string)
	if isAuthSuccess(status, message) {
		log.Printf("wsclient[%s]: authenticated; resubscribing", c.name)
		c.resubscribeAll()
	}
	c.invokeHandlers("status", ev)
	c.invokeHandlers("*", ev)
}

func isAuthSuccess(status, message string) bool {
	return containsFold(status, "success") && containsFold(message, "auth")
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFold(s[i:i+len(substr)], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (c *Client) invokeHandlers(tag string, ev map[string]any) {
	c.handlersMu.Lock()
	hs := make([]Handler, len(c.handlers[tag]))
	copy(hs, c.handlers[tag])
	c.handlersMu.Unlock()

	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("wsclient[%s]: handler panic for ev=%s: %v", c.name, tag, r)
				}
			}()
			h(tag, ev)
		}()
	}
}

func (c *Client) sendPump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case data := <-c.sendCh:
			c.writeOrRequeue(data)
		case <-ticker.C:
			c.writePing()
		}
	}
}

func (c *Client) writeOrRequeue(data []byte) {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.requeueFront(data)
		time.Sleep(200 * time.Millisecond)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.requeueFront(data)
	}
}

func (c *Client) writePing() {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.PingMessage, nil)
}

// requeueFront re-enqueues data at the head of the outbound queue by
// draining and rebuilding the channel buffer; it preserves ordering for
// messages that have not yet been sent. Used when a write fails or the
// connection is momentarily down, so queued control traffic isn't lost.
func (c *Client) requeueFront(data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	pending := []([]byte){data}
drain:
	for {
		select {
		case d := <-c.sendCh:
			pending = append(pending, d)
		default:
			break drain
		}
	}
	for _, d := range pending {
		select {
		case c.sendCh <- d:
		default:
			log.Printf("wsclient[%s]: outbound queue full; dropping message", c.name)
		}
	}
}

func (c *Client) enqueue(payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.sendCh <- raw:
	default:
		log.Printf("wsclient[%s]: outbound queue full; dropping: %s", c.name, string(raw))
	}
}

func (c *Client) enqueueAuth() {
	c.enqueue(map[string]any{"action": "auth", "params": c.apiKey})
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for channel, syms := range c.subs {
		if len(syms) == 0 {
			continue
		}
		c.enqueue(subMessage(channel, sortedKeys(syms)))
	}
}

// Subscribe adds symbols to channel's held set, enqueueing a single
// subscribe message containing only the newly added symbols.
func (c *Client) Subscribe(channel string, symbols []string) {
	c.mu.Lock()
	set := c.subs[channel]
	if set == nil {
		set = make(map[string]bool)
		c.subs[channel] = set
	}
	var add []string
	for _, s := range symbols {
		if s == "" || set[s] {
			continue
		}
		set[s] = true
		add = append(add, s)
	}
	c.mu.Unlock()

	if len(add) == 0 {
		return
	}
	sort.Strings(add)
	c.enqueue(subMessage(channel, add))
}

// Unsubscribe removes symbols from channel's held set, symmetric to
// Subscribe.
func (c *Client) Unsubscribe(channel string, symbols []string) {
	c.mu.Lock()
	set := c.subs[channel]
	var remove []string
	if set != nil {
		for _, s := range symbols {
			if s == "" || !set[s] {
				continue
			}
			delete(set, s)
			remove = append(remove, s)
		}
	}
	c.mu.Unlock()

	if len(remove) == 0 {
		return
	}
	sort.Strings(remove)
	c.enqueue(unsubMessage(channel, remove))
}

// ReplaceSubscriptions sets the subscribed symbol set for channel to
// exactly symbols, diffing against the currently-held set so only the
// added and removed symbols generate wire traffic.
func (c *Client) ReplaceSubscriptions(channel string, symbols []string) {
	target := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if s != "" {
			target[s] = true
		}
	}

	c.mu.Lock()
	current := c.subs[channel]
	if current == nil {
		current = make(map[string]bool)
	}

	var add, remove []string
	for s := range target {
		if !current[s] {
			add = append(add, s)
		}
	}
	for s := range current {
		if !target[s] {
			remove = append(remove, s)
		}
	}
	c.subs[channel] = target
	c.mu.Unlock()

	sort.Strings(add)
	sort.Strings(remove)
	if len(remove) > 0 {
		c.enqueue(unsubMessage(channel, remove))
	}
	if len(add) > 0 {
		c.enqueue(subMessage(channel, add))
	}
}

// Subscribed returns the currently-held symbol set for channel.
func (c *Client) Subscribed(channel string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.subs[channel])
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func subMessage(channel string, symbols []string) map[string]any {
	return map[string]any{"action": "subscribe", "params": joinChannelParams(channel, symbols)}
}

func unsubMessage(channel string, symbols []string) map[string]any {
	return map[string]any{"action": "unsubscribe", "params": joinChannelParams(channel, symbols)}
}

func joinChannelParams(channel string, symbols []string) string {
	out := ""
	for i, s := range symbols {
		if i > 0 {
			out += ","
		}
		out += channel + "." + s
	}
	return out
}
