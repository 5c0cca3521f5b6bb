// Package sse implements a Server-Sent Events broker for plugin messages.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/questline/internal/plugin"
)

const (
	clientBuffer     = 64
	defaultThrottle  = 100 * time.Millisecond
	defaultHeartbeat = 15 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`

	// progress is set for throttled progress events.
	progress *int
}

// Frame is an encoded event as delivered to subscribers.
type Frame struct {
	Name string
	Data []byte
}

// Bytes returns the SSE wire form of f.
func (f Frame) Bytes() []byte {
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", f.Name, f.Data)
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithHeartbeat sets how often idle SSE connections receive a comment line.
// Zero disables heartbeats.
func WithHeartbeat(d time.Duration) BrokerOption {
	return func(b *Broker) { b.heartbeat = d }
}

// WithRetained names event types whose latest frame is replayed to new
// subscribers. SCAN_RESULT is retained by default.
func WithRetained(types ...string) BrokerOption {
	return func(b *Broker) { b.retainTypes = types }
}

// Broker fans plugin messages out to subscribers. All subscriber and
// throttle state belongs to the run goroutine; the exported methods only
// talk to it over channels.
type Broker struct {
	progressMin time.Duration
	heartbeat   time.Duration
	retainTypes []string

	subscribeCh   chan chan Frame
	unsubscribeCh chan chan Frame
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that passes at most one SCAN_PROGRESS per
// progressThrottle, apart from run starts and completion.
func NewBroker(progressThrottle time.Duration, opts ...BrokerOption) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = defaultThrottle
	}

	b := &Broker{
		progressMin:   progressThrottle,
		heartbeat:     defaultHeartbeat,
		retainTypes:   []string{string(plugin.TypeScanResult)},
		subscribeCh:   make(chan chan Frame),
		unsubscribeCh: make(chan chan Frame),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

// loopState is owned by Broker.run.
type loopState struct {
	clients  map[chan Frame]struct{}
	retained map[string]Frame
	order    []string

	lastProgress time.Time
	lastPercent  int
	throttle     time.Duration
}

// admit reports whether a progress value passes the throttle. A value at or
// below the previous one starts a new run; completion always passes.
func (s *loopState) admit(p int, now time.Time) bool {
	pass := p <= s.lastPercent || p >= 100 || now.Sub(s.lastProgress) >= s.throttle
	if pass {
		s.lastProgress = now
	}
	s.lastPercent = p
	return pass
}

func (s *loopState) deliver(f Frame) {
	for ch := range s.clients {
		select {
		case ch <- f:
		default:
			// slow client, frame dropped
		}
	}
	if _, ok := s.retained[f.Name]; ok {
		s.retained[f.Name] = f
	}
}

func (s *loopState) join(ch chan Frame) {
	s.clients[ch] = struct{}{}
	for _, name := range s.order {
		if f := s.retained[name]; f.Data != nil {
			ch <- f
		}
	}
}

func (b *Broker) run() {
	defer close(b.stopped)

	st := &loopState{
		clients:     make(map[chan Frame]struct{}),
		retained:    make(map[string]Frame, len(b.retainTypes)),
		order:       b.retainTypes,
		lastPercent: -1,
		throttle:    b.progressMin,
	}
	for _, name := range b.retainTypes {
		st.retained[name] = Frame{Name: name}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range st.clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			st.join(ch)

		case ch := <-b.unsubscribeCh:
			if _, ok := st.clients[ch]; ok {
				delete(st.clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			if ev.progress != nil && !st.admit(*ev.progress, time.Now()) {
				continue
			}
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			st.deliver(Frame{Name: ev.Type, Data: payload})

		case resp := <-b.countReqCh:
			resp <- len(st.clients)
		}
	}
}

// Close stops the broker and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. Retained frames are queued on the returned
// channel before any new event.
func (b *Broker) Subscribe() chan Frame {
	ch := make(chan Frame, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan Frame) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues ev for every client.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// PublishProgress publishes a throttled SCAN_PROGRESS. It shares the
// publish queue so ordering with other messages is kept.
func (b *Broker) PublishProgress(p plugin.ScanProgress) {
	pct := p.Progress
	b.Publish(Event{Type: string(p.MessageType()), Data: p, progress: &pct})
}

var _ plugin.Outbox = (*Broker)(nil)

// Send implements plugin.Outbox. The event name is the message type.
func (b *Broker) Send(_ context.Context, m plugin.Message) {
	if p, ok := m.(plugin.ScanProgress); ok {
		b.PublishProgress(p)
		return
	}
	b.Publish(Event{Type: string(m.MessageType()), Data: m})
}

// ServeHTTP streams frames as text/event-stream (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var beat <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		beat = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-beat:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case f, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(f.Bytes()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
