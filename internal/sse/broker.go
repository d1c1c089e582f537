// Package sse pushes post change notifications to UI clients over
// Server-Sent Events.
//
// Every post event carries a sequence id. A reconnecting client that sends
// Last-Event-ID receives the retained events it missed before live ones.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Post change kinds accepted by PublishPostEvent.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Option configures a Broker.
type Option func(*Broker)

// WithCatalogThrottle sets the minimum gap between catalog.updated events.
func WithCatalogThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.catalogMin = d
		}
	}
}

// WithHistory sets how many post events are kept for Last-Event-ID replay.
func WithHistory(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.historyLen = n
		}
	}
}

// WithKeepAlive sets the interval of comment frames that keep idle
// connections open through proxies. Zero disables them.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		b.keepAlive = d
	}
}

type postEventReq struct {
	kind string
	id   string
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

type frame struct {
	seq uint64
	raw []byte
}

// Broker fans post events out to SSE clients.
//
// A single event loop goroutine owns the client set, the replay history
// and the catalog throttle timestamp; public methods talk to it over
// channels.
type Broker struct {
	catalogMin time.Duration
	historyLen int
	keepAlive  time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	postEventCh   chan postEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. By default catalog.updated is emitted at most
// every two seconds and the last 64 post events are retained.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		catalogMin:    2 * time.Second,
		historyLen:    64,
		keepAlive:     30 * time.Second,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		postEventCh:   make(chan postEventReq, 256),
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

// encode formats one SSE frame. seq 0 omits the id field.
func encode(seq uint64, event string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	if seq == 0 {
		return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload))
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event, payload))
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var history []frame
	var seq uint64
	var lastCatalog time.Time

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; it can catch up with Last-Event-ID.
		}
	}
	broadcast := func(raw []byte) {
		for ch := range clients {
			send(ch, raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.lastID == 0 {
				continue
			}
			for _, f := range history {
				if f.seq > sub.lastID {
					send(sub.ch, f.raw)
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.postEventCh:
			switch req.kind {
			case KindCreated, KindUpdated, KindDeleted:
			default:
				continue
			}

			seq++
			f := frame{seq: seq, raw: encode(seq, "post."+req.kind, map[string]string{"id": req.id})}
			if b.historyLen > 0 {
				history = append(history, f)
				if len(history) > b.historyLen {
					history = history[len(history)-b.historyLen:]
				}
			}
			broadcast(f.raw)

			now := time.Now()
			if now.Sub(lastCatalog) >= b.catalogMin {
				lastCatalog = now
				broadcast(encode(0, "catalog.updated", map[string]uint64{"seq": seq}))
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. Retained events newer than lastID are queued on
// the returned channel first; lastID 0 means live events only.
func (b *Broker) Subscribe(lastID uint64) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, lastID: lastID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
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

// PublishPostEvent publishes post.<kind> for id followed by a throttled
// catalog.updated event. Unknown kinds are ignored.
func (b *Broker) PublishPostEvent(kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.postEventCh <- postEventReq{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /events).
// The stream starts with a hello event carrying the client count.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	_, _ = w.Write(encode(0, "hello", map[string]int{"clients": b.ClientCount()}))
	flusher.Flush()

	var ping <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		ping = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
