// Package sse streams record change notifications to HTTP clients.
package sse

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// clientBuffer is the number of frames queued per client before new ones
// are dropped.
const clientBuffer = 64

// Broker fans record changes out to SSE clients.
//
// A single loop goroutine owns the client set, the event sequence and the
// snapshot throttle. Public methods talk to it over channels.
type Broker struct {
	snapshotMin time.Duration
	logger      *slog.Logger

	joinCh   chan chan []byte
	leaveCh  chan chan []byte
	changeCh chan change
	countCh  chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits snapshot.updated at most once per
// snapshotThrottle.
func NewBroker(snapshotThrottle time.Duration) *Broker {
	if snapshotThrottle <= 0 {
		snapshotThrottle = 2 * time.Second
	}

	b := &Broker{
		snapshotMin: snapshotThrottle,
		logger:      slog.Default(),
		joinCh:      make(chan chan []byte),
		leaveCh:     make(chan chan []byte),
		changeCh:    make(chan change, 256),
		countCh:     make(chan chan int),
		stopCh:      make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	go b.run()
	return b
}

// loop state, touched only by run.
type hub struct {
	clients      map[chan []byte]struct{}
	seq          uint64
	lastSnapshot time.Time
}

func (h *hub) send(logger *slog.Logger, event Event) {
	h.seq++
	msg, err := frame(h.seq, event)
	if err != nil {
		logger.Warn("sse: dropping event", slog.String("error", err.Error()))
		return
	}
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			// Slow client; it misses this frame.
		}
	}
}

func (b *Broker) run() {
	defer close(b.stopped)

	h := &hub{clients: make(map[chan []byte]struct{})}
	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				close(ch)
			}
			return

		case ch := <-b.joinCh:
			h.clients[ch] = struct{}{}

		case ch := <-b.leaveCh:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}

		case c := <-b.changeCh:
			events := classify(c)
			if len(events) == 0 {
				continue
			}
			for _, e := range events {
				h.send(b.logger, e)
			}
			if now := time.Now(); now.Sub(h.lastSnapshot) >= b.snapshotMin {
				h.lastSnapshot = now
				h.send(b.logger, Event{Type: EventSnapshot, Data: map[string]string{}})
			}

		case resp := <-b.countCh:
			resp <- len(h.clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed on Unsubscribe or
// Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.joinCh <- ch:
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
	case b.leaveCh <- ch:
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
	case b.countCh <- resp:
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

// PublishChange reports the outcome of one file update. Paths both removed
// and added become record.changed, the rest record.removed or record.added,
// followed by a throttled snapshot.updated.
func (b *Broker) PublishChange(removed, added []string) {
	if b.closed.Load() || len(removed)+len(added) == 0 {
		return
	}
	select {
	case b.changeCh <- change{removed: removed, added: added}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
