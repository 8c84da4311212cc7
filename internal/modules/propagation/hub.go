// README: In-process fan-out hub with resync and liveness monitoring.
package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"glide/internal/observability"
)

// Sink receives every locally committed event, e.g. a Kafka journal or the
// Redis relay. Sink failures never block or fail the local fan-out.
type Sink interface {
	Record(e Event) error
}

type subscriber struct {
	id           string
	ch           chan Event
	filters      []Filter
	onStatus     StatusFunc
	status       ChannelStatus
	lastMatch    time.Time // last event that matched the filter set
	lastDelivery time.Time // last successful channel send
}

func (s *subscriber) setStatus(st ChannelStatus) {
	if s.status == st {
		return
	}
	s.status = st
	if s.onStatus != nil {
		s.onStatus(st)
	}
}

// Hub fans committed change events out to registered subscribers. A slow
// subscriber is flipped to the stale status instead of blocking publishers;
// the liveness monitor resyncs it on the next pass.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	sinks  []Sink
	buffer int
	logger *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[string]*subscriber), buffer: buffer, logger: logger}
}

// AddSink registers an external relay for locally committed events.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Subscription is a live change feed. Close releases it; tying Close to the
// caller's scope replaces manual unsubscribe bookkeeping.
type Subscription struct {
	ID  string
	C   <-chan Event
	hub *Hub
}

func (s *Subscription) Close() { s.hub.unsubscribe(s.ID) }

// Subscribe registers a subscriber under id with the given filter set.
// Re-subscribing with an existing id replaces the previous registration.
func (h *Hub) Subscribe(id string, filters []Filter, onStatus StatusFunc) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; !ok {
		observability.SubscribersActive.Inc()
	}
	now := time.Now()
	sub := &subscriber{
		id:           id,
		ch:           make(chan Event, h.buffer),
		filters:      filters,
		onStatus:     onStatus,
		status:       StatusConnected,
		lastMatch:    now,
		lastDelivery: now,
	}
	h.subs[id] = sub
	return &Subscription{ID: id, C: sub.ch, hub: h}
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; ok {
		delete(h.subs, id)
		observability.SubscribersActive.Dec()
	}
}

// Resync atomically replaces a subscriber's whole filter set and drops any
// backlog. The subscriber never observes a partial filter set; it is expected
// to re-fetch authoritative state after the connected signal.
func (h *Hub) Resync(id string, filters []Filter) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return false
	}
	sub.setStatus(StatusReconnecting)
	sub.filters = filters
	// The subscriber goroutine may be receiving concurrently, so the drain
	// must never block while h.mu is held.
drain:
	for {
		select {
		case <-sub.ch:
		default:
			break drain
		}
	}
	now := time.Now()
	sub.lastMatch = now
	sub.lastDelivery = now
	sub.setStatus(StatusConnected)
	observability.SubscriberResyncs.Inc()
	return true
}

// Publish commits an event: forwards it to sinks and fans it out locally.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	h.mu.Lock()
	sinks := h.sinks
	h.mu.Unlock()
	for _, s := range sinks {
		if err := s.Record(e); err != nil {
			h.logger.Warn("change event sink failed", "entity", e.Entity, "error", err)
		}
	}
	h.deliver(e)
}

// Inject fans out an event received from a remote instance without echoing it
// back to the sinks.
func (h *Hub) Inject(e Event) { h.deliver(e) }

func (h *Hub) deliver(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	observability.EventsPublished.WithLabelValues(e.Entity).Inc()
	for _, sub := range h.subs {
		if !matchesAny(sub.filters, e) {
			continue
		}
		sub.lastMatch = time.Now()
		select {
		case sub.ch <- e:
			sub.lastDelivery = time.Now()
			sub.setStatus(StatusConnected)
		default:
			// full buffer: do not block the publisher
			sub.setStatus(StatusStale)
		}
	}
}

func matchesAny(filters []Filter, e Event) bool {
	for _, f := range filters {
		if f.matches(e) {
			return true
		}
	}
	return false
}

// CheckLiveness resyncs stale subscribers and any channel that silently
// stopped receiving while events matching its filters kept flowing. A
// subscriber whose filters simply matched nothing recently is healthy and
// left alone. Called both by the periodic monitor and immediately on a
// visibility change.
func (h *Hub) CheckLiveness(quietAfter time.Duration) {
	h.mu.Lock()
	type target struct {
		id      string
		filters []Filter
	}
	var targets []target
	for _, sub := range h.subs {
		wedged := sub.lastMatch.Sub(sub.lastDelivery) > quietAfter
		if sub.status == StatusStale || wedged {
			targets = append(targets, target{sub.id, sub.filters})
		}
	}
	h.mu.Unlock()

	for _, t := range targets {
		h.logger.Info("liveness resync", "subscriber", t.id)
		h.Resync(t.id, t.filters)
	}
}

// RunLivenessMonitor drives periodic liveness checks until ctx is cancelled.
func (h *Hub) RunLivenessMonitor(ctx context.Context, interval, quietAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckLiveness(quietAfter)
		}
	}
}
