// Package hub fans dashboard events out to connected subscribers.
//
// Delivery is best-effort: a subscriber whose buffer is full has the
// event dropped rather than blocking the publisher or other
// subscribers. There is no replay; subscribers only see events
// published after they connect. This is not a durability mechanism.
package hub

import (
	"errors"
	"sync"
	"sync/atomic"

	"sensorvision/internal/models"
)

var (
	// ErrSubscriberExists is returned for a duplicate subscriber id.
	ErrSubscriberExists = errors.New("subscriber id already exists")

	// ErrSubscriberNotFound is returned when unsubscribing an unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")

	// ErrHubClosed is returned once the hub has shut down.
	ErrHubClosed = errors.New("hub is closed")
)

const defaultBuffer = 32

// Stats is a snapshot of hub delivery counters.
type Stats struct {
	Published uint64
	Sent      uint64
	Dropped   uint64
}

// Hub is the in-memory subscriber registry for one logical topic.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan models.DashboardEvent
	closed      bool

	published atomic.Uint64
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

func New() *Hub {
	return &Hub{
		subscribers: make(map[string]chan models.DashboardEvent),
	}
}

// Subscribe registers a subscriber and returns its event channel. The
// welcome acknowledgment is queued first so it always precedes any
// later event for this subscriber.
func (h *Hub) Subscribe(id string, buffer int) (<-chan models.DashboardEvent, error) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if _, ok := h.subscribers[id]; ok {
		return nil, ErrSubscriberExists
	}

	ch := make(chan models.DashboardEvent, buffer)
	ch <- models.DashboardEvent{Kind: models.EventWelcome}
	h.subscribers[id] = ch
	return ch, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.subscribers[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	delete(h.subscribers, id)
	close(ch)
	return nil
}

// Publish delivers the event to every currently connected subscriber
// without blocking. Full subscribers are skipped.
func (h *Hub) Publish(evt models.DashboardEvent) {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- evt:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

// Stats returns current delivery counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Published: h.published.Load(),
		Sent:      h.sent.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
