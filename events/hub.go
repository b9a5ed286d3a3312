// Package events fans application events out to any number of subscribers,
// such as websocket clients.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

type Type string

const (
	FilesAdded           Type = "files:added"
	FilesUpdated         Type = "files:updated"
	FilesRemoved         Type = "files:removed"
	FilesCleared         Type = "files:cleared"
	DurationMismatch     Type = "duration:mismatch"
	EncodingStarted      Type = "encoding:started"
	EncodingProgress     Type = "encoding:progress"
	EncodingFileComplete Type = "encoding:fileComplete"
	EncodingError        Type = "encoding:error"
	EncodingAllComplete  Type = "encoding:allComplete"
	EncodingCancelled    Type = "encoding:cancelled"
)

// Event is a single notification.
type Event struct {
	Type      Type  `json:"type"`
	Data      any   `json:"data,omitempty"`
	Timestamp int64 `json:"timestamp"` // unix milliseconds
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Subscription receives events on C until it is unsubscribed.
type Subscription struct {
	ID string
	C  <-chan Event
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	buffer      int
	logger      hclog.Logger
	closed      bool
}

// NewHub creates a Hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, logger hclog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Hub{
		subscribers: make(map[string]chan Event),
		buffer:      buffer,
		logger:      logger,
	}
}

// Subscribe registers a new subscriber. After Close the returned channel is
// already closed.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
	} else {
		h.subscribers[id] = ch
		h.logger.Debug("subscriber registered", "id", id, "subscribers", len(h.subscribers))
	}
	return &Subscription{ID: id, C: ch}
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
		h.logger.Debug("subscriber deregistered", "id", id)
	}
}

// Publish delivers an event to every subscriber without blocking. A
// subscriber whose buffer is full misses the event.
func (h *Hub) Publish(t Type, data any) {
	ev := Event{Type: t, Data: data, Timestamp: time.Now().UnixMilli()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber", "id", id, "type", t)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	h.closed = true
}
