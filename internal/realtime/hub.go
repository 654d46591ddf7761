package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls further behind than this starts losing events; a
// reconnecting client re-fetches state instead of relying on replay.
const subscriberBuffer = 16

// Subscription is one subscriber's attachment to an auction topic.
// Events arrive on C in the order they were broadcast. The channel is
// closed when the subscription is removed from the hub.
type Subscription struct {
	ID        string
	AuctionID uint64
	C         <-chan Event

	ch chan Event
}

// Hub is the process-local subscriber registry: auction id → set of
// subscriber channels. It holds no durable state and is rebuilt from
// live connections, so it must never be treated as a source of truth.
type Hub struct {
	mu     sync.RWMutex
	topics map[uint64]map[string]*Subscription
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[uint64]map[string]*Subscription)}
}

// Subscribe attaches a new subscriber to the auction's topic and returns
// its subscription. The caller owns the subscription and must call
// Unsubscribe when the connection goes away.
func (h *Hub) Subscribe(auctionID uint64) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{
		ID:        uuid.New().String(),
		AuctionID: auctionID,
		C:         ch,
		ch:        ch,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	topic, ok := h.topics[auctionID]
	if !ok {
		topic = make(map[string]*Subscription)
		h.topics[auctionID] = topic
	}
	topic[sub.ID] = sub
	return sub
}

// Unsubscribe detaches a subscriber and closes its channel. Unknown ids
// are ignored, so calling it twice on disconnect paths is safe.
func (h *Hub) Unsubscribe(auctionID uint64, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	topic, ok := h.topics[auctionID]
	if !ok {
		return
	}
	sub, ok := topic[subID]
	if !ok {
		return
	}
	delete(topic, subID)
	if len(topic) == 0 {
		delete(h.topics, auctionID)
	}
	close(sub.ch)
}

// Count returns the live subscriber count for an auction topic.
func (h *Hub) Count(auctionID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[auctionID])
}

// Broadcast delivers an event to every subscriber of its auction topic.
// The send never blocks: a subscriber whose buffer is full misses the
// event rather than stalling the publisher or its siblings.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.topics[ev.AuctionID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
