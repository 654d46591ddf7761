package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/openbid/auction-engine/internal/utils"
)

// eventsChannel is the single Redis pub/sub channel all processes share.
// Routing to per-auction topics happens locally in each hub using the
// auction id carried in the envelope.
const eventsChannel = "auction.events"

// Bridge connects the process-local hub to Redis pub/sub so that every
// serving process observes every auction event, whichever process
// accepted the bid. When no Redis client is available the bridge
// degrades to local-only delivery, which is correct for a single
// process deployment.
type Bridge struct {
	hub *Hub
	rdb *redis.Client
}

// NewBridge wraps a hub. rdb may be nil; see Bridge.
func NewBridge(hub *Hub, rdb *redis.Client) *Bridge {
	return &Bridge{hub: hub, rdb: rdb}
}

// Publish sends an event to every subscriber, across processes when
// Redis is available. With Redis the local delivery happens through the
// subscribe loop like everyone else's, so ordering is identical on all
// processes. Publish failures fall back to local delivery; the event is
// never silently lost to local watchers.
func (b *Bridge) Publish(ev Event) {
	if b.rdb == nil {
		b.hub.Broadcast(ev)
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		utils.Error("realtime: marshal event failed", map[string]any{"type": ev.Type, "error": err.Error()})
		return
	}
	if err := b.rdb.Publish(context.Background(), eventsChannel, payload).Err(); err != nil {
		utils.Warn("realtime: redis publish failed, delivering locally", map[string]any{
			"type": ev.Type, "auction_id": ev.AuctionID, "error": err.Error(),
		})
		b.hub.Broadcast(ev)
	}
}

// Run consumes the shared Redis channel and feeds events into the local
// hub until the context is cancelled. It is a no-op without Redis.
func (b *Bridge) Run(ctx context.Context) {
	if b.rdb == nil {
		return
	}
	pubsub := b.rdb.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				utils.Error("realtime: unmarshal event failed", map[string]any{"error": err.Error()})
				continue
			}
			b.hub.Broadcast(ev)
		}
	}
}
