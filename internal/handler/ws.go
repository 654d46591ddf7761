package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/openbid/auction-engine/internal/realtime"
	"github.com/openbid/auction-engine/internal/repository"
	"github.com/openbid/auction-engine/internal/utils"
)

const (
	// writeWait bounds a single frame write to a slow client.
	writeWait = 10 * time.Second
	// pongWait is how long a silent client stays connected; pings go out
	// at a fraction of it.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Subscriptions are read-only and authenticated by JWT, so any
	// origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveHandler serves the realtime subscription endpoint: one WebSocket
// connection watches exactly one auction topic and receives its events
// in emission order until the client disconnects.
type LiveHandler struct {
	Hub      *realtime.Hub
	Auctions *repository.AuctionRepo
}

// NewLiveHandler constructs a LiveHandler.
func NewLiveHandler(hub *realtime.Hub, auctions *repository.AuctionRepo) *LiveHandler {
	if hub == nil || auctions == nil {
		panic("nil dependency passed to NewLiveHandler")
	}
	return &LiveHandler{Hub: hub, Auctions: auctions}
}

// Live handles GET /v1/auctions/:id/live. The first frame is an
// auction_joined snapshot (status, current price, subscriber count) so
// the client can render without a separate fetch; participant join and
// leave events go to the other local watchers. Event delivery is best
// effort: a client that cannot keep up misses events and is expected to
// re-fetch state on reconnect.
func (h *LiveHandler) Live(c echo.Context) error {
	id, err := auctionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	a, err := h.Auctions.GetAuction(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		}
		utils.Error("live: auction lookup failed", map[string]any{"auction_id": id, "error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		return nil
	}

	sub := h.Hub.Subscribe(id)
	count := h.Hub.Count(id)

	joined, err := realtime.NewEvent(realtime.EventAuctionJoined, id, realtime.AuctionJoinedPayload{
		Status:          string(a.Status),
		CurrentPrice:    realtime.Money(a.CurrentPrice),
		SubscriberCount: count,
	})
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(joined)
	}
	h.broadcastParticipant(realtime.EventParticipantJoined, id)

	done := make(chan struct{})
	go readLoop(conn, done)
	h.writeLoop(conn, sub, done)

	h.Hub.Unsubscribe(id, sub.ID)
	h.broadcastParticipant(realtime.EventParticipantLeft, id)
	_ = conn.Close()
	return nil
}

// broadcastParticipant reports the topic's new local subscriber count.
// Counts are per-process display data, so this stays off the cross
// process bridge on purpose.
func (h *LiveHandler) broadcastParticipant(eventType string, auctionID uint64) {
	ev, err := realtime.NewEvent(eventType, auctionID, realtime.ParticipantPayload{
		SubscriberCount: h.Hub.Count(auctionID),
	})
	if err != nil {
		return
	}
	h.Hub.Broadcast(ev)
}

// readLoop drains client frames so pongs and close frames are
// processed; subscribers never send application data.
func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop forwards subscription events and keeps the connection alive
// with pings until the subscription closes or the client goes away.
func (h *LiveHandler) writeLoop(conn *websocket.Conn, sub *realtime.Subscription, done <-chan struct{}) {
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
