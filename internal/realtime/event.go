// Package realtime implements the per-auction publish/subscribe channel:
// typed events, an in-process subscriber hub, and a Redis bridge that
// fans events out across serving processes. Delivery is best effort and
// at most once per connected subscriber; clients that reconnect re-fetch
// current state instead of relying on replay.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types emitted on an auction topic.
const (
	EventAuctionJoined     = "auction_joined"
	EventNewBid            = "new_bid"
	EventEndingSoon        = "ending_soon"
	EventAuctionEnded      = "auction_ended"
	EventAuctionCancelled  = "auction_cancelled"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

// Event is the envelope delivered to every subscriber of an auction
// topic and carried over the Redis bridge between processes. Data holds
// the type-specific payload, already marshaled so the envelope can cross
// process boundaries unchanged.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	AuctionID uint64          `json:"auction_id"`
	At        time.Time       `json:"at"`
	Data      json.RawMessage `json:"data"`
}

// NewBidPayload announces an accepted bid and the resulting price.
type NewBidPayload struct {
	BidID        uint64 `json:"bid_id"`
	BidderID     uint64 `json:"bidder_id"`
	Amount       string `json:"amount"`
	CurrentPrice string `json:"current_price"`
}

// EndingSoonPayload warns that the deadline is close. Advisory only; the
// deadline itself never moves.
type EndingSoonPayload struct {
	SecondsRemaining int64 `json:"seconds_remaining"`
}

// AuctionEndedPayload carries the terminal outcome. WinnerID and
// WinningAmount are nil when the auction ended without bids.
type AuctionEndedPayload struct {
	WinnerID      *uint64 `json:"winner_id"`
	WinningAmount *string `json:"winning_amount"`
}

// AuctionJoinedPayload is the first event a new subscriber receives: the
// state it needs to render the auction without another fetch.
type AuctionJoinedPayload struct {
	Status          string `json:"status"`
	CurrentPrice    string `json:"current_price"`
	SubscriberCount int    `json:"subscriber_count"`
}

// ParticipantPayload reports the topic's live subscriber count after a
// join or leave. Display only; the count is process-local and rebuilt
// from active connections.
type ParticipantPayload struct {
	SubscriberCount int `json:"subscriber_count"`
}

// NewEvent wraps a payload into an Event envelope. Marshaling a local
// payload struct cannot fail in practice; an error here indicates a
// programming mistake and is returned for the caller to log.
func NewEvent(eventType string, auctionID uint64, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		AuctionID: auctionID,
		At:        time.Now().UTC(),
		Data:      data,
	}, nil
}

// Money renders a decimal amount the way every event payload carries
// prices: fixed two decimal places.
func Money(d decimal.Decimal) string { return d.StringFixed(2) }
