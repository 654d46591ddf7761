// Package queue defines the notification messages exchanged over the
// message broker and the background consumer that drains them. The
// broker decouples the engine from the email/payment collaborators: a
// bid or transition is complete once its row is durable, and whatever
// happens to notifications afterwards never affects it.
package queue

// Notification kinds carried on the auction.notifications queue.
const (
	KindOutbid       = "outbid"
	KindSellerNewBid = "seller_new_bid"
	KindAuctionEnded = "auction_ended"
	KindEndingSoon   = "ending_soon"
)

// Notification is the single message shape published for every
// dispatcher call. Kind selects which of the optional sections is set.
// Keeping one envelope per queue keeps consumer wiring trivial and lets
// downstream services ignore kinds they do not handle.
type Notification struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	AuctionID uint64 `json:"auction_id"`
	EmittedAt string `json:"emitted_at"`

	Outbid       *OutbidNotice       `json:"outbid,omitempty"`
	SellerNewBid *SellerNewBidNotice `json:"seller_new_bid,omitempty"`
	AuctionEnded *AuctionEndedNotice `json:"auction_ended,omitempty"`
	EndingSoon   *EndingSoonNotice   `json:"ending_soon,omitempty"`
}

// OutbidNotice tells a previous bidder that someone went over their bid.
type OutbidNotice struct {
	BidderID  uint64 `json:"bidder_id"`
	NewAmount string `json:"new_amount"`
}

// SellerNewBidNotice tells the seller a new bid arrived.
type SellerNewBidNotice struct {
	SellerID uint64 `json:"seller_id"`
	BidderID uint64 `json:"bidder_id"`
	Amount   string `json:"amount"`
}

// AuctionEndedNotice carries the terminal outcome to the seller and the
// winner; payment initiation keys off this message. WinnerID and
// WinningAmount are absent when the auction ended without bids.
type AuctionEndedNotice struct {
	SellerID      uint64  `json:"seller_id"`
	WinnerID      *uint64 `json:"winner_id,omitempty"`
	WinningAmount *string `json:"winning_amount,omitempty"`
}

// EndingSoonNotice reminds every participant that the deadline is close.
type EndingSoonNotice struct {
	ParticipantIDs   []uint64 `json:"participant_ids"`
	SecondsRemaining int64    `json:"seconds_remaining"`
}
