package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid mirrors a row in the `bids` table. Bids are append-only: a row is
// written once by a successful bid acceptance and never updated or
// deleted afterwards.
type Bid struct {
	ID        uint64
	AuctionID uint64
	BidderID  uint64
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// WinningBid selects the winner from an auction's bid log: the bid with
// the highest amount, breaking ties by earliest creation time and then by
// lowest id (insertion order). Returns nil when the log is empty.
func WinningBid(bids []Bid) *Bid {
	if len(bids) == 0 {
		return nil
	}
	win := &bids[0]
	for i := 1; i < len(bids); i++ {
		b := &bids[i]
		switch {
		case b.Amount.GreaterThan(win.Amount):
			win = b
		case b.Amount.Equal(win.Amount) && b.CreatedAt.Before(win.CreatedAt):
			win = b
		case b.Amount.Equal(win.Amount) && b.CreatedAt.Equal(win.CreatedAt) && b.ID < win.ID:
			win = b
		}
	}
	return win
}
