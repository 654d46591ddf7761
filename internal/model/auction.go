package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the lifecycle states of an auction as stored in the
// auctions.status column. An auction is created as StatusScheduled (or
// StatusActive when its start time has already passed), becomes active when
// the start time is reached, and finishes in one of the two terminal states.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition may leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// CanTransitionTo reports whether the lifecycle permits moving from s to
// target. Valid moves are scheduled→active (time driven), active→ended
// (time driven) and scheduled/active→cancelled (operator driven). Terminal
// states have no outgoing transitions.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusScheduled:
		return target == StatusActive || target == StatusCancelled
	case StatusActive:
		return target == StatusEnded || target == StatusCancelled
	default:
		return false
	}
}

// Auction mirrors a row in the `auctions` table. Prices are DECIMAL(12,2)
// columns and are handled as decimal values end to end so that bid
// comparisons never go through floating point. ReservePrice and WinnerID
// are nullable columns.
//
// Fields:
//  ID            – primary key identifier of the auction.
//  ProductID     – the product being sold; UNIQUE, one live auction per product.
//  SellerID      – owner of the product; denormalized for the self-bid check.
//  StartingPrice – price the bidding opens at.
//  CurrentPrice  – highest accepted bid so far, or StartingPrice if none.
//  ReservePrice  – optional minimum the seller hopes to reach.
//  StartTime     – when bidding opens (UTC).
//  EndTime       – when bidding closes (UTC); always after StartTime.
//  Status        – lifecycle state, see Status.
//  WinnerID      – set when the auction ended with at least one bid.
//  Views         – display-only view counter.
type Auction struct {
	ID            uint64
	ProductID     uint64
	SellerID      uint64
	StartingPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	ReservePrice  *decimal.Decimal
	StartTime     time.Time
	EndTime       time.Time
	Status        Status
	WinnerID      *uint64
	Views         uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the auction accepts bids at the given instant:
// the status must be active and the deadline must not have passed. The
// time check is deliberately independent of the scheduler so a stale
// "active" row past its end time still rejects bids.
func (a *Auction) Active(now time.Time) bool {
	return a.Status == StatusActive && now.Before(a.EndTime)
}
