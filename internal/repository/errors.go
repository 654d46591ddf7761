// Package repository implements data access for the bidding engine on top
// of MySQL. This file defines the sentinel errors shared across
// repositories. They form the failure taxonomy of the engine: higher
// layers match them with errors.Is and translate them into HTTP status
// codes, so every distinct rejection reason a caller can observe has its
// own value here.
package repository

import "errors"

// ErrAuctionNotFound is returned when the requested auction id does not
// exist. Handlers translate this into 404.
var ErrAuctionNotFound = errors.New("auction not found")

// ErrProductNotFound is returned when a referenced product does not exist.
var ErrProductNotFound = errors.New("product not found")

// ErrProductAlreadyListed is returned when a seller tries to open an
// auction for a product that already has one; auctions.product_id is
// UNIQUE so at most one auction exists per product.
var ErrProductAlreadyListed = errors.New("product already has an auction")

// ErrAuctionNotActive is returned when a bid targets an auction that is
// not in the active state, or whose end time has already passed even
// though the scheduler has not flipped the row yet. Handlers translate
// this into 400.
var ErrAuctionNotActive = errors.New("auction is not active")

// ErrBidTooLow is returned when the submitted amount does not strictly
// exceed the current price. Handlers translate this into 400.
var ErrBidTooLow = errors.New("bid amount does not exceed current price")

// ErrSelfBid is returned when the bidder is the seller of the auctioned
// product. Handlers translate this into 403.
var ErrSelfBid = errors.New("seller cannot bid on own auction")

// ErrPriceConflict is returned when the conditional price update lost a
// race: the current price changed between the read and the write. The
// ledger retries a bounded number of times before surfacing this to the
// caller as 409.
var ErrPriceConflict = errors.New("current price changed concurrently")

// ErrTransitionNoop is returned when a lifecycle transition finds the
// auction already in the target or a later terminal state. Duplicate
// scheduler ticks hit this constantly; it is logged, never escalated.
var ErrTransitionNoop = errors.New("transition already applied")

// ErrNotOwner is returned when a caller tries to open or cancel an
// auction for a product they do not own. Handlers translate this into
// 403.
var ErrNotOwner = errors.New("caller does not own this resource")

// ErrInvalidAuction is returned when auction parameters fail validation:
// non-positive starting price, or an end time not after the start time.
var ErrInvalidAuction = errors.New("invalid auction parameters")

// ErrEmailExists is returned when registration hits the unique email
// constraint.
var ErrEmailExists = errors.New("email already exists")
