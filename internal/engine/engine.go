// Package engine contains the auction bidding core: the bid ledger that
// accepts concurrent bids under a strict monotonic-price rule, the
// lifecycle operations that move auctions between states, and the
// scheduler that applies time-driven transitions. The engine holds no
// cross-request state of its own; everything durable lives behind the
// Store interface, which keeps the engine stateless and lets any number
// of processes run it against the same database.
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbid/auction-engine/internal/model"
	"github.com/openbid/auction-engine/internal/realtime"
	"github.com/openbid/auction-engine/internal/repository"
	"github.com/openbid/auction-engine/internal/utils"
)

// Store is the persistence surface the engine drives. The implementation
// must make ApplyBid and CompleteAuction atomic: ApplyBid is a
// compare-and-swap on the current price, CompleteAuction a conditional
// status flip that selects the winner in the same transaction.
// repository.AuctionRepo is the production implementation.
type Store interface {
	GetAuction(ctx context.Context, id uint64) (model.Auction, error)
	CreateAuction(ctx context.Context, a model.Auction) (model.Auction, error)
	ApplyBid(ctx context.Context, auctionID, bidderID uint64, amount, priceSeen decimal.Decimal) (model.Bid, error)
	CompleteAuction(ctx context.Context, auctionID uint64) (repository.EndResult, error)
	CancelAuction(ctx context.Context, auctionID uint64) (model.Auction, error)
	ActivateDueAuctions(ctx context.Context, now time.Time) ([]uint64, error)
	DueToEnd(ctx context.Context, now time.Time) ([]uint64, error)
	DueForReminder(ctx context.Context, now time.Time, window time.Duration) ([]model.Auction, error)
	MarkReminderSent(ctx context.Context, auctionID uint64) (bool, error)
}

// BidLog is the read side of the append-only bid history, backed by
// repository.BidRepo.
type BidLog interface {
	PriorBidders(ctx context.Context, auctionID, exclude uint64) ([]uint64, error)
	Participants(ctx context.Context, auctionID uint64) ([]uint64, error)
}

// Catalog is the narrow slice of the external product service the
// engine needs: resolving a product's owner.
type Catalog interface {
	GetProduct(ctx context.Context, id uint64) (model.Product, error)
}

// Dispatcher is the external notification/settlement collaborator. Every
// call is fire-and-forget from the engine's point of view: the engine
// attempts each call once, logs failures, and never lets them fail the
// bid or transition that triggered them. Retrying on transient failure
// is the implementation's job.
type Dispatcher interface {
	NotifyOutbid(ctx context.Context, previousBidderID, auctionID uint64, newAmount decimal.Decimal) error
	NotifySellerNewBid(ctx context.Context, sellerID, auctionID uint64, amount decimal.Decimal, bidderID uint64) error
	NotifyAuctionEnded(ctx context.Context, auctionID uint64, winnerID *uint64, winningAmount *decimal.Decimal, sellerID uint64) error
	NotifyEndingSoon(ctx context.Context, participantIDs []uint64, auctionID uint64, secondsRemaining int64) error
}

// EventPublisher fans an event out to the auction's realtime watchers.
// Publishing is non-blocking best effort; realtime.Bridge is the
// production implementation.
type EventPublisher interface {
	Publish(ev realtime.Event)
}

// endingSoonWindow is how close to the deadline a bid must land for the
// advisory ending_soon event to ride along with it. The deadline itself
// never moves; there is no soft close.
const endingSoonWindow = 5 * time.Minute

// notifyTimeout bounds the background dispatcher calls that follow a bid
// or transition.
const notifyTimeout = 10 * time.Second

// Engine wires the bid ledger and lifecycle operations to their
// collaborators.
type Engine struct {
	store    Store
	bids     BidLog
	catalog  Catalog
	dispatch Dispatcher
	events   EventPublisher

	// now is indirected so tests can pin the clock.
	now func() time.Time
}

// New creates an Engine. All dependencies must be non-nil.
func New(store Store, bids BidLog, catalog Catalog, dispatch Dispatcher, events EventPublisher) *Engine {
	if store == nil || bids == nil || catalog == nil || dispatch == nil || events == nil {
		panic("nil dependency passed to engine.New")
	}
	return &Engine{
		store:    store,
		bids:     bids,
		catalog:  catalog,
		dispatch: dispatch,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// publish wraps a payload and hands it to the event publisher, logging
// instead of failing when the payload cannot be marshaled.
func (e *Engine) publish(eventType string, auctionID uint64, payload any) {
	ev, err := realtime.NewEvent(eventType, auctionID, payload)
	if err != nil {
		utils.Error("engine: build event failed", map[string]any{
			"type": eventType, "auction_id": auctionID, "error": err.Error(),
		})
		return
	}
	e.events.Publish(ev)
}

// logDispatchFailure records a failed fire-and-forget dispatcher call.
// The dispatcher owns retries; the engine only leaves a trace.
func logDispatchFailure(call string, auctionID uint64, err error) {
	utils.Error("engine: dispatcher call failed", map[string]any{
		"call": call, "auction_id": auctionID, "error": err.Error(),
	})
}
