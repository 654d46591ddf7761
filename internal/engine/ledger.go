package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/openbid/auction-engine/internal/model"
	"github.com/openbid/auction-engine/internal/realtime"
	"github.com/openbid/auction-engine/internal/repository"
	"github.com/openbid/auction-engine/internal/utils"
)

// bidRetryLimit bounds how often PlaceBid re-reads and retries after
// losing the price compare-and-swap to a concurrent bid. Beyond this the
// conflict is surfaced to the caller, who sees the refreshed price and
// can resubmit.
const bidRetryLimit = 3

// PlaceBid validates and records a bid. Preconditions are checked in a
// fixed order, each with its own sentinel so callers can tell rejections
// apart: the auction must exist, be active, not be past its end time
// (independently of whether the scheduler has ticked), the amount must
// strictly exceed the current price, and the bidder must not be the
// seller.
//
// The write itself is a compare-and-swap against the price that was just
// validated, executed atomically with the bid insert by the store. Two
// bids racing on the same stale price therefore never both succeed: the
// loser re-reads and retries against the refreshed price up to
// bidRetryLimit times before repository.ErrPriceConflict is surfaced.
//
// A successful bid is durable once this returns; the realtime publish
// and the outbid/seller notifications that follow are best effort and
// never fail the bid.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID uint64, amount decimal.Decimal) (model.Bid, error) {
	var lastErr error
	for attempt := 0; attempt < bidRetryLimit; attempt++ {
		a, err := e.store.GetAuction(ctx, auctionID)
		if err != nil {
			return model.Bid{}, fmt.Errorf("ledger: load auction %d: %w", auctionID, err)
		}
		now := e.now()
		if !a.Active(now) {
			return model.Bid{}, fmt.Errorf("ledger: auction %d: %w", auctionID, repository.ErrAuctionNotActive)
		}
		if !amount.GreaterThan(a.CurrentPrice) {
			return model.Bid{}, fmt.Errorf("ledger: auction %d: current price is %s: %w",
				auctionID, a.CurrentPrice.StringFixed(2), repository.ErrBidTooLow)
		}
		if bidderID == a.SellerID {
			return model.Bid{}, fmt.Errorf("ledger: auction %d: %w", auctionID, repository.ErrSelfBid)
		}

		bid, err := e.store.ApplyBid(ctx, auctionID, bidderID, amount, a.CurrentPrice)
		if errors.Is(err, repository.ErrPriceConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return model.Bid{}, fmt.Errorf("ledger: apply bid on auction %d: %w", auctionID, err)
		}

		e.afterBid(a, bid)
		return bid, nil
	}
	return model.Bid{}, fmt.Errorf("ledger: auction %d: %w", auctionID, lastErr)
}

// afterBid runs the post-commit side effects of an accepted bid: the
// new_bid event for watchers, an advisory ending_soon event when the
// deadline is close, and asynchronous outbid/seller notifications.
func (e *Engine) afterBid(a model.Auction, bid model.Bid) {
	e.publish(realtime.EventNewBid, a.ID, realtime.NewBidPayload{
		BidID:        bid.ID,
		BidderID:     bid.BidderID,
		Amount:       realtime.Money(bid.Amount),
		CurrentPrice: realtime.Money(bid.Amount),
	})

	if remaining := a.EndTime.Sub(e.now()); remaining > 0 && remaining <= endingSoonWindow {
		e.publish(realtime.EventEndingSoon, a.ID, realtime.EndingSoonPayload{
			SecondsRemaining: int64(remaining.Seconds()),
		})
	}

	go e.notifyAfterBid(a, bid)
}

// notifyAfterBid tells prior distinct bidders they were outbid and the
// seller that a new bid arrived. Runs detached from the request path;
// each dispatcher call is attempted once and failures are logged, the
// dispatcher implementation owns retries.
func (e *Engine) notifyAfterBid(a model.Auction, bid model.Bid) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	prior, err := e.bids.PriorBidders(ctx, a.ID, bid.BidderID)
	if err != nil {
		utils.Error("ledger: list prior bidders failed", map[string]any{
			"auction_id": a.ID, "error": err.Error(),
		})
	}
	for _, bidderID := range prior {
		if err := e.dispatch.NotifyOutbid(ctx, bidderID, a.ID, bid.Amount); err != nil {
			utils.Error("ledger: outbid notify failed", map[string]any{
				"auction_id": a.ID, "bidder_id": bidderID, "error": err.Error(),
			})
		}
	}
	if err := e.dispatch.NotifySellerNewBid(ctx, a.SellerID, a.ID, bid.Amount, bid.BidderID); err != nil {
		utils.Error("ledger: seller notify failed", map[string]any{
			"auction_id": a.ID, "seller_id": a.SellerID, "error": err.Error(),
		})
	}
}
