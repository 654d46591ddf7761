package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbid/auction-engine/internal/model"
	"github.com/openbid/auction-engine/internal/realtime"
	"github.com/openbid/auction-engine/internal/repository"
)

// OpenAuction creates an auction for a product the seller owns. The
// auction starts in the scheduled state, or directly active when the
// start time has already passed. The store's unique constraint on the
// product id guarantees at most one auction per product.
func (e *Engine) OpenAuction(ctx context.Context, sellerID, productID uint64, startingPrice decimal.Decimal, reservePrice *decimal.Decimal, startTime, endTime time.Time) (model.Auction, error) {
	if !startingPrice.IsPositive() || !endTime.After(startTime) {
		return model.Auction{}, fmt.Errorf("lifecycle: %w", repository.ErrInvalidAuction)
	}
	product, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("lifecycle: load product %d: %w", productID, err)
	}
	if product.SellerID != sellerID {
		return model.Auction{}, fmt.Errorf("lifecycle: product %d: %w", productID, repository.ErrNotOwner)
	}

	status := model.StatusScheduled
	if !startTime.After(e.now()) {
		status = model.StatusActive
	}
	a, err := e.store.CreateAuction(ctx, model.Auction{
		ProductID:     productID,
		SellerID:      sellerID,
		StartingPrice: startingPrice,
		CurrentPrice:  startingPrice,
		ReservePrice:  reservePrice,
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		Status:        status,
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("lifecycle: create auction for product %d: %w", productID, err)
	}
	return a, nil
}

// EndAuction drives active→ended for one auction and performs the
// terminal side effects. The status flip and winner selection happen in
// one store transaction; only the single caller whose flip actually
// applied publishes the auction_ended event and fires the dispatcher, so
// a duplicated or concurrently ticking scheduler cannot double-notify.
// Re-ending an already terminal auction returns
// repository.ErrTransitionNoop.
func (e *Engine) EndAuction(ctx context.Context, auctionID uint64) (repository.EndResult, error) {
	res, err := e.store.CompleteAuction(ctx, auctionID)
	if err != nil {
		return repository.EndResult{}, fmt.Errorf("lifecycle: end auction %d: %w", auctionID, err)
	}

	var (
		winnerID  *uint64
		winAmount *string
		winDec    *decimal.Decimal
	)
	if res.Winner != nil {
		winnerID = &res.Winner.BidderID
		s := realtime.Money(res.Winner.Amount)
		winAmount = &s
		amt := res.Winner.Amount
		winDec = &amt
	}
	e.publish(realtime.EventAuctionEnded, auctionID, realtime.AuctionEndedPayload{
		WinnerID:      winnerID,
		WinningAmount: winAmount,
	})

	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := e.dispatch.NotifyAuctionEnded(nctx, auctionID, winnerID, winDec, res.Auction.SellerID); err != nil {
			logDispatchFailure("auction ended", auctionID, err)
		}
	}()
	return res, nil
}

// CancelAuction drives scheduled/active→cancelled on behalf of the
// seller. Terminal auctions cannot be cancelled; the attempt returns
// repository.ErrTransitionNoop.
func (e *Engine) CancelAuction(ctx context.Context, auctionID, requesterID uint64) (model.Auction, error) {
	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("lifecycle: load auction %d: %w", auctionID, err)
	}
	if a.SellerID != requesterID {
		return model.Auction{}, fmt.Errorf("lifecycle: auction %d: %w", auctionID, repository.ErrNotOwner)
	}
	cancelled, err := e.store.CancelAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransitionNoop) {
			return cancelled, fmt.Errorf("lifecycle: cancel auction %d: %w", auctionID, err)
		}
		return model.Auction{}, fmt.Errorf("lifecycle: cancel auction %d: %w", auctionID, err)
	}
	e.publish(realtime.EventAuctionCancelled, auctionID, struct{}{})
	return cancelled, nil
}
