package repository

import (
	"context"
	"database/sql"

	"github.com/openbid/auction-engine/internal/model"
)

// BidRepo provides read access to the append-only bids table. Bid rows
// are only ever written through AuctionRepo.ApplyBid; there is no update
// or delete path anywhere.
type BidRepo struct {
	db *sql.DB
}

// NewBidRepo returns a new BidRepo bound to the provided database.
func NewBidRepo(db *sql.DB) *BidRepo { return &BidRepo{db: db} }

const bidColumns = `id, auction_id, bidder_id, amount, created_at`

// listBidsTx loads the full bid log for an auction in commit order inside
// an existing transaction. Used by auction completion so the winner is
// selected against the same snapshot that flips the status.
func listBidsTx(ctx context.Context, tx *sql.Tx, auctionID uint64) ([]model.Bid, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = ? ORDER BY created_at ASC, id ASC`,
		auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBids(rows)
}

// ListByAuction returns the bid history for an auction, newest first.
func (r *BidRepo) ListByAuction(ctx context.Context, auctionID uint64) ([]model.Bid, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = ? ORDER BY created_at DESC, id DESC`,
		auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBids(rows)
}

// PriorBidders returns the distinct bidders on an auction excluding the
// given one. Used to fan out outbid notifications after a new bid lands.
func (r *BidRepo) PriorBidders(ctx context.Context, auctionID, exclude uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT bidder_id FROM bids WHERE auction_id = ? AND bidder_id <> ?`,
		auctionID, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Participants returns every distinct bidder on an auction. Used for the
// ending-soon reminder dispatch.
func (r *BidRepo) Participants(ctx context.Context, auctionID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT bidder_id FROM bids WHERE auction_id = ?`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanBids(rows *sql.Rows) ([]model.Bid, error) {
	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}
