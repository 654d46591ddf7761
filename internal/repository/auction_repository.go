package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbid/auction-engine/internal/model"
)

// AuctionRepo provides data access to the auctions table. All timestamps
// are stored and compared in UTC. The two state-changing hot paths,
// ApplyBid and CompleteAuction, are implemented as single transactions so
// that no partial effect is ever observable: either the bid row and the
// new price land together, or neither does.
type AuctionRepo struct {
	db *sql.DB
}

// NewAuctionRepo returns a new AuctionRepo bound to the provided database.
func NewAuctionRepo(db *sql.DB) *AuctionRepo { return &AuctionRepo{db: db} }

// DB exposes the underlying pool for callers that need to compose their
// own transactions.
func (r *AuctionRepo) DB() *sql.DB { return r.db }

const auctionColumns = `id, product_id, seller_id, starting_price, current_price, reserve_price,
       start_time, end_time, status, winner_id, views, created_at, updated_at`

func scanAuction(row interface{ Scan(...any) error }) (model.Auction, error) {
	var (
		a       model.Auction
		reserve decimal.NullDecimal
		winner  sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.ProductID, &a.SellerID, &a.StartingPrice, &a.CurrentPrice,
		&reserve, &a.StartTime, &a.EndTime, &a.Status, &winner, &a.Views,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	if reserve.Valid {
		v := reserve.Decimal
		a.ReservePrice = &v
	}
	if winner.Valid {
		w := uint64(winner.Int64)
		a.WinnerID = &w
	}
	return a, nil
}

// GetAuction fetches a single auction by id.
func (r *AuctionRepo) GetAuction(ctx context.Context, id uint64) (model.Auction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, ErrAuctionNotFound
	}
	return a, err
}

// CreateAuction inserts a new auction row and returns it with the
// generated id. The UNIQUE constraint on product_id enforces the
// one-live-auction-per-product rule; a duplicate key is mapped to
// ErrProductAlreadyListed.
func (r *AuctionRepo) CreateAuction(ctx context.Context, a model.Auction) (model.Auction, error) {
	var reserve any
	if a.ReservePrice != nil {
		reserve = a.ReservePrice.StringFixed(2)
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO auctions
		   (product_id, seller_id, starting_price, current_price, reserve_price,
		    start_time, end_time, status, views, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,0,?,?)`,
		a.ProductID, a.SellerID, a.StartingPrice.StringFixed(2), a.StartingPrice.StringFixed(2),
		reserve, a.StartTime.UTC(), a.EndTime.UTC(), string(a.Status), now, now)
	if err != nil {
		if strings.Contains(err.Error(), "1062") {
			return model.Auction{}, ErrProductAlreadyListed
		}
		return model.Auction{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Auction{}, err
	}
	a.ID = uint64(id)
	a.CurrentPrice = a.StartingPrice
	a.CreatedAt = now
	a.UpdatedAt = now
	return a, nil
}

// ApplyBid atomically appends a bid row and advances the current price.
// priceSeen must be the current price the caller validated the amount
// against; the UPDATE only succeeds while that value is still in place
// and the auction is still active (compare-and-swap). When another bid
// or a lifecycle transition won the race, no row matches, the
// transaction is rolled back and ErrPriceConflict is returned so the
// caller can re-read and retry.
func (r *AuctionRepo) ApplyBid(ctx context.Context, auctionID, bidderID uint64, amount, priceSeen decimal.Decimal) (model.Bid, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Bid{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bids (auction_id, bidder_id, amount, created_at) VALUES (?,?,?,?)`,
		auctionID, bidderID, amount.StringFixed(2), now)
	if err != nil {
		return model.Bid{}, err
	}
	bidID, err := res.LastInsertId()
	if err != nil {
		return model.Bid{}, err
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE auctions SET current_price = ?, updated_at = ?
		  WHERE id = ? AND current_price = ? AND status = 'active'`,
		amount.StringFixed(2), now, auctionID, priceSeen.StringFixed(2))
	if err != nil {
		return model.Bid{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Bid{}, err
	}
	if n == 0 {
		return model.Bid{}, ErrPriceConflict
	}

	if err := tx.Commit(); err != nil {
		return model.Bid{}, err
	}
	committed = true
	return model.Bid{
		ID:        uint64(bidID),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now,
	}, nil
}

// EndResult describes the outcome of CompleteAuction: the terminal auction
// row and the winning bid, nil when the auction ended without bids.
type EndResult struct {
	Auction model.Auction
	Winner  *model.Bid
}

// CompleteAuction drives active→ended for one auction. The auction row is
// locked for the duration of the transaction, which linearizes completion
// against racing bids: a bid transaction that has not committed yet will
// find status != 'active' afterwards and fail its compare-and-swap. The
// winning bid (highest amount, earliest timestamp on ties) is selected
// inside the same transaction that flips the status, so the winner can
// never disagree with the final price.
//
// Calling CompleteAuction on an auction that is already in a terminal
// state returns ErrTransitionNoop; duplicate or concurrent scheduler
// ticks are therefore harmless, and the caller that does NOT get the
// noop is the single one responsible for terminal side effects.
func (r *AuctionRepo) CompleteAuction(ctx context.Context, auctionID uint64) (EndResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return EndResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = ? FOR UPDATE`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return EndResult{}, ErrAuctionNotFound
	}
	if err != nil {
		return EndResult{}, err
	}
	if !a.Status.CanTransitionTo(model.StatusEnded) {
		// Already ended/cancelled, or still scheduled. Either way this
		// call has nothing to do.
		return EndResult{}, ErrTransitionNoop
	}

	bids, err := listBidsTx(ctx, tx, auctionID)
	if err != nil {
		return EndResult{}, err
	}
	winner := model.WinningBid(bids)

	var winnerID any
	if winner != nil {
		winnerID = winner.BidderID
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE auctions SET status = 'ended', winner_id = ?, updated_at = ? WHERE id = ?`,
		winnerID, now, auctionID); err != nil {
		return EndResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return EndResult{}, err
	}
	committed = true

	a.Status = model.StatusEnded
	a.UpdatedAt = now
	if winner != nil {
		w := winner.BidderID
		a.WinnerID = &w
	}
	return EndResult{Auction: a, Winner: winner}, nil
}

// CancelAuction drives scheduled/active→cancelled. Returns
// ErrTransitionNoop when the auction is already in a terminal state.
func (r *AuctionRepo) CancelAuction(ctx context.Context, auctionID uint64) (model.Auction, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = 'cancelled', updated_at = ?
		  WHERE id = ? AND status IN ('scheduled','active')`,
		time.Now().UTC(), auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Auction{}, err
	}
	if n == 0 {
		// Distinguish "no such auction" from "already terminal".
		a, err := r.GetAuction(ctx, auctionID)
		if err != nil {
			return model.Auction{}, err
		}
		return a, ErrTransitionNoop
	}
	return r.GetAuction(ctx, auctionID)
}

// ActivateDueAuctions flips every scheduled auction whose start time has
// passed to active and returns the ids that were flipped by this call.
// The per-row conditional UPDATE makes concurrent scheduler ticks safe:
// each auction is activated exactly once.
func (r *AuctionRepo) ActivateDueAuctions(ctx context.Context, now time.Time) ([]uint64, error) {
	ids, err := r.collectIDs(ctx,
		`SELECT id FROM auctions WHERE status = 'scheduled' AND start_time <= ?`, now.UTC())
	if err != nil {
		return nil, err
	}
	var flipped []uint64
	for _, id := range ids {
		res, err := r.db.ExecContext(ctx,
			`UPDATE auctions SET status = 'active', updated_at = ?
			  WHERE id = ? AND status = 'scheduled'`,
			now.UTC(), id)
		if err != nil {
			return flipped, err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			flipped = append(flipped, id)
		}
	}
	return flipped, nil
}

// DueToEnd lists active auctions whose end time has passed. Completion
// itself goes through CompleteAuction per id so that one failing auction
// does not block the rest of a scheduler tick.
func (r *AuctionRepo) DueToEnd(ctx context.Context, now time.Time) ([]uint64, error) {
	return r.collectIDs(ctx,
		`SELECT id FROM auctions WHERE status = 'active' AND end_time <= ?`, now.UTC())
}

// DueForReminder lists active auctions ending within the given window
// whose one-time reminder has not been sent yet. The dedup marker lives
// in auction_reminders; see MarkReminderSent.
func (r *AuctionRepo) DueForReminder(ctx context.Context, now time.Time, window time.Duration) ([]model.Auction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions a
		  WHERE a.status = 'active'
		    AND a.end_time > ?
		    AND a.end_time <= ?
		    AND NOT EXISTS (SELECT 1 FROM auction_reminders r WHERE r.auction_id = a.id)`,
		now.UTC(), now.UTC().Add(window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkReminderSent records that the ending-soon reminder for an auction
// went out. INSERT IGNORE against the primary key makes the marker
// first-writer-wins: it returns true only for the single caller that
// actually inserted the row, so the reminder dispatch happens at most
// once per auction no matter how often the sweep runs.
func (r *AuctionRepo) MarkReminderSent(ctx context.Context, auctionID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO auction_reminders (auction_id, sent_at) VALUES (?, ?)`,
		auctionID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListOpen returns scheduled and active auctions ordered by closest
// deadline first.
func (r *AuctionRepo) ListOpen(ctx context.Context) ([]model.Auction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions
		  WHERE status IN ('scheduled','active') ORDER BY end_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// IncrementViews bumps the display-only view counter. Lost updates do not
// matter here, so this is a plain atomic increment.
func (r *AuctionRepo) IncrementViews(ctx context.Context, auctionID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET views = views + 1 WHERE id = ?`, auctionID)
	return err
}

func (r *AuctionRepo) collectIDs(ctx context.Context, query string, args ...any) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
