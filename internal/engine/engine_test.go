package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbid/auction-engine/internal/model"
	"github.com/openbid/auction-engine/internal/realtime"
	"github.com/openbid/auction-engine/internal/repository"
)

// fakeStore is an in-memory Store/BidLog with the same conditional-write
// semantics as the MySQL repository: ApplyBid is a compare-and-swap on
// the current price and CompleteAuction/CancelAuction are conditional
// status flips.
type fakeStore struct {
	mu        sync.Mutex
	auctions  map[uint64]model.Auction
	bids      map[uint64][]model.Bid
	reminders map[uint64]bool

	nextAuctionID uint64
	nextBidID     uint64

	// preApply runs at the top of ApplyBid while holding the lock; tests
	// use it to squeeze a concurrent bid between the engine's read and
	// its compare-and-swap.
	preApply func(s *fakeStore)

	// completeErr fails CompleteAuction for specific auctions.
	completeErr map[uint64]error

	// extraDueToEnd pads the end sweep with ids the status check would
	// not have selected, mimicking a stale sweep racing another process.
	extraDueToEnd []uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		auctions:  make(map[uint64]model.Auction),
		bids:      make(map[uint64][]model.Bid),
		reminders: make(map[uint64]bool),
	}
}

func (s *fakeStore) putAuction(a model.Auction) model.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextAuctionID++
		a.ID = s.nextAuctionID
	} else if a.ID > s.nextAuctionID {
		s.nextAuctionID = a.ID
	}
	s.auctions[a.ID] = a
	return a
}

func (s *fakeStore) auction(id uint64) model.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auctions[id]
}

func (s *fakeStore) insertBidLocked(auctionID, bidderID uint64, amount decimal.Decimal, at time.Time) model.Bid {
	s.nextBidID++
	b := model.Bid{ID: s.nextBidID, AuctionID: auctionID, BidderID: bidderID, Amount: amount, CreatedAt: at}
	s.bids[auctionID] = append(s.bids[auctionID], b)
	a := s.auctions[auctionID]
	a.CurrentPrice = amount
	s.auctions[auctionID] = a
	return b
}

func (s *fakeStore) GetAuction(_ context.Context, id uint64) (model.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return model.Auction{}, repository.ErrAuctionNotFound
	}
	return a, nil
}

func (s *fakeStore) CreateAuction(_ context.Context, a model.Auction) (model.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.auctions {
		if existing.ProductID == a.ProductID {
			return model.Auction{}, repository.ErrProductAlreadyListed
		}
	}
	s.nextAuctionID++
	a.ID = s.nextAuctionID
	s.auctions[a.ID] = a
	return a, nil
}

func (s *fakeStore) ApplyBid(_ context.Context, auctionID, bidderID uint64, amount, priceSeen decimal.Decimal) (model.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preApply != nil {
		s.preApply(s)
	}
	a, ok := s.auctions[auctionID]
	if !ok {
		return model.Bid{}, repository.ErrAuctionNotFound
	}
	if a.Status != model.StatusActive || !a.CurrentPrice.Equal(priceSeen) {
		return model.Bid{}, repository.ErrPriceConflict
	}
	return s.insertBidLocked(auctionID, bidderID, amount, time.Now().UTC()), nil
}

func (s *fakeStore) CompleteAuction(_ context.Context, auctionID uint64) (repository.EndResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.completeErr[auctionID]; ok {
		return repository.EndResult{}, err
	}
	a, ok := s.auctions[auctionID]
	if !ok {
		return repository.EndResult{}, repository.ErrAuctionNotFound
	}
	if !a.Status.CanTransitionTo(model.StatusEnded) {
		return repository.EndResult{}, repository.ErrTransitionNoop
	}
	win := model.WinningBid(s.bids[auctionID])
	a.Status = model.StatusEnded
	if win != nil {
		id := win.BidderID
		a.WinnerID = &id
	}
	s.auctions[auctionID] = a
	return repository.EndResult{Auction: a, Winner: win}, nil
}

func (s *fakeStore) CancelAuction(_ context.Context, auctionID uint64) (model.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[auctionID]
	if !ok {
		return model.Auction{}, repository.ErrAuctionNotFound
	}
	if !a.Status.CanTransitionTo(model.StatusCancelled) {
		return a, repository.ErrTransitionNoop
	}
	a.Status = model.StatusCancelled
	s.auctions[auctionID] = a
	return a, nil
}

func (s *fakeStore) ActivateDueAuctions(_ context.Context, now time.Time) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var flipped []uint64
	for id, a := range s.auctions {
		if a.Status == model.StatusScheduled && !a.StartTime.After(now) {
			a.Status = model.StatusActive
			s.auctions[id] = a
			flipped = append(flipped, id)
		}
	}
	return flipped, nil
}

func (s *fakeStore) DueToEnd(_ context.Context, now time.Time) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []uint64
	for id, a := range s.auctions {
		if a.Status == model.StatusActive && !a.EndTime.After(now) {
			due = append(due, id)
		}
	}
	return append(due, s.extraDueToEnd...), nil
}

func (s *fakeStore) DueForReminder(_ context.Context, now time.Time, window time.Duration) ([]model.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.Auction
	for id, a := range s.auctions {
		if a.Status == model.StatusActive && a.EndTime.After(now) && !a.EndTime.After(now.Add(window)) && !s.reminders[id] {
			due = append(due, a)
		}
	}
	return due, nil
}

func (s *fakeStore) MarkReminderSent(_ context.Context, auctionID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reminders[auctionID] {
		return false, nil
	}
	s.reminders[auctionID] = true
	return true, nil
}

func (s *fakeStore) PriorBidders(_ context.Context, auctionID, exclude uint64) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uint64]bool)
	var out []uint64
	for _, b := range s.bids[auctionID] {
		if b.BidderID == exclude || seen[b.BidderID] {
			continue
		}
		seen[b.BidderID] = true
		out = append(out, b.BidderID)
	}
	return out, nil
}

func (s *fakeStore) Participants(_ context.Context, auctionID uint64) ([]uint64, error) {
	return s.PriorBidders(context.Background(), auctionID, 0)
}

// fakeCatalog resolves products from a static map.
type fakeCatalog struct {
	products map[uint64]model.Product
}

func (c *fakeCatalog) GetProduct(_ context.Context, id uint64) (model.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return model.Product{}, repository.ErrProductNotFound
	}
	return p, nil
}

// dispatchCall records one dispatcher invocation.
type dispatchCall struct {
	kind      string
	auctionID uint64
	userIDs   []uint64
	amount    decimal.Decimal
	winnerID  *uint64
}

// fakeDispatcher records calls; notifications run on background
// goroutines so reads go through calls() / callCount().
type fakeDispatcher struct {
	mu  sync.Mutex
	log []dispatchCall
	err error
}

func (d *fakeDispatcher) record(c dispatchCall) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, c)
	return d.err
}

func (d *fakeDispatcher) calls(kind string) []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dispatchCall
	for _, c := range d.log {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (d *fakeDispatcher) callCount(kind string) int {
	return len(d.calls(kind))
}

func (d *fakeDispatcher) NotifyOutbid(_ context.Context, previousBidderID, auctionID uint64, newAmount decimal.Decimal) error {
	return d.record(dispatchCall{kind: "outbid", auctionID: auctionID, userIDs: []uint64{previousBidderID}, amount: newAmount})
}

func (d *fakeDispatcher) NotifySellerNewBid(_ context.Context, sellerID, auctionID uint64, amount decimal.Decimal, bidderID uint64) error {
	return d.record(dispatchCall{kind: "seller_new_bid", auctionID: auctionID, userIDs: []uint64{sellerID, bidderID}, amount: amount})
}

func (d *fakeDispatcher) NotifyAuctionEnded(_ context.Context, auctionID uint64, winnerID *uint64, winningAmount *decimal.Decimal, sellerID uint64) error {
	c := dispatchCall{kind: "auction_ended", auctionID: auctionID, userIDs: []uint64{sellerID}, winnerID: winnerID}
	if winningAmount != nil {
		c.amount = *winningAmount
	}
	return d.record(c)
}

func (d *fakeDispatcher) NotifyEndingSoon(_ context.Context, participantIDs []uint64, auctionID uint64, secondsRemaining int64) error {
	return d.record(dispatchCall{kind: "ending_soon", auctionID: auctionID, userIDs: participantIDs})
}

// fakePublisher collects published events in order.
type fakePublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *fakePublisher) Publish(ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) byType(eventType string) []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.Event
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// testEngine wires an Engine to fresh fakes with the clock pinned to
// now.
func testEngine(now time.Time) (*Engine, *fakeStore, *fakeCatalog, *fakeDispatcher, *fakePublisher) {
	store := newFakeStore()
	catalog := &fakeCatalog{products: make(map[uint64]model.Product)}
	dispatch := &fakeDispatcher{}
	events := &fakePublisher{}
	e := New(store, store, catalog, dispatch, events)
	e.now = func() time.Time { return now }
	return e, store, catalog, dispatch, events
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }
