package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbid/auction-engine/internal/model"
)

func testScheduler(e *Engine) *Scheduler {
	return NewScheduler(e, time.Second, time.Second, time.Hour)
}

func TestSweepTransitions_ActivatesDueScheduled(t *testing.T) {
	e, store, _, _, _ := testEngine(testNow)
	due := store.putAuction(model.Auction{
		ProductID: 100, SellerID: 1,
		StartingPrice: money("10.00"), CurrentPrice: money("10.00"),
		StartTime: testNow.Add(-time.Minute), EndTime: testNow.Add(time.Hour),
		Status: model.StatusScheduled,
	})
	notYet := store.putAuction(model.Auction{
		ProductID: 101, SellerID: 1,
		StartingPrice: money("10.00"), CurrentPrice: money("10.00"),
		StartTime: testNow.Add(time.Minute), EndTime: testNow.Add(time.Hour),
		Status: model.StatusScheduled,
	})

	testScheduler(e).sweepTransitions(context.Background())

	require.Equal(t, model.StatusActive, store.auction(due.ID).Status)
	require.Equal(t, model.StatusScheduled, store.auction(notYet.ID).Status)
}

func TestSweepTransitions_EndsDueActive(t *testing.T) {
	e, store, _, _, _ := testEngine(testNow)
	a := activeAuction(store)
	_, err := e.PlaceBid(context.Background(), a.ID, 2, money("11.00"))
	require.NoError(t, err)

	expired := store.auction(a.ID)
	expired.EndTime = testNow.Add(-time.Second)
	store.putAuction(expired)

	testScheduler(e).sweepTransitions(context.Background())

	ended := store.auction(a.ID)
	require.Equal(t, model.StatusEnded, ended.Status)
	require.NotNil(t, ended.WinnerID)
	require.Equal(t, uint64(2), *ended.WinnerID)
}

func TestSweepTransitions_ToleratesAlreadyEnded(t *testing.T) {
	e, store, _, _, _ := testEngine(testNow)
	a := activeAuction(store)
	a.Status = model.StatusEnded
	store.putAuction(a)

	// The sweep query raced another process: the id comes back due but
	// the flip already happened. The sweep must shrug, not error out.
	store.extraDueToEnd = []uint64{a.ID}
	require.NotPanics(t, func() {
		testScheduler(e).sweepTransitions(context.Background())
	})
	require.Equal(t, model.StatusEnded, store.auction(a.ID).Status)
}

func TestSweepTransitions_IsolatesFailures(t *testing.T) {
	e, store, _, _, _ := testEngine(testNow)
	broken := activeAuction(store)
	broken.EndTime = testNow.Add(-time.Second)
	store.putAuction(broken)
	healthy := store.putAuction(model.Auction{
		ProductID: 101, SellerID: 1,
		StartingPrice: money("10.00"), CurrentPrice: money("10.00"),
		StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(-time.Second),
		Status: model.StatusActive,
	})
	store.completeErr = map[uint64]error{broken.ID: errors.New("deadlock")}

	testScheduler(e).sweepTransitions(context.Background())

	// The broken row stays active; the healthy one still ends.
	require.Equal(t, model.StatusActive, store.auction(broken.ID).Status)
	require.Equal(t, model.StatusEnded, store.auction(healthy.ID).Status)
}

func TestSweepReminders_NotifiesParticipantsOnce(t *testing.T) {
	e, store, _, dispatch, _ := testEngine(testNow)
	a := activeAuction(store)
	ctx := context.Background()
	_, err := e.PlaceBid(ctx, a.ID, 2, money("11.00"))
	require.NoError(t, err)
	_, err = e.PlaceBid(ctx, a.ID, 3, money("12.00"))
	require.NoError(t, err)

	closing := store.auction(a.ID)
	closing.EndTime = testNow.Add(30 * time.Minute)
	store.putAuction(closing)

	s := testScheduler(e)
	s.sweepReminders(ctx)
	s.sweepReminders(ctx)

	calls := dispatch.calls("ending_soon")
	require.Len(t, calls, 1)
	require.Equal(t, a.ID, calls[0].auctionID)
	require.ElementsMatch(t, []uint64{2, 3}, calls[0].userIDs)
}

func TestSweepReminders_SkipsAuctionsWithoutBids(t *testing.T) {
	e, store, _, dispatch, _ := testEngine(testNow)
	a := activeAuction(store)
	a.EndTime = testNow.Add(30 * time.Minute)
	store.putAuction(a)

	testScheduler(e).sweepReminders(context.Background())

	require.Zero(t, dispatch.callCount("ending_soon"))
	// The marker is still burned so a later bid does not resurrect the
	// reminder.
	require.True(t, store.reminders[a.ID])
}

func TestSweepReminders_IgnoresAuctionsOutsideWindow(t *testing.T) {
	e, store, _, dispatch, _ := testEngine(testNow)
	a := activeAuction(store)
	far := store.auction(a.ID)
	far.EndTime = testNow.Add(48 * time.Hour)
	store.putAuction(far)
	_, err := e.PlaceBid(context.Background(), a.ID, 2, money("11.00"))
	require.NoError(t, err)

	testScheduler(e).sweepReminders(context.Background())
	require.Zero(t, dispatch.callCount("ending_soon"))
}

func TestSweepReminders_DisabledWindow(t *testing.T) {
	e, store, _, dispatch, _ := testEngine(testNow)
	a := activeAuction(store)
	a.EndTime = testNow.Add(time.Minute)
	store.putAuction(a)

	s := NewScheduler(e, time.Second, time.Second, 0)
	s.sweepReminders(context.Background())
	require.Zero(t, dispatch.callCount("ending_soon"))
}

func TestScheduler_RunStopsOnContextCancel(t *testing.T) {
	e, _, _, _, _ := testEngine(testNow)
	s := NewScheduler(e, 10*time.Millisecond, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
