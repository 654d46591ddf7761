package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbid/auction-engine/internal/model"
	"github.com/openbid/auction-engine/internal/realtime"
	"github.com/openbid/auction-engine/internal/repository"
)

func TestOpenAuction_Validation(t *testing.T) {
	tests := []struct {
		name     string
		seller   uint64
		product  uint64
		starting string
		start    time.Time
		end      time.Time
		wantErr  error
	}{
		{"zero_starting_price", 1, 100, "0.00", testNow, testNow.Add(time.Hour), repository.ErrInvalidAuction},
		{"negative_starting_price", 1, 100, "-5.00", testNow, testNow.Add(time.Hour), repository.ErrInvalidAuction},
		{"end_before_start", 1, 100, "10.00", testNow.Add(time.Hour), testNow, repository.ErrInvalidAuction},
		{"end_equals_start", 1, 100, "10.00", testNow, testNow, repository.ErrInvalidAuction},
		{"unknown_product", 1, 999, "10.00", testNow, testNow.Add(time.Hour), repository.ErrProductNotFound},
		{"not_product_owner", 2, 100, "10.00", testNow, testNow.Add(time.Hour), repository.ErrNotOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, catalog, _, _ := testEngine(testNow)
			catalog.products[100] = model.Product{ID: 100, SellerID: 1}
			_, err := e.OpenAuction(context.Background(), tt.seller, tt.product, money(tt.starting), nil, tt.start, tt.end)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpenAuction_StatusFollowsStartTime(t *testing.T) {
	e, _, catalog, _, _ := testEngine(testNow)
	catalog.products[100] = model.Product{ID: 100, SellerID: 1}
	catalog.products[101] = model.Product{ID: 101, SellerID: 1}

	future, err := e.OpenAuction(context.Background(), 1, 100, money("10.00"), nil, testNow.Add(time.Hour), testNow.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, model.StatusScheduled, future.Status)
	require.True(t, future.CurrentPrice.Equal(money("10.00")))

	started, err := e.OpenAuction(context.Background(), 1, 101, money("10.00"), nil, testNow.Add(-time.Minute), testNow.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, started.Status)
}

func TestOpenAuction_OneAuctionPerProduct(t *testing.T) {
	e, _, catalog, _, _ := testEngine(testNow)
	catalog.products[100] = model.Product{ID: 100, SellerID: 1}

	_, err := e.OpenAuction(context.Background(), 1, 100, money("10.00"), nil, testNow, testNow.Add(time.Hour))
	require.NoError(t, err)
	_, err = e.OpenAuction(context.Background(), 1, 100, money("10.00"), nil, testNow, testNow.Add(time.Hour))
	require.ErrorIs(t, err, repository.ErrProductAlreadyListed)
}

func TestEndAuction_SelectsWinnerFromFullLog(t *testing.T) {
	e, store, _, dispatch, events := testEngine(testNow)
	a := activeAuction(store)
	ctx := context.Background()

	_, err := e.PlaceBid(ctx, a.ID, 2, money("12.00"))
	require.NoError(t, err)
	_, err = e.PlaceBid(ctx, a.ID, 3, money("15.00"))
	require.NoError(t, err)

	res, err := e.EndAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, res.Auction.Status)
	require.NotNil(t, res.Winner)
	require.Equal(t, uint64(3), res.Winner.BidderID)
	require.True(t, res.Winner.Amount.Equal(money("15.00")))

	ended := store.auction(a.ID)
	require.Equal(t, model.StatusEnded, ended.Status)
	require.NotNil(t, ended.WinnerID)
	require.Equal(t, uint64(3), *ended.WinnerID)

	got := events.byType(realtime.EventAuctionEnded)
	require.Len(t, got, 1)
	var payload realtime.AuctionEndedPayload
	require.NoError(t, json.Unmarshal(got[0].Data, &payload))
	require.NotNil(t, payload.WinnerID)
	require.Equal(t, uint64(3), *payload.WinnerID)
	require.NotNil(t, payload.WinningAmount)
	require.Equal(t, "15.00", *payload.WinningAmount)

	require.Eventually(t, func() bool {
		return dispatch.callCount("auction_ended") == 1
	}, time.Second, 10*time.Millisecond)
	call := dispatch.calls("auction_ended")[0]
	require.NotNil(t, call.winnerID)
	require.Equal(t, uint64(3), *call.winnerID)
}

func TestEndAuction_NoBidsEndsWithoutWinner(t *testing.T) {
	e, store, _, dispatch, events := testEngine(testNow)
	a := activeAuction(store)

	res, err := e.EndAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Nil(t, res.Winner)
	require.Nil(t, store.auction(a.ID).WinnerID)

	got := events.byType(realtime.EventAuctionEnded)
	require.Len(t, got, 1)
	var payload realtime.AuctionEndedPayload
	require.NoError(t, json.Unmarshal(got[0].Data, &payload))
	require.Nil(t, payload.WinnerID)
	require.Nil(t, payload.WinningAmount)

	require.Eventually(t, func() bool {
		return dispatch.callCount("auction_ended") == 1
	}, time.Second, 10*time.Millisecond)
	require.Nil(t, dispatch.calls("auction_ended")[0].winnerID)
}

func TestEndAuction_SecondEndIsNoop(t *testing.T) {
	e, store, _, dispatch, events := testEngine(testNow)
	a := activeAuction(store)
	ctx := context.Background()

	_, err := e.EndAuction(ctx, a.ID)
	require.NoError(t, err)
	_, err = e.EndAuction(ctx, a.ID)
	require.ErrorIs(t, err, repository.ErrTransitionNoop)

	// Exactly one terminal event and one dispatcher call despite two
	// end attempts.
	require.Len(t, events.byType(realtime.EventAuctionEnded), 1)
	require.Eventually(t, func() bool {
		return dispatch.callCount("auction_ended") == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, dispatch.callCount("auction_ended"))
}

func TestCancelAuction(t *testing.T) {
	tests := []struct {
		name      string
		status    model.Status
		requester uint64
		wantErr   error
	}{
		{"scheduled_by_seller", model.StatusScheduled, 1, nil},
		{"active_by_seller", model.StatusActive, 1, nil},
		{"not_the_seller", model.StatusActive, 2, repository.ErrNotOwner},
		{"already_ended", model.StatusEnded, 1, repository.ErrTransitionNoop},
		{"already_cancelled", model.StatusCancelled, 1, repository.ErrTransitionNoop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store, _, _, events := testEngine(testNow)
			a := activeAuction(store)
			a.Status = tt.status
			store.putAuction(a)

			got, err := e.CancelAuction(context.Background(), a.ID, tt.requester)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Empty(t, events.byType(realtime.EventAuctionCancelled))
				return
			}
			require.NoError(t, err)
			require.Equal(t, model.StatusCancelled, got.Status)
			require.Equal(t, model.StatusCancelled, store.auction(a.ID).Status)
			require.Len(t, events.byType(realtime.EventAuctionCancelled), 1)
		})
	}
}

func TestCancelAuction_RejectsBidsAfterwards(t *testing.T) {
	e, store, _, _, _ := testEngine(testNow)
	a := activeAuction(store)
	ctx := context.Background()

	_, err := e.CancelAuction(ctx, a.ID, 1)
	require.NoError(t, err)
	_, err = e.PlaceBid(ctx, a.ID, 2, money("50.00"))
	require.ErrorIs(t, err, repository.ErrAuctionNotActive)
}
