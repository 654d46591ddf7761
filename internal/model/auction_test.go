package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"scheduled_to_active", StatusScheduled, StatusActive, true},
		{"scheduled_to_cancelled", StatusScheduled, StatusCancelled, true},
		{"scheduled_to_ended", StatusScheduled, StatusEnded, false},
		{"active_to_ended", StatusActive, StatusEnded, true},
		{"active_to_cancelled", StatusActive, StatusCancelled, true},
		{"active_to_scheduled", StatusActive, StatusScheduled, false},
		{"ended_is_terminal", StatusEnded, StatusCancelled, false},
		{"ended_stays_ended", StatusEnded, StatusEnded, false},
		{"cancelled_is_terminal", StatusCancelled, StatusActive, false},
		{"cancelled_stays_cancelled", StatusCancelled, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	require.False(t, StatusScheduled.IsTerminal())
	require.False(t, StatusActive.IsTerminal())
	require.True(t, StatusEnded.IsTerminal())
	require.True(t, StatusCancelled.IsTerminal())
}

func TestAuction_Active(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(time.Hour)

	tests := []struct {
		name   string
		status Status
		end    time.Time
		want   bool
	}{
		{"active_before_deadline", StatusActive, end, true},
		{"active_at_deadline", StatusActive, now, false},
		{"active_past_deadline", StatusActive, now.Add(-time.Minute), false},
		{"scheduled", StatusScheduled, end, false},
		{"ended", StatusEnded, end, false},
		{"cancelled", StatusCancelled, end, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Auction{Status: tt.status, EndTime: tt.end}
			require.Equal(t, tt.want, a.Active(now))
		})
	}
}

func TestWinningBid(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bid := func(id uint64, amount string, at time.Time) Bid {
		return Bid{ID: id, Amount: decimal.RequireFromString(amount), CreatedAt: at}
	}

	tests := []struct {
		name   string
		bids   []Bid
		wantID uint64
	}{
		{
			name:   "highest_amount_wins",
			bids:   []Bid{bid(1, "10.00", base), bid(2, "30.00", base.Add(time.Second)), bid(3, "20.00", base.Add(2 * time.Second))},
			wantID: 2,
		},
		{
			name:   "tie_broken_by_earlier_time",
			bids:   []Bid{bid(1, "50.00", base.Add(time.Second)), bid(2, "50.00", base)},
			wantID: 2,
		},
		{
			name:   "tie_broken_by_lower_id",
			bids:   []Bid{bid(7, "50.00", base), bid(3, "50.00", base)},
			wantID: 3,
		},
		{
			name:   "single_bid",
			bids:   []Bid{bid(9, "1.00", base)},
			wantID: 9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			win := WinningBid(tt.bids)
			require.NotNil(t, win)
			require.Equal(t, tt.wantID, win.ID)
		})
	}

	t.Run("empty_log", func(t *testing.T) {
		require.Nil(t, WinningBid(nil))
		require.Nil(t, WinningBid([]Bid{}))
	})
}
