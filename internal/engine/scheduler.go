package engine

import (
	"context"
	"errors"
	"time"

	"github.com/openbid/auction-engine/internal/model"
	"github.com/openbid/auction-engine/internal/repository"
	"github.com/openbid/auction-engine/internal/utils"
)

// Scheduler is the recurring driver for time-based transitions: it
// activates scheduled auctions whose start time has passed, ends active
// auctions whose end time has passed, and sends the one-time ending-soon
// reminder. It keeps no memory of what it has processed; every
// transition is a conditional write in the store, so overlapping ticks,
// duplicate instances, and restarts after a gap are all safe — the tick
// that loses a race simply observes a no-op.
type Scheduler struct {
	engine *Engine

	tick           time.Duration
	reminderTick   time.Duration
	reminderWindow time.Duration

	now func() time.Time
}

// NewScheduler builds a scheduler around an engine. tick drives
// activation and end detection, reminderTick the coarser reminder sweep,
// and reminderWindow is how far ahead of the deadline the one-time
// reminder fires.
func NewScheduler(e *Engine, tick, reminderTick, reminderWindow time.Duration) *Scheduler {
	return &Scheduler{
		engine:         e,
		tick:           tick,
		reminderTick:   reminderTick,
		reminderWindow: reminderWindow,
		now:            e.now,
	}
}

// Run blocks until the context is cancelled, firing the transition sweep
// every tick and the reminder sweep every reminderTick. An initial sweep
// runs immediately so a restarted process catches up without waiting a
// full period.
func (s *Scheduler) Run(ctx context.Context) {
	transitions := time.NewTicker(s.tick)
	defer transitions.Stop()
	reminders := time.NewTicker(s.reminderTick)
	defer reminders.Stop()

	s.sweepTransitions(ctx)
	s.sweepReminders(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-transitions.C:
			s.sweepTransitions(ctx)
		case <-reminders.C:
			s.sweepReminders(ctx)
		}
	}
}

// sweepTransitions applies all due time-driven transitions. Failures are
// isolated per auction: one broken row never blocks the rest of the
// sweep.
func (s *Scheduler) sweepTransitions(ctx context.Context) {
	now := s.now()

	activated, err := s.engine.store.ActivateDueAuctions(ctx, now)
	if err != nil {
		utils.Error("scheduler: activate sweep failed", map[string]any{"error": err.Error()})
	}
	for _, id := range activated {
		utils.Info("scheduler: auction activated", map[string]any{"auction_id": id})
	}

	due, err := s.engine.store.DueToEnd(ctx, now)
	if err != nil {
		utils.Error("scheduler: end sweep query failed", map[string]any{"error": err.Error()})
		return
	}
	for _, id := range due {
		res, err := s.engine.EndAuction(ctx, id)
		switch {
		case errors.Is(err, repository.ErrTransitionNoop):
			// Another tick or process got there first.
			utils.Info("scheduler: auction already ended", map[string]any{"auction_id": id})
		case err != nil:
			utils.Error("scheduler: end auction failed", map[string]any{"auction_id": id, "error": err.Error()})
		default:
			fields := map[string]any{"auction_id": id}
			if res.Winner != nil {
				fields["winner_id"] = res.Winner.BidderID
				fields["winning_amount"] = res.Winner.Amount.StringFixed(2)
			}
			utils.Info("scheduler: auction ended", fields)
		}
	}
}

// sweepReminders sends the one-time reminder for auctions entering the
// reminder window. The durable marker written by MarkReminderSent is
// first-writer-wins, so re-sweeping the same window never re-notifies.
func (s *Scheduler) sweepReminders(ctx context.Context) {
	if s.reminderWindow <= 0 {
		return
	}
	now := s.now()
	auctions, err := s.engine.store.DueForReminder(ctx, now, s.reminderWindow)
	if err != nil {
		utils.Error("scheduler: reminder sweep query failed", map[string]any{"error": err.Error()})
		return
	}
	for _, a := range auctions {
		s.remind(ctx, a, now)
	}
}

func (s *Scheduler) remind(ctx context.Context, a model.Auction, now time.Time) {
	sent, err := s.engine.store.MarkReminderSent(ctx, a.ID)
	if err != nil {
		utils.Error("scheduler: reminder marker failed", map[string]any{"auction_id": a.ID, "error": err.Error()})
		return
	}
	if !sent {
		return
	}
	participants, err := s.engine.bids.Participants(ctx, a.ID)
	if err != nil {
		utils.Error("scheduler: reminder participants failed", map[string]any{"auction_id": a.ID, "error": err.Error()})
		return
	}
	if len(participants) == 0 {
		return
	}
	secondsRemaining := int64(a.EndTime.Sub(now).Seconds())
	if err := s.engine.dispatch.NotifyEndingSoon(ctx, participants, a.ID, secondsRemaining); err != nil {
		logDispatchFailure("ending soon", a.ID, err)
	}
}
