// Package recovery reconciles persisted bidding sessions against the
// in-memory timers that were lost with the previous process. It runs once
// per process lifetime, shortly after startup.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kingsalliance/bidbot/internal/bidding"
	"github.com/kingsalliance/bidbot/internal/clock"
	"github.com/kingsalliance/bidbot/internal/event"
	"github.com/kingsalliance/bidbot/internal/store"
)

// Finalizer is the engine surface the sweeper drives: closing expired
// sessions and re-arming timers for live ones.
type Finalizer interface {
	EndSession(ctx context.Context, sessionID string, trigger bidding.Trigger) (*bidding.Outcome, error)
	Arm(session *store.Session)
}

// Status describes the last (only) sweep for the admin status command.
type Status struct {
	Ran       bool
	SweptAt   time.Time
	Finalized int
	Rearmed   int
	Discarded int
}

// Sweeper performs the one-shot recovery sweep.
type Sweeper struct {
	repos       *store.Repositories
	engine      Finalizer
	logger      *slog.Logger
	clock       clock.Clock
	settleDelay time.Duration

	ran atomic.Bool

	mu     sync.Mutex
	status Status
}

// NewSweeper creates a recovery Sweeper. settleDelay is waited before the
// scan so the rest of the process finishes initializing first.
func NewSweeper(repos *store.Repositories, engine Finalizer, logger *slog.Logger, clk clock.Clock, settleDelay time.Duration) *Sweeper {
	return &Sweeper{
		repos:       repos,
		engine:      engine,
		logger:      logger,
		clock:       clk,
		settleDelay: settleDelay,
	}
}

// Run executes the sweep. Repeat calls are no-ops: startup can signal
// readiness more than once, but the scan must only happen once per process.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.ran.CompareAndSwap(false, true) {
		s.logger.DebugContext(ctx, "recovery sweep already performed, skipping")
		return nil
	}

	if s.settleDelay > 0 {
		select {
		case <-time.After(s.settleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	sessions, err := s.repos.Sessions.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	st := Status{Ran: true, SweptAt: s.clock.Now().UTC()}
	for i := range sessions {
		session := sessions[i]
		if session.BidEndTime.After(s.clock.Now()) {
			s.rearm(ctx, &session)
			st.Rearmed++
			continue
		}

		// Deadline passed while no process was alive to fire the timer.
		if _, err := s.engine.EndSession(ctx, session.ID, bidding.TriggerTimer); err != nil {
			s.failOpen(ctx, &session, err)
			st.Discarded++
			continue
		}
		st.Finalized++
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "recovery sweep complete",
		slog.Int("finalized", st.Finalized),
		slog.Int("rearmed", st.Rearmed),
		slog.Int("discarded", st.Discarded),
	)
	return nil
}

// Status returns what the sweep did, or a zero Status if it has not run.
func (s *Sweeper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// rearm restores the close timer at the session's original deadline. The
// clock is not restarted; the recruit waited out the downtime too.
func (s *Sweeper) rearm(ctx context.Context, session *store.Session) {
	s.engine.Arm(session)
	s.appendEvent(ctx, session.ID, event.SessionRecovered, event.SessionStartedData{
		RecruitID:  session.RecruitID,
		PlayerTag:  session.PlayerTag,
		StartedBy:  session.StartedBy,
		BidEndTime: session.BidEndTime,
	})
	s.logger.InfoContext(ctx, "session timer re-armed",
		slog.String("session_id", session.ID),
		slog.Time("bid_end_time", session.BidEndTime),
	)
}

// failOpen gives up on a session that cannot be finalized. Every hold backing
// the round's bids is refunded, then the recruit is unlocked and the session
// discarded so one broken round can never leave a recruit stuck in "bidding
// in progress" forever.
func (s *Sweeper) failOpen(ctx context.Context, session *store.Session, cause error) {
	s.logger.ErrorContext(ctx, "finalization failed during recovery, discarding session",
		slog.String("session_id", session.ID),
		slog.String("recruit_id", session.RecruitID),
		slog.Any("error", cause),
	)

	s.refundBids(ctx, session)

	if err := s.repos.Recruits.ReleaseActiveBid(ctx, session.RecruitID); err != nil {
		s.logger.ErrorContext(ctx, "failed to release active bid flag",
			slog.String("recruit_id", session.RecruitID), slog.Any("error", err))
	}
	if err := s.repos.Recruits.CloseTicket(ctx, session.RecruitID); err != nil {
		s.logger.ErrorContext(ctx, "failed to close recruit ticket",
			slog.String("recruit_id", session.RecruitID), slog.Any("error", err))
	}
	if err := s.repos.Sessions.Delete(ctx, session.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete unrecoverable session",
			slog.String("session_id", session.ID), slog.Any("error", err))
	}

	s.appendEvent(ctx, session.ID, event.SessionDiscarded, event.SessionDiscardedData{
		RecruitID: session.RecruitID,
		PlayerTag: session.PlayerTag,
		Reason:    cause.Error(),
	})
}

// refundBids releases the holds behind an unfinalized record and seals it as
// discarded. Once the session row is gone there is no path left through which
// a clan could withdraw its bid, so the points have to come back here.
func (s *Sweeper) refundBids(ctx context.Context, session *store.Session) {
	rec, err := s.repos.Auctions.GetByPlayerTag(ctx, session.PlayerTag)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load auction record for refund",
			slog.String("player_tag", session.PlayerTag), slog.Any("error", err))
		return
	}
	if rec.IsFinalized {
		// A settled round already had its holds resolved.
		return
	}

	for _, bid := range rec.Bids {
		if err := s.repos.Clans.ReleaseHold(ctx, bid.ClanTag, bid.Amount); err != nil {
			s.logger.ErrorContext(ctx, "failed to refund hold",
				slog.String("clan_tag", bid.ClanTag),
				slog.String("amount", bid.Amount.String()),
				slog.Any("error", err))
		}
	}
	if err := s.repos.Auctions.Finalize(ctx, session.PlayerTag, bidding.DiscardedWinner, decimal.Zero); err != nil {
		s.logger.ErrorContext(ctx, "failed to seal discarded auction record",
			slog.String("player_tag", session.PlayerTag), slog.Any("error", err))
	}
}

func (s *Sweeper) appendEvent(ctx context.Context, aggregateID string, typ event.Type, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to marshal event payload",
			slog.String("type", string(typ)), slog.Any("error", err))
		return
	}
	if err := s.repos.Events.Append(ctx, event.Event{AggregateID: aggregateID, Type: typ, Data: data}); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist event",
			slog.String("type", string(typ)), slog.Any("error", err))
	}
}
