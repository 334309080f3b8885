// Package bidding implements the recruit auction engine: timed sessions,
// point holds against clan balances, and the close-out settlement.
package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kingsalliance/bidbot/internal/clock"
	"github.com/kingsalliance/bidbot/internal/event"
	"github.com/kingsalliance/bidbot/internal/scheduler"
	"github.com/kingsalliance/bidbot/internal/store"
)

// ConfirmToken is the literal a user must supply before a bid removal
// executes.
const ConfirmToken = "CONFIRM"

// Trigger identifies what invoked a session close.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

// Display posts and maintains the auction messages. Failures here are
// logged, never allowed to block or reverse a settlement.
type Display interface {
	Post(ctx context.Context, threadID, content string) (messageID string, err error)
	Edit(ctx context.Context, threadID, messageID, content string) error
	Delete(ctx context.Context, threadID, messageID string) error
}

// RoleResolver reports which clans a user holds a leader role for.
type RoleResolver interface {
	ClanTags(ctx context.Context, userID string) ([]string, error)
}

// Engine coordinates the session lifecycle against the durable stores.
type Engine struct {
	repos   *store.Repositories
	sched   scheduler.Scheduler
	display Display
	roles   RoleResolver
	logger  *slog.Logger
	tracer  trace.Tracer
	clock   clock.Clock

	duration       time.Duration
	escalationRole string

	// randInt draws the tie-break winner; injectable for tests.
	randInt func(n int) int
}

// NewEngine creates a bidding Engine.
func NewEngine(repos *store.Repositories, sched scheduler.Scheduler, display Display, roles RoleResolver,
	logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock, duration time.Duration, escalationRole string) *Engine {
	return &Engine{
		repos:          repos,
		sched:          sched,
		display:        display,
		roles:          roles,
		logger:         logger,
		tracer:         tp.Tracer("github.com/kingsalliance/bidbot/internal/bidding"),
		clock:          clk,
		duration:       duration,
		escalationRole: escalationRole,
		randInt:        rand.IntN,
	}
}

// StartSession opens a timed bidding round for a recruit. The recruit's
// activeBid flag is claimed atomically so two recruiters cannot open
// concurrent rounds; everything after the claim rolls the flag back on
// failure.
func (e *Engine) StartSession(ctx context.Context, recruitID, startedBy, channelID, threadID string) (*store.Session, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.StartSession",
		trace.WithAttributes(
			attribute.String("recruit_id", recruitID),
			attribute.String("started_by", startedBy),
		),
	)
	defer span.End()

	recruit, err := e.repos.Recruits.GetByID(ctx, recruitID)
	if err != nil {
		return nil, fmt.Errorf("looking up recruit: %w", err)
	}

	claimed, err := e.repos.Recruits.ClaimActiveBid(ctx, recruitID)
	if err != nil {
		return nil, fmt.Errorf("claiming active bid: %w", err)
	}
	if !claimed {
		return nil, ErrSessionActive
	}

	rollback := func() {
		if err := e.repos.Recruits.ReleaseActiveBid(ctx, recruitID); err != nil {
			e.logger.ErrorContext(ctx, "failed to roll back active bid flag",
				slog.String("recruit_id", recruitID), slog.Any("error", err))
		}
	}

	// Leftovers from an earlier round for this tag would collide with the
	// new one: a settled record rejects every append, and a stale
	// unfinalized record is debris from a round that never closed cleanly.
	if err := e.repos.Auctions.DeleteFinalized(ctx, recruit.PlayerTag); err != nil {
		rollback()
		return nil, fmt.Errorf("clearing settled auction record: %w", err)
	}
	if err := e.repos.Auctions.DeleteOrphaned(ctx, recruit.PlayerTag); err != nil {
		rollback()
		return nil, fmt.Errorf("cleaning up orphaned auction record: %w", err)
	}

	now := e.clock.Now().UTC()
	session := &store.Session{
		ID:            uuid.NewString(),
		RecruitID:     recruit.ID,
		PlayerTag:     recruit.PlayerTag,
		PlayerName:    recruit.PlayerName,
		TownHallLevel: recruit.TownHallLevel,
		DiscordUserID: recruit.DiscordUserID,
		ChannelID:     channelID,
		ThreadID:      threadID,
		BidEndTime:    now.Add(e.duration),
		CreatedAt:     now,
		StartedBy:     startedBy,
	}
	if err := e.repos.Sessions.Create(ctx, session); err != nil {
		rollback()
		return nil, fmt.Errorf("creating session: %w", err)
	}

	messageID, err := e.display.Post(ctx, threadID, renderAnnouncement(session, nil))
	if err != nil {
		if derr := e.repos.Sessions.Delete(ctx, session.ID); derr != nil {
			e.logger.ErrorContext(ctx, "failed to delete session after post failure",
				slog.String("session_id", session.ID), slog.Any("error", derr))
		}
		rollback()
		return nil, fmt.Errorf("posting auction message: %w", err)
	}
	session.MessageID = messageID
	if err := e.repos.Sessions.SetMessageID(ctx, session.ID, messageID); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist message id",
			slog.String("session_id", session.ID), slog.Any("error", err))
	}

	e.Arm(session)
	e.appendEvent(ctx, session.ID, event.SessionStarted, event.SessionStartedData{
		RecruitID:  recruit.ID,
		PlayerTag:  recruit.PlayerTag,
		StartedBy:  startedBy,
		BidEndTime: session.BidEndTime,
	})

	e.logger.InfoContext(ctx, "bidding session started",
		slog.String("session_id", session.ID),
		slog.String("recruit_id", recruit.ID),
		slog.String("player_tag", recruit.PlayerTag),
		slog.Time("bid_end_time", session.BidEndTime),
	)
	return session, nil
}

// Arm schedules the close callback at the session's deadline. The recovery
// sweep uses it to rebuild timers lost to a restart, preserving the original
// deadline.
func (e *Engine) Arm(session *store.Session) {
	id := session.ID
	e.sched.Schedule(id, session.BidEndTime, func(ctx context.Context) {
		if _, err := e.EndSession(ctx, id, TriggerTimer); err != nil {
			e.logger.ErrorContext(ctx, "timer-fired session close failed",
				slog.String("session_id", id), slog.Any("error", err))
		}
	})
}

// PlaceBid validates and records a clan's offer, holding the amount against
// the clan's balance.
func (e *Engine) PlaceBid(ctx context.Context, sessionID, clanTag, userID string, amount decimal.Decimal) error {
	ctx, span := e.tracer.Start(ctx, "Engine.PlaceBid",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.String("clan_tag", clanTag),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	session, err := e.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !e.clock.Now().Before(session.BidEndTime) {
		return ErrSessionExpired
	}
	if !validIncrement(amount) {
		return ErrInvalidIncrement
	}
	if err := e.authorize(ctx, userID, clanTag); err != nil {
		return err
	}

	clan, err := e.repos.Clans.GetByTag(ctx, clanTag)
	if err != nil {
		return fmt.Errorf("looking up clan: %w", err)
	}
	if amount.GreaterThan(clan.Available()) {
		return ErrInsufficientPoints
	}

	bid := store.Bid{
		PlayerTag: session.PlayerTag,
		ClanTag:   clanTag,
		PlacedBy:  userID,
		Amount:    amount,
		PlacedAt:  e.clock.Now().UTC(),
	}
	if err := e.repos.Auctions.AppendBid(ctx, bid); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateBid):
			return ErrDuplicateBid
		case errors.Is(err, store.ErrAlreadyFinalized):
			return ErrSessionExpired
		}
		return fmt.Errorf("recording bid: %w", err)
	}
	if err := e.repos.Clans.HoldPoints(ctx, clanTag, amount); err != nil {
		// An appended bid without a hold would release points it never
		// reserved at settlement. Unwind the append.
		if _, rerr := e.repos.Auctions.RemoveBid(ctx, session.PlayerTag, clanTag, userID); rerr != nil {
			e.logger.ErrorContext(ctx, "failed to unwind bid after hold failure",
				slog.String("session_id", sessionID),
				slog.String("clan_tag", clanTag),
				slog.Any("error", rerr))
		}
		return fmt.Errorf("holding points: %w", err)
	}

	e.appendEvent(ctx, sessionID, event.BidPlaced, event.BidChangeData{
		SessionID: sessionID,
		ClanTag:   clanTag,
		PlacedBy:  userID,
		Amount:    amount,
	})
	e.refreshDisplay(ctx, session)

	e.logger.InfoContext(ctx, "bid placed",
		slog.String("session_id", sessionID),
		slog.String("clan_tag", clanTag),
		slog.String("amount", amount.String()),
	)
	return nil
}

// RemoveBid withdraws a clan's open bid and releases its hold. The caller
// must supply the exact confirmation token.
func (e *Engine) RemoveBid(ctx context.Context, sessionID, clanTag, userID, confirmation string) error {
	ctx, span := e.tracer.Start(ctx, "Engine.RemoveBid",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.String("clan_tag", clanTag),
		),
	)
	defer span.End()

	if confirmation != ConfirmToken {
		return ErrNotConfirmed
	}

	session, err := e.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := e.authorize(ctx, userID, clanTag); err != nil {
		return err
	}

	bid, err := e.repos.Auctions.RemoveBid(ctx, session.PlayerTag, clanTag, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoBid
	}
	if err != nil {
		return fmt.Errorf("removing bid: %w", err)
	}
	if err := e.repos.Clans.ReleaseHold(ctx, clanTag, bid.Amount); err != nil {
		return fmt.Errorf("releasing hold: %w", err)
	}

	e.appendEvent(ctx, sessionID, event.BidRemoved, event.BidChangeData{
		SessionID: sessionID,
		ClanTag:   clanTag,
		PlacedBy:  userID,
		Amount:    bid.Amount,
	})
	e.refreshDisplay(ctx, session)

	e.logger.InfoContext(ctx, "bid removed",
		slog.String("session_id", sessionID),
		slog.String("clan_tag", clanTag),
		slog.String("amount", bid.Amount.String()),
	)
	return nil
}

// EndSession is the sole terminal transition. Exactly one invocation settles
// the round; a second call, whether from the timer racing a manual end or a
// repeated sweep, observes the finalized record or missing session and
// no-ops with a nil outcome.
func (e *Engine) EndSession(ctx context.Context, sessionID string, trigger Trigger) (*Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.EndSession",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.String("trigger", string(trigger)),
		),
	)
	defer span.End()

	if trigger == TriggerManual {
		// Best effort; the finalize gate below is the authoritative guard.
		e.sched.Cancel(sessionID)
	}

	session, err := e.repos.Sessions.GetByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.InfoContext(ctx, "session already closed", slog.String("session_id", sessionID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}

	record, err := e.repos.Auctions.GetByPlayerTag(ctx, session.PlayerTag)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up auction record: %w", err)
	}
	var bids []store.Bid
	if record != nil {
		bids = record.Bids
	}

	outcome := decideOutcome(bids, e.randInt)

	if err := e.repos.Auctions.Finalize(ctx, session.PlayerTag, outcome.Winner, outcome.Amount); err != nil {
		if errors.Is(err, store.ErrAlreadyFinalized) {
			// The losing close still owns the session cleanup when the
			// winning one died before finishing it.
			e.logger.InfoContext(ctx, "session already finalized",
				slog.String("session_id", sessionID), slog.String("trigger", string(trigger)))
			if err := e.repos.Recruits.ReleaseActiveBid(ctx, session.RecruitID); err != nil {
				e.logger.ErrorContext(ctx, "failed to release active bid flag",
					slog.String("recruit_id", session.RecruitID), slog.Any("error", err))
			}
			if err := e.repos.Sessions.Delete(ctx, sessionID); err != nil {
				e.logger.ErrorContext(ctx, "failed to delete session",
					slog.String("session_id", sessionID), slog.Any("error", err))
			}
			return nil, nil
		}
		return nil, fmt.Errorf("finalizing auction: %w", err)
	}

	// A bid that cleared the deadline check just before the record was
	// sealed may have landed after the snapshot above. It cannot win, but
	// its hold must still come back, so settlement reads the bids again.
	settleBids := outcome.Bids
	if rec, err := e.repos.Auctions.GetByPlayerTag(ctx, session.PlayerTag); err == nil {
		settleBids = rec.Bids
	} else {
		e.logger.WarnContext(ctx, "failed to re-read bids for settlement, using snapshot",
			slog.String("session_id", sessionID), slog.Any("error", err))
	}
	e.settle(ctx, settleBids, outcome)

	if err := e.repos.Recruits.ReleaseActiveBid(ctx, session.RecruitID); err != nil {
		e.logger.ErrorContext(ctx, "failed to release active bid flag",
			slog.String("recruit_id", session.RecruitID), slog.Any("error", err))
	}
	if err := e.repos.Sessions.Delete(ctx, sessionID); err != nil {
		e.logger.ErrorContext(ctx, "failed to delete session",
			slog.String("session_id", sessionID), slog.Any("error", err))
	}

	if session.MessageID != "" {
		if err := e.display.Delete(ctx, session.ThreadID, session.MessageID); err != nil {
			e.logger.WarnContext(ctx, "failed to delete auction message",
				slog.String("session_id", sessionID), slog.Any("error", err))
		}
	}
	if _, err := e.display.Post(ctx, session.ThreadID, renderResult(session, outcome, e.escalationRole)); err != nil {
		e.logger.WarnContext(ctx, "failed to post result message",
			slog.String("session_id", sessionID), slog.Any("error", err))
	}

	e.appendEvent(ctx, sessionID, event.SessionFinalized, event.SessionFinalizedData{
		PlayerTag:     session.PlayerTag,
		Outcome:       string(outcome.Kind),
		Winner:        outcome.Winner,
		Amount:        outcome.Amount,
		TieBreak:      outcome.TieBreak,
		TieCandidates: outcome.TieCandidates,
		TriggeredBy:   string(trigger),
	})

	e.logger.InfoContext(ctx, "bidding session finalized",
		slog.String("session_id", sessionID),
		slog.String("outcome", string(outcome.Kind)),
		slog.String("winner", outcome.Winner),
		slog.String("amount", outcome.Amount.String()),
		slog.Bool("tie_break", outcome.TieBreak),
		slog.String("trigger", string(trigger)),
	)
	return &outcome, nil
}

// settle applies the monetary consequences of a decided outcome. Every hold
// is released in full; only a multi-bid winner also pays from settled
// points. Individual ledger failures are logged and do not stop the rest of
// the settlement.
func (e *Engine) settle(ctx context.Context, bids []store.Bid, outcome Outcome) {
	for _, bid := range bids {
		if err := e.repos.Clans.ReleaseHold(ctx, bid.ClanTag, bid.Amount); err != nil {
			e.logger.ErrorContext(ctx, "failed to release hold",
				slog.String("clan_tag", bid.ClanTag),
				slog.String("amount", bid.Amount.String()),
				slog.Any("error", err))
		}
	}
	if outcome.Kind == MultiBid {
		if err := e.repos.Clans.DeductPoints(ctx, outcome.Winner, outcome.Amount); err != nil {
			e.logger.ErrorContext(ctx, "failed to deduct winner points",
				slog.String("clan_tag", outcome.Winner),
				slog.String("amount", outcome.Amount.String()),
				slog.Any("error", err))
		}
	}
}

func (e *Engine) getSession(ctx context.Context, sessionID string) (*store.Session, error) {
	session, err := e.repos.Sessions.GetByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	return session, nil
}

func (e *Engine) authorize(ctx context.Context, userID, clanTag string) error {
	tags, err := e.roles.ClanTags(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolving clan roles: %w", err)
	}
	if !slices.Contains(tags, clanTag) {
		return ErrNotAuthorized
	}
	return nil
}

// refreshDisplay re-renders the auction message with the current bid list.
func (e *Engine) refreshDisplay(ctx context.Context, session *store.Session) {
	if session.MessageID == "" {
		return
	}
	record, err := e.repos.Auctions.GetByPlayerTag(ctx, session.PlayerTag)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to load record for display refresh",
			slog.String("session_id", session.ID), slog.Any("error", err))
		return
	}
	if err := e.display.Edit(ctx, session.ThreadID, session.MessageID, renderAnnouncement(session, record.Bids)); err != nil {
		e.logger.WarnContext(ctx, "failed to refresh auction message",
			slog.String("session_id", session.ID), slog.Any("error", err))
	}
}

func (e *Engine) appendEvent(ctx context.Context, aggregateID string, typ event.Type, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to marshal event payload",
			slog.String("type", string(typ)), slog.Any("error", err))
		return
	}
	if err := e.repos.Events.Append(ctx, event.Event{AggregateID: aggregateID, Type: typ, Data: data}); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist event",
			slog.String("type", string(typ)), slog.Any("error", err))
	}
}

// validIncrement reports whether amount is a non-negative multiple of 0.5.
func validIncrement(amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	return amount.Mul(decimal.NewFromInt(2)).IsInteger()
}
