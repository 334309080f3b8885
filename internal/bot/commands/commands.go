// Package commands holds the slash command definitions and interaction
// handlers for the bidding bot.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kingsalliance/bidbot/internal/bidding"
	"github.com/kingsalliance/bidbot/internal/config"
	"github.com/kingsalliance/bidbot/internal/recovery"
	"github.com/kingsalliance/bidbot/internal/store"
)

// Handlers process Discord interactions.
type Handlers struct {
	engine  *bidding.Engine
	sweeper *recovery.Sweeper
	repos   *store.Repositories
	cfg     config.DiscordConfig
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(engine *bidding.Engine, sweeper *recovery.Sweeper, repos *store.Repositories,
	cfg config.DiscordConfig, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		engine:  engine,
		sweeper: sweeper,
		repos:   repos,
		cfg:     cfg,
		logger:  logger,
		tracer:  tp.Tracer("github.com/kingsalliance/bidbot/internal/bot/commands"),
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "bidding-start",
			Description: "Open a timed bidding session for a recruit",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "recruit",
					Description: "Recruit id to open bidding for",
					Required:    true,
				},
			},
		},
		{
			Name:        "bid",
			Description: "Manage your clan's bid on an open session",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "place",
					Description: "Place your clan's bid",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "session",
							Description: "Bidding session id",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "clan",
							Description: "Your clan tag",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionNumber,
							Name:        "amount",
							Description: "Bid amount in points (0.5 steps)",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Withdraw your clan's open bid",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "session",
							Description: "Bidding session id",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "clan",
							Description: "Your clan tag",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "confirm",
							Description: "Type CONFIRM to execute the removal",
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:        "bidding-end",
			Description: "Close a bidding session now (staff only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "session",
					Description: "Bidding session id",
					Required:    true,
				},
			},
		},
		{
			Name:        "bidding-recovery-status",
			Description: "Show what the startup recovery sweep did",
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, span := h.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("command", i.ApplicationCommandData().Name)),
	)
	defer span.End()

	switch i.ApplicationCommandData().Name {
	case "bidding-start":
		h.handleBiddingStart(ctx, s, i)
	case "bid":
		h.handleBid(ctx, s, i)
	case "bidding-end":
		h.handleBiddingEnd(ctx, s, i)
	case "bidding-recovery-status":
		h.handleRecoveryStatus(ctx, s, i)
	default:
		respond(s, i, "Unknown command")
	}
}

func (h *Handlers) handleBiddingStart(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	recruitID := i.ApplicationCommandData().Options[0].StringValue()

	session, err := h.engine.StartSession(ctx, recruitID, i.Member.User.ID, i.ChannelID, i.ChannelID)
	if err != nil {
		respond(s, i, rejectionMessage(err))
		return
	}

	h.audit(ctx, s, fmt.Sprintf("Bidding started for **%s** (`%s`) by <@%s>, session `%s`.",
		session.PlayerName, session.PlayerTag, i.Member.User.ID, session.ID))
	respond(s, i, fmt.Sprintf("Bidding open for **%s** (session `%s`), closes <t:%d:R>.",
		session.PlayerName, session.ID, session.BidEndTime.Unix()))
}

func (h *Handlers) handleBid(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := i.ApplicationCommandData().Options[0]
	switch sub.Name {
	case "place":
		h.handleBidPlace(ctx, s, i, sub.Options)
	case "remove":
		h.handleBidRemove(ctx, s, i, sub.Options)
	default:
		respond(s, i, "Unknown subcommand")
	}
}

func (h *Handlers) handleBidPlace(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	sessionID := opts[0].StringValue()
	clanTag := opts[1].StringValue()
	amount := decimal.NewFromFloat(opts[2].FloatValue())
	userID := i.Member.User.ID

	if err := h.engine.PlaceBid(ctx, sessionID, clanTag, userID, amount); err != nil {
		if errors.Is(err, bidding.ErrNotAuthorized) {
			h.audit(ctx, s, fmt.Sprintf("Rejected bid: <@%s> tried to bid for `%s` without a leader role (session `%s`).",
				userID, clanTag, sessionID))
		}
		respond(s, i, rejectionMessage(err))
		return
	}

	h.audit(ctx, s, fmt.Sprintf("`%s` bid %s points on session `%s` (by <@%s>).",
		clanTag, amount.StringFixed(1), sessionID, userID))
	respond(s, i, fmt.Sprintf("Bid of **%s** points placed for `%s`.", amount.StringFixed(1), clanTag))
}

func (h *Handlers) handleBidRemove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	sessionID := opts[0].StringValue()
	clanTag := opts[1].StringValue()
	confirmation := strings.TrimSpace(opts[2].StringValue())
	userID := i.Member.User.ID

	if err := h.engine.RemoveBid(ctx, sessionID, clanTag, userID, confirmation); err != nil {
		if errors.Is(err, bidding.ErrNotAuthorized) {
			h.audit(ctx, s, fmt.Sprintf("Rejected removal: <@%s> tried to withdraw `%s`'s bid without a leader role (session `%s`).",
				userID, clanTag, sessionID))
		}
		respond(s, i, rejectionMessage(err))
		return
	}

	h.audit(ctx, s, fmt.Sprintf("`%s` withdrew its bid on session `%s` (by <@%s>).", clanTag, sessionID, userID))
	respond(s, i, fmt.Sprintf("Bid for `%s` withdrawn, hold released.", clanTag))
}

func (h *Handlers) handleBiddingEnd(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	sessionID := i.ApplicationCommandData().Options[0].StringValue()

	outcome, err := h.engine.EndSession(ctx, sessionID, bidding.TriggerManual)
	if err != nil {
		respond(s, i, fmt.Sprintf("Failed to end bidding: %s", err))
		return
	}
	if outcome == nil {
		respond(s, i, "That session is already closed.")
		return
	}

	h.audit(ctx, s, fmt.Sprintf("Session `%s` ended manually by <@%s>: %s wins for %s.",
		sessionID, i.Member.User.ID, outcome.Winner, outcome.Amount.StringFixed(1)))
	respond(s, i, fmt.Sprintf("Bidding closed: **%s** (%s points).", outcome.Winner, outcome.Amount.StringFixed(1)))
}

func (h *Handlers) handleRecoveryStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	st := h.sweeper.Status()
	if !st.Ran {
		respond(s, i, "Recovery sweep has not run yet.")
		return
	}

	active, err := h.repos.Recruits.CountActiveBids(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to count active bids", slog.Any("error", err))
		active = -1
	}

	respond(s, i, fmt.Sprintf(
		"Recovery sweep at <t:%d:f>: finalized %d, re-armed %d, discarded %d. Active sessions now: %d.",
		st.SweptAt.Unix(), st.Finalized, st.Rearmed, st.Discarded, active))
}

// rejectionMessage converts engine errors to user-facing feedback.
func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, bidding.ErrSessionNotFound):
		return "No such bidding session."
	case errors.Is(err, bidding.ErrSessionActive):
		return "That recruit already has an active bidding session."
	case errors.Is(err, bidding.ErrSessionExpired):
		return "Bidding has already closed for that session."
	case errors.Is(err, bidding.ErrInvalidIncrement):
		return "Bids must be a non-negative multiple of 0.5."
	case errors.Is(err, bidding.ErrInsufficientPoints):
		return "Your clan does not have enough available points for that bid."
	case errors.Is(err, bidding.ErrDuplicateBid):
		return "Your clan already has an open bid on this recruit. Remove it first."
	case errors.Is(err, bidding.ErrNoBid):
		return "Your clan has no open bid to remove."
	case errors.Is(err, bidding.ErrNotAuthorized):
		return "You need a clan leader role to do that."
	case errors.Is(err, bidding.ErrNotConfirmed):
		return "Type `CONFIRM` in the confirm field to execute the removal."
	}
	return fmt.Sprintf("Request failed: %s", err)
}

// audit posts a line to the configured log channel.
func (h *Handlers) audit(ctx context.Context, s *discordgo.Session, msg string) {
	if h.cfg.LogChannelID == "" {
		return
	}
	if _, err := s.ChannelMessageSend(h.cfg.LogChannelID, msg, discordgo.WithContext(ctx)); err != nil {
		h.logger.WarnContext(ctx, "failed to post audit message", slog.Any("error", err))
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}
