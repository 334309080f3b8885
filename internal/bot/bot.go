package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/trace"

	"github.com/kingsalliance/bidbot/internal/bidding"
	"github.com/kingsalliance/bidbot/internal/bot/commands"
	"github.com/kingsalliance/bidbot/internal/config"
	"github.com/kingsalliance/bidbot/internal/recovery"
	"github.com/kingsalliance/bidbot/internal/store"
)

// Bot wraps the Discord session and command handlers.
type Bot struct {
	session  *discordgo.Session
	cfg      config.DiscordConfig
	logger   *slog.Logger
	handlers *commands.Handlers
	cmds     []*discordgo.ApplicationCommand
}

// New creates a new Bot instance. The returned bot's Session is not yet
// connected; wire the engine's Display and RoleResolver off it first, then
// call Start.
func New(cfg config.DiscordConfig, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	return &Bot{
		session: session,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Session exposes the underlying Discord session for the Display and
// RoleResolver adapters.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Attach installs the command handlers. Must be called before Start.
func (b *Bot) Attach(engine *bidding.Engine, sweeper *recovery.Sweeper, repos *store.Repositories, tp trace.TracerProvider) {
	b.handlers = commands.NewHandlers(engine, sweeper, repos, b.cfg, b.logger, tp)
}

// Start opens the Discord connection and registers slash commands.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.InfoContext(ctx, "bot is ready", slog.String("user", s.State.User.Username))
	})

	b.session.AddHandler(b.handlers.InteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}

	// Register slash commands.
	appCmds := commands.SlashCommands()
	registered, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.cfg.GuildID, appCmds)
	if err != nil {
		return fmt.Errorf("registering slash commands: %w", err)
	}
	b.cmds = registered

	b.logger.InfoContext(ctx, "slash commands registered", slog.Int("count", len(registered)))
	return nil
}

// Stop gracefully closes the Discord connection.
func (b *Bot) Stop() error {
	// Remove slash commands on shutdown (optional for dev).
	for _, cmd := range b.cmds {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.cfg.GuildID, cmd.ID); err != nil {
			b.logger.Error("failed to delete command", slog.String("command", cmd.Name), slog.Any("error", err))
		}
	}
	return b.session.Close()
}
