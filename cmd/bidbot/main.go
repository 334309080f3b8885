package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kingsalliance/bidbot/internal/bidding"
	"github.com/kingsalliance/bidbot/internal/bot"
	"github.com/kingsalliance/bidbot/internal/clock"
	"github.com/kingsalliance/bidbot/internal/config"
	"github.com/kingsalliance/bidbot/internal/health"
	"github.com/kingsalliance/bidbot/internal/leader"
	"github.com/kingsalliance/bidbot/internal/recovery"
	"github.com/kingsalliance/bidbot/internal/scheduler"
	"github.com/kingsalliance/bidbot/internal/store"
	"github.com/kingsalliance/bidbot/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/kingsalliance/bidbot/internal/store/bunstore"
	_ "github.com/kingsalliance/bidbot/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (sqlx or bun).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Setup health checks. The HTTP server runs on all replicas.
	healthHandler := health.NewHandler(clk,
		health.Check{
			Name:  "database",
			Probe: repos.Ping,
		},
	)

	mux := http.NewServeMux()
	healthHandler.Register(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// startBot is the core work that only the leader should run: connect
	// to Discord, rebuild lost session timers, then serve commands.
	startBot := func(ctx context.Context) {
		if botErr := runBot(ctx, cfg, repos, healthHandler, logger, tp.TracerProvider, clk); botErr != nil {
			logger.ErrorContext(ctx, "bot run failed", slog.Any("error", botErr))
		}
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, startBot, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		// No leader election; run directly.
		startBot(ctx)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}

// runBot wires the engine, sweeper and Discord surface together and blocks
// until ctx is done.
func runBot(ctx context.Context, cfg *config.Config, repos *store.Repositories,
	healthHandler *health.Handler, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) error {
	discordBot, err := bot.New(cfg.Discord, logger)
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	sched := scheduler.NewTimers(logger, clk)
	defer sched.Stop()

	display := bot.NewDisplay(discordBot.Session())
	roles := bot.NewRoles(discordBot.Session(), cfg.Discord.GuildID, repos.Clans)

	engine := bidding.NewEngine(repos, sched, display, roles,
		logger, tp, clk, cfg.Bidding.Duration, cfg.Discord.EscalationRoleID)
	sweeper := recovery.NewSweeper(repos, engine, logger, clk, cfg.Bidding.RecoverySettleDelay)

	discordBot.Attach(engine, sweeper, repos, tp)

	if err := discordBot.Start(ctx); err != nil {
		return fmt.Errorf("starting bot: %w", err)
	}

	// Reconcile persisted sessions against the timers lost with the
	// previous leader before accepting traffic as ready.
	go func() {
		if sweepErr := sweeper.Run(ctx); sweepErr != nil {
			logger.ErrorContext(ctx, "recovery sweep failed", slog.Any("error", sweepErr))
		}
	}()

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "bidbot is running", slog.String("version", version))

	// Block until leadership is lost or the process is shutting down.
	<-ctx.Done()

	healthHandler.SetReady(false)
	if stopErr := discordBot.Stop(); stopErr != nil {
		logger.Error("bot shutdown error", slog.Any("error", stopErr))
	}
	return nil
}
