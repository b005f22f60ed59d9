package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/highroller-bot/highroller/internal/bot"
	"github.com/highroller-bot/highroller/internal/game"
	"github.com/highroller-bot/highroller/internal/pkg/config"
	"github.com/highroller-bot/highroller/internal/pkg/health"
	"github.com/highroller-bot/highroller/internal/pkg/logging"
	"github.com/highroller-bot/highroller/internal/pkg/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// A .env next to the binary is a dev convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if _, err := logging.Setup(&cfg.Logging, "highroller"); err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open ledger store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		slog.Error("failed to create telegram bot", "error", err)
		os.Exit(1)
	}

	registry := game.NewRegistry(store, cfg.Game.StartingChips)
	engine := game.NewEngine(store)
	notifier := bot.NewNotifier(api)
	defer notifier.Close()

	gateway := bot.NewGateway(api, engine, registry, notifier, cfg)
	sweeper := game.NewSweeper(engine, notifier, cfg.Game.SweepInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Health.Addr != "" {
		healthSrv := health.NewServer(cfg.Health.Addr, func(ctx context.Context) (int, bool, error) {
			open := 0
			for _, state := range []game.State{game.StateCreated, game.StateAccepted, game.StateStarted} {
				challenges, err := engine.ChallengesByState(ctx, state)
				if err != nil {
					return 0, false, err
				}
				open += len(challenges)
			}
			return open, gateway.Router().Frozen(), nil
		})
		healthSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = healthSrv.Shutdown(shutdownCtx)
		}()
	}

	go sweeper.Run(ctx)

	slog.Info("highroller bot starting", "channel", cfg.Telegram.ChannelID)
	gateway.Run(ctx)
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Postgres.DSN == "" {
		slog.Warn("no postgres DSN configured, using in-memory store; nothing will survive a restart")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewPostgresStore(&cfg.Postgres)
}
