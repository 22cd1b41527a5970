package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/pflag"

	"github.com/eventdesk/booking-bot/internal/bot"
	"github.com/eventdesk/booking-bot/internal/config"
	"github.com/eventdesk/booking-bot/internal/db"
	"github.com/eventdesk/booking-bot/internal/errreport"
	"github.com/eventdesk/booking-bot/internal/lifecycle"
	"github.com/eventdesk/booking-bot/internal/logging"
	"github.com/eventdesk/booking-bot/internal/notifier"
	"github.com/eventdesk/booking-bot/internal/server"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.NewLogger(cfg.LogFormat, cfg.Verbose, os.Stdout)
	logger.SetAsDefault()

	if err := run(cfg, logger); err != nil {
		logger.LogError("bot stopped", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("starting booking bot",
		"version", Version,
		"build_time", BuildTime,
		"store", cfg.Store.Driver,
		"managers", len(cfg.Managers),
	)

	cfg.Sentry.Release = Version
	if err := errreport.Init(cfg.Sentry); err != nil {
		logger.LogError("failed to initialize error reporting", err)
	}
	defer errreport.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, err := db.Open(ctx, cfg.Store, logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.LogError("failed to close store", err)
		}
	}()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("authorized on telegram", "username", api.Self.UserName)

	machine := lifecycle.New(store, cfg.Managers, lifecycle.WithLogger(logger.With("component", "lifecycle")))
	n := notifier.New(api, cfg.SendRate, logger.With("component", "notifier"))

	counter, _ := store.(db.StatusCounter)
	telegramBot := bot.New(api, machine, n, bot.Config{
		Managers: cfg.Managers,
		Location: cfg.Location,
		Counter:  counter,
	}, logger.With("component", "bot"))

	var webhookPath string
	if url := cfg.WebhookURL(); url != "" {
		if err := telegramBot.RegisterWebhook(url); err != nil {
			return err
		}
		webhookPath = cfg.WebhookPath()
	}

	srv := server.New(server.Config{
		FormSecret:     cfg.FormSecret,
		FormSubmitPath: cfg.FormSubmitPath,
		WebhookPath:    webhookPath,
	}, telegramBot, telegramBot, logger.With("component", "server"))

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Listen(cfg.ListenAddr()) }()

	if webhookPath == "" {
		logger.Info("no webhook host configured, using long polling")
		go func() { errCh <- telegramBot.Run(ctx) }()
	}

	logger.Info("bot is running, press Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if webhookPath != "" {
		if err := telegramBot.RemoveWebhook(); err != nil {
			logger.LogError("failed to delete webhook", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogError("failed to stop web server", err)
	}

	logger.Info("bot stopped")
	return runErr
}
