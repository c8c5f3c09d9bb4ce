// Package main contains the entrypoint for the statistics intake bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgard/selfreportbot/internal/bot"
	"github.com/edgard/selfreportbot/internal/bot/handlers"
	"github.com/edgard/selfreportbot/internal/bot/tasks"
	"github.com/edgard/selfreportbot/internal/chat"
	"github.com/edgard/selfreportbot/internal/config"
	"github.com/edgard/selfreportbot/internal/database"
	"github.com/edgard/selfreportbot/internal/deltachat"
	"github.com/edgard/selfreportbot/internal/logger"
	"github.com/edgard/selfreportbot/internal/report"
	"github.com/edgard/selfreportbot/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires all components, blocks until shutdown and returns the process
// exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open ledger database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	ledger := database.NewStore(db, log)

	reports, err := report.NewStore(report.Options{
		Dir:         cfg.Reports.Dir,
		LockTimeout: cfg.Reports.LockTimeout,
	}, log)
	if err != nil {
		log.Error("Failed to open report store", "dir", cfg.Reports.Dir, "error", err)
		return 1
	}

	transport, cache, err := newTransport(cfg, log)
	if err != nil {
		log.Error("Failed to start transport", "kind", cfg.Transport.Kind, "error", err)
		return 1
	}
	defer func() {
		if err := transport.Close(); err != nil {
			log.Warn("Error closing transport", "error", err)
		}
	}()

	hDeps := handlers.HandlerDeps{
		Logger:    log,
		Config:    cfg,
		Reports:   reports,
		Ledger:    ledger,
		Transport: transport,
	}
	dispatcher := bot.NewDispatcher(log, transport, handlers.NewIngester(hDeps), handlers.NewCleaner(hDeps))

	tDeps := tasks.TaskDeps{
		Logger:  log,
		Config:  cfg,
		Ledger:  ledger,
		Reports: reports,
		Cache:   cache,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, transport, dispatcher, sched)

	log.Info("Starting bot...", "transport", cfg.Transport.Kind, "reports_dir", reports.Dir())
	runErr := app.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

// newTransport creates the configured transport. The returned pruner is nil
// for transports without a local attachment cache.
func newTransport(cfg *config.Config, log *slog.Logger) (chat.Transport, tasks.CachePruner, error) {
	switch cfg.Transport.Kind {
	case "deltachat":
		c, err := deltachat.Start(deltachat.Options{
			ServerPath:  cfg.Transport.DeltaChat.RPCServerPath,
			AccountsDir: cfg.Transport.DeltaChat.AccountsDir,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	case "telegram":
		t, err := telegram.New(telegram.Options{
			Token:        cfg.Transport.Telegram.Token,
			CacheDir:     cfg.Transport.Telegram.CacheDir,
			MaxFileBytes: cfg.Reports.MaxAttachmentBytes,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return t, t, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}
