// ABOUTME: Entry point for the hearth household service
// ABOUTME: Routes to serve, init, sync, and renew-channels commands
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hearthfam/hearth/chores"
	"github.com/hearthfam/hearth/config"
	"github.com/hearthfam/hearth/db"
	"github.com/hearthfam/hearth/gcal"
	"github.com/hearthfam/hearth/sync"
	"github.com/hearthfam/hearth/vault"
	"github.com/hearthfam/hearth/web"
)

const version = "0.2.0"

// queuePollInterval is how often the worker drains webhook-dispatched jobs.
const queuePollInterval = 2 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/hearth/hearth.db)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hearth version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "init":
		database, err := db.OpenDatabase(cfg.DatabasePath)
		if err != nil {
			logger.Error("failed to initialize database", "path", cfg.DatabasePath, "error", err)
			os.Exit(1)
		}
		defer database.Close()
		logger.Info("database initialized", "path", cfg.DatabasePath)

	case "sync":
		app, err := buildApp(cfg, logger)
		if err != nil {
			logger.Error("startup failed", "error", err)
			os.Exit(1)
		}
		defer app.close()

		// Threshold zero treats every enabled source as stale.
		summary := app.orchestrator.SyncStale(ctx, 0)
		logger.Info("sync pass finished",
			"calendars_synced", summary.CalendarsSynced,
			"events_upserted", summary.TotalEventsUpserted,
			"events_deleted", summary.TotalEventsDeleted,
			"failures", summary.Failures)
		if summary.Failures > 0 {
			os.Exit(1)
		}

	case "renew-channels":
		app, err := buildApp(cfg, logger)
		if err != nil {
			logger.Error("startup failed", "error", err)
			os.Exit(1)
		}
		defer app.close()

		summary := app.channels.RenewExpiring(ctx)
		logger.Info("channel renewal finished",
			"renewed", summary.Renewed, "failed", summary.Failed, "skipped", summary.Skipped)
		if summary.Failed > 0 {
			os.Exit(1)
		}

	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

// app bundles the long-lived collaborators shared by every command.
type app struct {
	database     *sql.DB
	vault        *vault.Vault
	client       *gcal.Client
	engine       *sync.Engine
	orchestrator *sync.Orchestrator
	channels     *sync.ChannelManager
}

func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	database, err := db.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	v, err := vault.New(cfg.VaultSecret)
	if err != nil {
		database.Close()
		return nil, err
	}

	client := gcal.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret,
		cfg.BaseURL+"/oauth/google/callback")

	engine := sync.NewEngine(database, v, client, logger)
	return &app{
		database:     database,
		vault:        v,
		client:       client,
		engine:       engine,
		orchestrator: sync.NewOrchestrator(database, engine, logger),
		channels: sync.NewChannelManager(database, v, client,
			cfg.BaseURL+"/webhooks/google-calendar", logger),
	}, nil
}

func (a *app) close() {
	_ = a.database.Close()
}

// serve runs the HTTP server, the badger queue worker, and the in-process
// cron schedule until the context is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	queue, err := sync.OpenQueue(cfg.QueuePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open job queue: %w", err)
	}
	defer queue.Close()

	server := web.NewServer(web.Options{
		DB:         a.database,
		Vault:      a.vault,
		OAuth:      a.client,
		Syncer:     a.orchestrator,
		Channels:   a.channels,
		Queue:      queue,
		Limiter:    sync.NewWindowLimiter(5, time.Minute),
		Chores:     chores.NewService(a.database, logger),
		CronSecret: cfg.CronSecret,
		StaleAfter: cfg.StaleAfter,
		Logger:     logger,
	})

	// Webhook-dispatched jobs drain through the orchestrator, which collapses
	// duplicates against cron-triggered syncs.
	go queue.Run(ctx, queuePollInterval, func(ctx context.Context, sourceID string) {
		if result := a.orchestrator.SyncSourceByID(ctx, sourceID); result.Err != nil {
			logger.Error("queued sync failed", "source_id", sourceID, "error", result.Err)
		}
	})

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("*/5 * * * *", func() {
		a.orchestrator.SyncStale(context.Background(), cfg.StaleAfter)
	}); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc("30 3 * * *", func() {
		a.channels.RenewExpiring(context.Background())
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("hearth listening", "addr", cfg.ListenAddr, "version", version)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func printUsage() {
	fmt.Printf(`hearth v%s - household calendar and chore service

USAGE:
  hearth [global flags] <command>

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/hearth/hearth.db)

COMMANDS:
  serve                  Run the HTTP server with the in-process scheduler
  init                   Initialize the database and exit
  sync                   Sync every enabled calendar source once and exit
  renew-channels         Renew expiring webhook channels once and exit

ENVIRONMENT:
  HEARTH_LISTEN          HTTP listen address (default :8080)
  HEARTH_BASE_URL        Externally reachable base URL
  HEARTH_DB_PATH         Database path
  HEARTH_QUEUE_PATH      Job queue directory
  HEARTH_VAULT_SECRET    Token encryption secret (required)
  HEARTH_CRON_SECRET     Bearer secret for /api/cron endpoints (required)
  HEARTH_STALE_AFTER     Staleness threshold for scheduled syncs (default 5m)
  HEARTH_LOG_JSON        Log as JSON instead of text
  GOOGLE_CLIENT_ID       OAuth client id (required)
  GOOGLE_CLIENT_SECRET   OAuth client secret (required)

EXAMPLES:
  # First run
  hearth init

  # Run the service
  HEARTH_BASE_URL=https://hearth.example.com hearth serve

  # One-shot sync from an external scheduler
  hearth sync
`, version)
}
