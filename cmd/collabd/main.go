// collabd hosts a single collaborative editing session and exposes its
// status and controls over HTTP and gRPC health.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/collabsync/internal/api"
	"github.com/ashureev/collabsync/internal/collab"
	"github.com/ashureev/collabsync/internal/config"
	"github.com/ashureev/collabsync/internal/health"
	"github.com/ashureev/collabsync/internal/middleware"
	"github.com/ashureev/collabsync/internal/notify"
	"github.com/ashureev/collabsync/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting collabd", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "settings", cfg.SettingsPath)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Notification fan-out.
	reporter := health.NewReporter(logger)
	recent := notify.NewRecent(cfg.Journal.RecentSize)
	dispatcher := notify.NewDispatcher(cfg.Journal.QueueSize, logger,
		notify.NewLogSink(logger),
		store.NewJournalSink(repo),
		recent,
		reporter,
	)

	mgr := collab.NewManager(collab.Options{
		Notifier: dispatcher,
		Logger:   logger,
	})

	loadSettings := func() (config.Settings, error) {
		return config.LoadSettings(cfg.SettingsPath)
	}
	settings, err := loadSettings()
	if err != nil {
		slog.Error("Failed to load session settings", "error", err)
		os.Exit(1)
	}
	ctrl := &sessionControl{Manager: mgr, reporter: reporter}
	ctrl.Initialize(settings)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartRetentionWorker(ctx, repo, cfg.Journal.CleanupInterval, cfg.Journal.Retention)

	if cfg.WatchSettings {
		go func() {
			err := config.WatchSettings(ctx, cfg.SettingsPath, logger, func(s config.Settings) {
				slog.Info("Session settings changed, reinitializing")
				ctrl.Initialize(s)
			})
			if err != nil {
				slog.Warn("Settings watcher stopped", "error", err)
			}
		}()
	}

	if cfg.GRPCEnabled() {
		go func() {
			if err := reporter.Serve(ctx, net.JoinHostPort("", cfg.GRPCPort)); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	sessionHandler := api.NewSessionHandler(ctrl, recent, repo, loadSettings)
	healthHandler := api.NewHealthHandler(repo, ctrl)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{cfg.AllowedOrigin}))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWindow)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	mgr.Destroy()
	reporter.Reset()
	if err := dispatcher.Close(); err != nil {
		slog.Warn("Notification dispatcher did not drain", "error", err)
	}

	slog.Info("Server stopped successfully")
}

// sessionControl retires the current session's health before the manager
// replaces it, so queued notifications of the old session cannot report it
// healthy again.
type sessionControl struct {
	*collab.Manager
	reporter *health.Reporter
}

func (c *sessionControl) Initialize(settings config.Settings) {
	c.reporter.Retire(c.SessionID())
	c.Manager.Initialize(settings)
}

func (c *sessionControl) Reattempt() {
	c.reporter.Retire(c.SessionID())
	c.Manager.Reattempt()
}
