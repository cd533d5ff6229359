package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gungorefecetin/web-code-editor/internal/api"
	"github.com/gungorefecetin/web-code-editor/internal/config"
	"github.com/gungorefecetin/web-code-editor/internal/db"
	"github.com/gungorefecetin/web-code-editor/internal/eviction"
	"github.com/gungorefecetin/web-code-editor/internal/ratelimit"
	"github.com/gungorefecetin/web-code-editor/internal/room"
	"github.com/gungorefecetin/web-code-editor/internal/session"
	"github.com/gungorefecetin/web-code-editor/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("loading config failed", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		journal  *db.Journal
		activity api.ActivityStore
	)
	registryOpts := []room.Option{room.WithChatHistoryLimit(cfg.Rooms.ChatHistoryLimit)}
	routerOpts := []session.Option{}

	if !cfg.Database.Disabled {
		database, err := db.New(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer database.Close()

		journal = db.NewJournal(database, db.JournalConfig{
			QueueSize:     cfg.Journal.BufferSize,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, logger.With("component", "journal"))
		journal.Start()

		activity = journal
		registryOpts = append(registryOpts, room.WithObserver(journal))
		routerOpts = append(routerOpts, session.WithActivityRecorder(journal))
		logger.Info("activity journal enabled", "path", cfg.Database.Path)
	} else {
		logger.Info("activity journal disabled")
	}

	registry := room.NewRegistry(logger.With("component", "registry"), registryOpts...)
	router := session.NewRouter(registry, logger.With("component", "router"), routerOpts...)

	hub := ws.NewHub(logger.With("component", "hub"))
	counters := &ws.SendCounters{}
	wsServer := ws.NewServer(hub, router, ws.Options{
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		SendBuffer:        cfg.WebSocket.SendBuffer,
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		MessageBurst:      cfg.WebSocket.MessageBurst,
		MaxRateViolations: cfg.WebSocket.MaxRateViolations,
		MaxChatLength:     cfg.Rooms.MaxChatLength,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	}, logger.With("component", "ws"), counters.Middleware())

	createLimiter := ratelimit.NewClientLimiters(cfg.RateLimit.CreateRoomPerMinute/60, cfg.RateLimit.CreateRoomBurst, 10*time.Minute)
	createLimiter.Start(5 * time.Minute)
	defer createLimiter.Stop()

	apiHandler := api.New(registry, hub, logger.With("component", "api"), api.Options{
		FrontendURL:    cfg.Server.FrontendURL,
		Activity:       activity,
		CreateLimiter:  createLimiter,
		TrustedProxies: cfg.Server.TrustedProxies,
	})

	evictor := eviction.New(registry, eviction.Config{
		Interval: cfg.Rooms.EvictionInterval,
		MaxAge:   cfg.Rooms.MaxAge,
	}, logger.With("component", "eviction"))
	evictor.Start()
	defer evictor.Stop()

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           apiHandler.Handler(wsServer, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("server starting",
			"addr", server.Addr,
			"frontend_url", cfg.Server.FrontendURL,
			"log_level", cfg.Log.Level)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		if journal != nil {
			if err := journal.Close(shutdownCtx); err != nil {
				logger.Error("flushing activity journal failed", "error", err)
			}
		}
		return nil
	})

	err := g.Wait()
	logger.Info("server stopped",
		"events_sent", counters.Sent(),
		"events_dropped", counters.Dropped())
	return err
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug",
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
