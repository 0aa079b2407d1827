package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/trawlhq/trawl/api"
	"github.com/trawlhq/trawl/cache"
	"github.com/trawlhq/trawl/config"
	"github.com/trawlhq/trawl/engine"
	"github.com/trawlhq/trawl/fetch"
	"github.com/trawlhq/trawl/health"
	"github.com/trawlhq/trawl/scraper"
	"github.com/trawlhq/trawl/selectors"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("trawl starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
	)

	// ── 3. Selector profile ──────────────────────────────────────────
	profile := selectors.Load(cfg.Extract.ProfilePath)

	// ── 4. Browser session (shared by the rod engine tiers) ─────────
	session, err := scraper.NewSession(cfg.Browser, cfg.Fetch.Proxy)
	if err != nil {
		slog.Error("failed to start browser session", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	// ── 5. Engine ladder + fetcher ───────────────────────────────────
	engines := []engine.Engine{
		engine.NewHTTPEngine(cfg.Fetch.Proxy),
		engine.NewRodEngine(session.Fetch, false),
		engine.NewRodEngine(session.Fetch, true),
	}
	memory := engine.NewHostMemory(cfg.Fetch.EngineMemoryTTL)
	fetcher := fetch.New(cfg.Fetch, engines, memory)

	// ── 6. Scraper + health monitor ──────────────────────────────────
	sc := scraper.New(fetcher, profile, cfg.Extract)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	monitor := health.NewMonitor(fetcher, profile, cfg.Health)
	go monitor.Run(monitorCtx)

	// ── 7. Cache + router ────────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)

	startTime := time.Now()
	router := api.NewRouter(sc, session.Stats, monitor, cfg, cc, startTime)

	// ── 8. Start HTTP server ─────────────────────────────────────────
	addr := cfg.Addr()
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 9. Graceful shutdown ─────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	stopMonitor()

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// session.Close() runs via defer — drains page pool and kills Chrome.
	slog.Info("trawl stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
