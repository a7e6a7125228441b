package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/tradebot/internal/config"
	"github.com/me/tradebot/internal/dispatch"
	"github.com/me/tradebot/internal/legality"
	"github.com/me/tradebot/internal/logging"
	"github.com/me/tradebot/internal/notify"
	"github.com/me/tradebot/internal/pool"
	"github.com/me/tradebot/internal/queue"
	"github.com/me/tradebot/internal/record"
	"github.com/me/tradebot/internal/server"
	"github.com/me/tradebot/internal/store"
)

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	dbPath := flag.String("db", "", "History database path (default ~/.tradebot/history.db)")
	folder := flag.String("distribute", "", "Distribution folder (overrides config)")
	inbox := flag.String("inbox", "", "Folder that submitted source paths may point into (overrides config)")
	routines := flag.Int("routines", -1, "Number of exchange routines (overrides config)")
	delay := flag.Duration("loopback-delay", 2*time.Second, "Simulated exchange duration")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fatal("%v", err)
		}
		cfg = loaded
	}

	// Flags win over the config file.
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.Server.LogFormat = *logFormat
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}
	if *folder != "" {
		cfg.Pool.DistributeFolder = *folder
	}
	if *inbox != "" {
		cfg.Dispatch.InboxFolder = *inbox
	}
	if *routines >= 0 {
		cfg.Dispatch.Routines = *routines
	}
	if *debug {
		cfg.Server.LogLevel = "debug"
	}

	logger := logging.New(cfg.Server)

	// Resolve database path.
	if cfg.Server.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatal("cannot determine home directory: %v", err)
		}
		dir := filepath.Join(home, ".tradebot")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fatal("cannot create %s: %v", dir, err)
		}
		cfg.Server.DBPath = filepath.Join(dir, "history.db")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(cfg.Server.DBPath, logger)
	if err != nil {
		fatal("open database: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fatal("migrate database: %v", err)
	}
	logger.Info("database ready", "path", cfg.Server.DBPath)

	rules, err := legality.Compile(cfg.Pool.Legality...)
	if err != nil {
		fatal("legality rules: %v", err)
	}
	logger.Info("legality rules compiled", "rules", rules.Len())

	format := record.NewFormat(rules)
	p := pool.New[*record.Record](format, cfg.Pool, logger)
	if !p.Reload() {
		logger.Warn("distribution pool is empty; link and anonymous requests need an explicit payload",
			"folder", cfg.Pool.DistributeFolder)
	}

	if cfg.Dispatch.ProcessedFolder != "" {
		if err := os.MkdirAll(cfg.Dispatch.ProcessedFolder, 0o755); err != nil {
			fatal("cannot create %s: %v", cfg.Dispatch.ProcessedFolder, err)
		}
	}

	notifier := notify.Multi{
		notify.NewLogNotifier(logger),
		notify.NewStoreNotifier(st, logger),
	}
	hub := dispatch.NewHub(queue.New(), p, format, notifier, cfg.Dispatch, logger)
	loop := dispatch.NewLoop(hub, dispatch.Loopback{Delay: *delay}, cfg.Dispatch, logger)

	srv := server.New(cfg.Server, hub, st, logger, server.WithLoop(loop))

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.StartRoutines(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop routines before the HTTP server; queued requests are reported
	// as canceled.
	if err := loop.Stop(); err != nil {
		logger.Error("routines stop error", "error", err)
	}
	if n := hub.CancelAll(context.Background()); n > 0 {
		logger.Info("canceled queued requests", "count", n)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fatal("shutdown error: %v", err)
	}
	logger.Info("server stopped")
}
