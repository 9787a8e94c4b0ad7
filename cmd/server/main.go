package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keremavci/engram/internal/api"
	"github.com/keremavci/engram/internal/config"
	"github.com/keremavci/engram/internal/consolidate"
	"github.com/keremavci/engram/internal/db"
	"github.com/keremavci/engram/internal/embedding"
	"github.com/keremavci/engram/internal/engine"
	"github.com/keremavci/engram/internal/evolve"
	"github.com/keremavci/engram/internal/mcp"
	"github.com/keremavci/engram/internal/recall"
	"github.com/keremavci/engram/internal/store"
)

var version = "dev" // set via ldflags at build time

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	slog.Info("starting engram", "version", version)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL; fall back to the in-memory store so the
	// server stays usable without a database (records are then volatile).
	var recordStore store.Store
	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable, using in-memory store", "error", err)
		recordStore = store.NewMemStore()
	} else {
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		recordStore = store.NewPGStore(pool)
	}

	var embedder recall.Embedder
	if cfg.Embedding.Provider == "ollama" {
		embedClient := embedding.NewClient(cfg.Embedding)
		if err := embedClient.EnsureModel(ctx); err != nil {
			slog.Warn("could not ensure embedding model", "error", err)
			// Don't exit - the model might be pulled later
		}
		embedder = embedClient
	}

	eng, err := engine.New(ctx, recordStore, embedder, cfg.Engine)
	if err != nil {
		slog.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}

	if cfg.Engine.Consolidation.Enabled {
		sched := consolidate.NewScheduler(eng.Consolidator(), cfg.Engine.Consolidation.Interval)
		sched.Start()
		defer sched.Stop()
	}

	if cfg.Engine.Evolution.Enabled {
		sched := evolve.NewScheduler(eng.Evolver(), cfg.Engine.Evolution.Interval, cfg.Engine.Evolution.Lookback)
		sched.Start()
		defer sched.Stop()
	}

	mcpServer := mcp.NewServer(eng)
	apiRouter := api.NewRouter(eng)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpServer.Handler())
	mux.Handle("/", apiRouter)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("engram server listening",
		"addr", addr,
		"mcp", "/mcp",
		"rest", "/api/v1/",
		"health", "/health",
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
