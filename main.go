package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danielhkuo/consensus-engine/cache"
	"github.com/danielhkuo/consensus-engine/cliparse"
	"github.com/danielhkuo/consensus-engine/db"
	"github.com/danielhkuo/consensus-engine/engine"
	"github.com/danielhkuo/consensus-engine/events"
	"github.com/danielhkuo/consensus-engine/handlers"
	"github.com/danielhkuo/consensus-engine/metrics"
	"github.com/danielhkuo/consensus-engine/middleware"
	"github.com/danielhkuo/consensus-engine/router"
	"github.com/danielhkuo/consensus-engine/templates"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var err error

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		slog.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	dialect, err := db.ParseDialect(cfg.DatabaseType)
	if err != nil {
		slog.Error("invalid database type", "error", err)
		os.Exit(1)
	}

	// Connect and verify
	dbConn, err := db.Open(dialect, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(dbConn, dialect); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready", "dialect", dialect)

	registry, err := templates.Load(cfg.TemplatesPath)
	if err != nil {
		slog.Error("template loading failed", "error", err)
		os.Exit(1)
	}

	publisher, err := events.FromConfig(cfg)
	if err != nil {
		slog.Error("event broker unavailable", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	var spreads cache.SpreadCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		client, err := cache.Open(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		spreads = cache.NewRedisSpreadCache(client, cfg.SpreadCacheTTL)
		slog.Info("Spread cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.SpreadCacheTTL)
	}

	// Create router
	mux := router.NewRouter(handlers.Deps{
		Engine:    engine.New(dbConn, dialect),
		Templates: registry,
		Events:    publisher,
		Spreads:   spreads,
		Metrics:   metrics.New(),
	}, cfg)

	// Create server
	server := http.Server{
		Handler:           middleware.CORS(mux),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		// Wait for Ctrl-C signal, then let in-flight requests finish
		<-ctrlc
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Warn("graceful shutdown failed", "error", err)
			server.Close()
		}
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port, "broker", cfg.EventsBroker)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
		return
	}
	<-idle
	slog.Info("Server closed")
}
