// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/storypoints/roundsync/cliparse"
	"github.com/storypoints/roundsync/db"
	"github.com/storypoints/roundsync/handlers"
	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/realtime"
	"github.com/storypoints/roundsync/router"
	"github.com/storypoints/roundsync/sweeper"
	"github.com/storypoints/roundsync/tracker"
)

func main() {
	var err error

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	// Connect to the database
	driver := "sqlite"
	if cfg.DatabaseType == "postgres" {
		driver = "postgres"
	}
	dbConn, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Verify connection
	if err := dbConn.Ping(); err != nil {
		slog.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready")

	// Optional redis for cross-instance event fan-out
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			slog.Error("redis ping failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Redis connected", "addr", cfg.RedisAddr)
	}

	// Tracker boundary
	tc := tracker.NewHTTPClient(cfg.TrackerBaseURL, cfg.TrackerToken)

	// Realtime hub: snapshot replay on join, presence convergence on drop
	var viewerHandler *handlers.ViewerHandler
	hub := realtime.NewHub(rdb,
		func(roundID string) (models.RoundSnapshotPayload, error) {
			return handlers.LoadSnapshot(dbConn, roundID)
		},
		func(roundID, viewerToken string) {
			viewerHandler.MarkDisconnected(roundID, viewerToken)
		},
	)
	viewerHandler = handlers.NewViewerHandler(dbConn, cfg, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Inactivity sweeper
	sw := sweeper.New(dbConn, hub, cfg.InactivityWindow)
	go func() {
		if err := sw.Start(ctx); err != nil && err != context.Canceled {
			slog.Error("sweeper exited", "error", err)
		}
	}()

	// Create router
	mux := router.NewRouter(dbConn, cfg, hub, tc)

	// Create server
	server := http.Server{
		Handler: mux,
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		cancel()
		hub.Close()
		server.Close()
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}
