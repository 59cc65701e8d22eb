// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sweeper

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/realtime"
)

// Sweeper auto-finishes rounds that have seen no issue changes or votes
// within the inactivity window. Clients never drive round lifecycle; this
// is the server-side transition they observe.
type Sweeper struct {
	db     *sql.DB
	hub    *realtime.Hub
	window time.Duration
	cron   *cron.Cron
}

// New creates a sweeper; call Start to run it.
func New(db *sql.DB, hub *realtime.Hub, window time.Duration) *Sweeper {
	return &Sweeper{
		db:     db,
		hub:    hub,
		window: window,
		cron:   cron.New(),
	}
}

// Start registers the sweep job and blocks until the context is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@every 1m", s.sweep); err != nil {
		return fmt.Errorf("sweeper: failed to register job: %w", err)
	}

	s.cron.Start()
	slog.Info("sweeper started", "window", s.window)

	<-ctx.Done()
	s.cron.Stop()
	slog.Info("sweeper stopped")
	return ctx.Err()
}

// Sweep runs one pass immediately. Exposed for tests and for a final
// pass on shutdown.
func (s *Sweeper) Sweep() {
	s.sweep()
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.window)

	rows, err := s.db.Query(`
		SELECT id FROM round
		WHERE status = $1 AND last_activity_at < $2
	`, models.StatusOpen, cutoff)
	if err != nil {
		slog.Error("sweep query failed", "error", err)
		return
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("sweep scan failed", "error", err)
			return
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		slog.Error("sweep rows failed", "error", err)
		return
	}

	for _, roundID := range stale {
		res, err := s.db.Exec(`
			UPDATE round SET status = $1, finished_at = $2
			WHERE id = $3 AND status = $4
		`, models.StatusFinished, time.Now(), roundID, models.StatusOpen)
		if err != nil {
			slog.Error("failed to finish round", "error", err, "round_id", roundID)
			continue
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		slog.Info("round auto-finished", "round_id", roundID)
		if s.hub != nil {
			s.hub.BroadcastError(roundID, "round finished due to inactivity")
		}
	}
}
