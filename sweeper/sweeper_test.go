// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sweeper

import (
	"testing"
	"time"

	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/realtime"
	"github.com/storypoints/roundsync/testutil"
)

func newQuietHub() *realtime.Hub {
	return realtime.NewHub(nil, func(roundID string) (models.RoundSnapshotPayload, error) {
		return models.RoundSnapshotPayload{Votes: []*float64{}}, nil
	}, nil)
}

func TestSweepFinishesStaleRounds(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()

	staleID, _, _, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusOpen)
	freshID, _, _, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusOpen)

	// Push the stale round's activity past the window.
	old := time.Now().Add(-time.Hour)
	if _, err := conn.Exec(`UPDATE round SET last_activity_at = $1 WHERE id = $2`, old, staleID); err != nil {
		t.Fatalf("Failed to age round: %v", err)
	}

	s := New(conn, newQuietHub(), cfg.InactivityWindow)
	s.Sweep()

	var status string
	if err := conn.QueryRow(`SELECT status FROM round WHERE id = $1`, staleID).Scan(&status); err != nil {
		t.Fatalf("Failed to query stale round: %v", err)
	}
	if status != models.StatusFinished {
		t.Errorf("stale round status = %q, want finished", status)
	}

	var finishedAt *time.Time
	if err := conn.QueryRow(`SELECT finished_at FROM round WHERE id = $1`, staleID).Scan(&finishedAt); err != nil {
		t.Fatalf("Failed to query finished_at: %v", err)
	}
	if finishedAt == nil {
		t.Error("finished_at not set on auto-finished round")
	}

	if err := conn.QueryRow(`SELECT status FROM round WHERE id = $1`, freshID).Scan(&status); err != nil {
		t.Fatalf("Failed to query fresh round: %v", err)
	}
	if status != models.StatusOpen {
		t.Errorf("fresh round status = %q, want open", status)
	}
}

func TestSweepIgnoresFinishedRounds(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()

	roundID, _, _, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusFinished)
	old := time.Now().Add(-time.Hour)
	if _, err := conn.Exec(`UPDATE round SET last_activity_at = $1, finished_at = $2 WHERE id = $3`, old, old, roundID); err != nil {
		t.Fatalf("Failed to age round: %v", err)
	}

	s := New(conn, newQuietHub(), cfg.InactivityWindow)
	s.Sweep()

	var finishedAt time.Time
	if err := conn.QueryRow(`SELECT finished_at FROM round WHERE id = $1`, roundID).Scan(&finishedAt); err != nil {
		t.Fatalf("Failed to query round: %v", err)
	}
	// A second sweep must not rewrite the original finish time.
	if finishedAt.After(time.Now().Add(-30 * time.Minute)) {
		t.Errorf("finished_at = %v, want untouched original", finishedAt)
	}
}

func TestSweepActivityInsideWindowKeepsRoundOpen(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()

	roundID, _, _, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusOpen)
	recent := time.Now().Add(-cfg.InactivityWindow / 2)
	if _, err := conn.Exec(`UPDATE round SET last_activity_at = $1 WHERE id = $2`, recent, roundID); err != nil {
		t.Fatalf("Failed to set activity: %v", err)
	}

	s := New(conn, newQuietHub(), cfg.InactivityWindow)
	s.Sweep()

	var status string
	if err := conn.QueryRow(`SELECT status FROM round WHERE id = $1`, roundID).Scan(&status); err != nil {
		t.Fatalf("Failed to query round: %v", err)
	}
	if status != models.StatusOpen {
		t.Errorf("status = %q, want open", status)
	}
}
