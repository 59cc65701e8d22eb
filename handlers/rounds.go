// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/storypoints/roundsync/auth"
	"github.com/storypoints/roundsync/cliparse"
	"github.com/storypoints/roundsync/middleware"
	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/realtime"
)

type RoundHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *realtime.Hub
}

func NewRoundHandler(db *sql.DB, cfg cliparse.Config, hub *realtime.Hub) *RoundHandler {
	return &RoundHandler{db: db, cfg: cfg, hub: hub}
}

// CreateRound handles POST /rounds
func (h *RoundHandler) CreateRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := auth.GenerateID(16)
	if err != nil {
		slog.Error("failed to generate round id", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create round")
		return
	}
	driverKey := auth.GenerateDriverKey(roundID, h.cfg.DriverKeySalt)

	viewerToken, err := auth.GenerateViewerToken()
	if err != nil {
		slog.Error("failed to generate viewer token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create round")
		return
	}

	now := time.Now()
	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO round (id, status, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4)
	`, roundID, models.StatusOpen, now, now)
	if err != nil {
		slog.Error("failed to insert round", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create round")
		return
	}

	// The driver votes like everyone else, so it registers as a
	// participant immediately.
	ipHash := auth.HashIP(middleware.GetClientIP(r), h.cfg.DriverKeySalt)
	_, err = tx.Exec(`
		INSERT INTO participant (round_id, viewer_token, name, kind, connected, joined_at, ip_hash)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
	`, roundID, viewerToken, "Driver", models.KindDriver, now, ipHash)
	if err != nil {
		slog.Error("failed to insert driver participant", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create round")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create round")
		return
	}

	slog.Info("round created", "round_id", roundID)

	middleware.JSONResponse(w, http.StatusCreated, models.CreateRoundResponse{
		RoundID:     roundID,
		DriverKey:   driverKey,
		ViewerToken: viewerToken,
		CSRFToken:   auth.GenerateCSRFToken(viewerToken, h.cfg.CSRFTokenSalt),
	})
}

// GetRound handles GET /rounds/:id, returning the same payload shape the
// websocket pushes.
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "round id is required")
		return
	}

	snapshot, err := LoadSnapshot(h.db, roundID)
	if err == ErrRoundNotFound {
		middleware.ErrorResponse(w, http.StatusNotFound, "Round not found")
		return
	}
	if err != nil {
		slog.Error("failed to load snapshot", "error", err, "round_id", roundID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, snapshot)
}

// SetIssue handles POST /rounds/:id/issue (driver only). Replacing the
// current issue clears the round's votes; the new state is broadcast as a
// single roundIssueUpdated event so every participant resets atomically.
func (h *RoundHandler) SetIssue(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "round id is required")
		return
	}

	driverKey := r.Header.Get(middleware.HeaderDriverKey)
	if driverKey == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, middleware.HeaderDriverKey+" header required")
		return
	}
	if err := auth.ValidateDriverKey(roundID, driverKey, h.cfg.DriverKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusForbidden, "Invalid driver key")
		return
	}

	var req models.SetIssueRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Issue == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "issue is required")
		return
	}

	var status string
	err := h.db.QueryRow(`SELECT status FROM round WHERE id = $1`, roundID).Scan(&status)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Round not found")
		return
	}
	if err != nil {
		slog.Error("failed to query round", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if status != models.StatusOpen {
		middleware.ErrorResponse(w, http.StatusConflict, "Round is finished")
		return
	}

	// Resolve the issue id against the snapshots cached by the views
	// proxy; the tracker itself is never consulted here.
	var issueJSON string
	err = h.db.QueryRow(`SELECT payload FROM issue_snapshot WHERE id = $1`, req.Issue).Scan(&issueJSON)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Unknown issue")
		return
	}
	if err != nil {
		slog.Error("failed to query issue snapshot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE round SET current_issue = $1, current_issue_id = $2, last_activity_at = $3
		WHERE id = $4
	`, issueJSON, req.Issue, time.Now(), roundID)
	if err != nil {
		slog.Error("failed to update round issue", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to set issue")
		return
	}

	// A new issue invalidates every prior vote in the round.
	_, err = tx.Exec(`DELETE FROM vote WHERE round_id = $1`, roundID)
	if err != nil {
		slog.Error("failed to clear votes", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to set issue")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to set issue")
		return
	}

	slog.Info("current issue changed", "round_id", roundID, "issue_id", req.Issue)

	snapshot, err := LoadSnapshot(h.db, roundID)
	if err != nil {
		slog.Error("failed to load snapshot after issue change", "error", err, "round_id", roundID)
	} else {
		h.hub.BroadcastSnapshot(roundID, snapshot)
	}

	w.WriteHeader(http.StatusNoContent)
}
