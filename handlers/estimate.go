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
	"github.com/storypoints/roundsync/stats"
	"github.com/storypoints/roundsync/tracker"
)

type EstimateHandler struct {
	db      *sql.DB
	cfg     cliparse.Config
	tracker tracker.Client
}

func NewEstimateHandler(db *sql.DB, cfg cliparse.Config, tc tracker.Client) *EstimateHandler {
	return &EstimateHandler{db: db, cfg: cfg, tracker: tc}
}

// SubmitEstimate handles POST /issues/:id/estimate (driver only): the
// write-back of the agreed estimate to the upstream tracker. The client
// rounds before sending; rounding again here is a no-op for well-behaved
// clients and a guard against hand-crafted values.
func (h *EstimateHandler) SubmitEstimate(w http.ResponseWriter, r *http.Request) {
	issueID := r.PathValue("id")
	if issueID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "issue id is required")
		return
	}

	var req models.SubmitEstimateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.RoundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "roundId is required")
		return
	}

	driverKey := r.Header.Get(middleware.HeaderDriverKey)
	if driverKey == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, middleware.HeaderDriverKey+" header required")
		return
	}
	if err := auth.ValidateDriverKey(req.RoundID, driverKey, h.cfg.DriverKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusForbidden, "Invalid driver key")
		return
	}

	estimate := stats.RoundToNearestFibonacci(req.Estimate)

	err := h.tracker.SubmitEstimate(r.Context(), issueID, estimate)
	if err == tracker.ErrNotConfigured {
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Tracker not configured")
		return
	}
	if err != nil {
		slog.Error("estimate write-back failed", "error", err, "issue_id", issueID)
		middleware.ErrorResponse(w, http.StatusBadGateway, "Tracker request failed")
		return
	}

	_, err = h.db.Exec(`UPDATE round SET last_activity_at = $1 WHERE id = $2`, time.Now(), req.RoundID)
	if err != nil {
		slog.Warn("failed to bump round activity", "error", err, "round_id", req.RoundID)
	}

	slog.Info("estimate written back", "issue_id", issueID, "estimate", estimate)

	middleware.JSONResponse(w, http.StatusOK, models.SubmitEstimateResponse{Estimate: estimate})
}
