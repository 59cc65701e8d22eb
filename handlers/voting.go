// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/storypoints/roundsync/cliparse"
	"github.com/storypoints/roundsync/middleware"
	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/realtime"
)

type VotingHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *realtime.Hub
}

func NewVotingHandler(db *sql.DB, cfg cliparse.Config, hub *realtime.Hub) *VotingHandler {
	return &VotingHandler{db: db, cfg: cfg, hub: hub}
}

// SubmitVote handles POST /rounds/:id/vote. Application-level failures
// (stale issue, unknown participant) come back as {success:false, message}
// with a conflict status; the vote body's issueId must match the round's
// current issue so a vote racing an issue change cannot land on the wrong
// one.
func (h *VotingHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "round id is required")
		return
	}

	// WithCSRF already verified both headers.
	viewerToken := r.Header.Get(middleware.HeaderViewerToken)

	var req models.SubmitVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.IssueID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "issueId is required")
		return
	}

	var status string
	var currentIssueID sql.NullString
	err := h.db.QueryRow(`
		SELECT status, current_issue_id FROM round WHERE id = $1
	`, roundID).Scan(&status, &currentIssueID)

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
		middleware.JSONResponse(w, http.StatusConflict, models.SubmitVoteResponse{
			Success: false,
			Message: "Round is not open for voting",
		})
		return
	}
	if !currentIssueID.Valid || currentIssueID.String != req.IssueID {
		middleware.JSONResponse(w, http.StatusConflict, models.SubmitVoteResponse{
			Success: false,
			Message: "Vote is for a stale issue",
		})
		return
	}

	// Verify the viewer is registered in this round
	var exists bool
	err = h.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM participant
			WHERE round_id = $1 AND viewer_token = $2
		)
	`, roundID, viewerToken).Scan(&exists)

	if err != nil {
		slog.Error("failed to verify participant", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if !exists {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Unknown participant for this round")
		return
	}

	// Begin transaction for UPSERT
	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	var alreadyVoted bool
	err = tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM vote
			WHERE round_id = $1 AND issue_id = $2 AND viewer_token = $3
		)
	`, roundID, req.IssueID, viewerToken).Scan(&alreadyVoted)
	if err != nil {
		slog.Error("failed to check existing vote", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if alreadyVoted {
		_, err = tx.Exec(`
			UPDATE vote SET value = $1, submitted_at = $2
			WHERE round_id = $3 AND issue_id = $4 AND viewer_token = $5
		`, req.Vote, time.Now(), roundID, req.IssueID, viewerToken)
	} else {
		_, err = tx.Exec(`
			INSERT INTO vote (round_id, issue_id, viewer_token, value, submitted_at)
			VALUES ($1, $2, $3, $4, $5)
		`, roundID, req.IssueID, viewerToken, req.Vote, time.Now())
	}
	if err != nil {
		slog.Error("failed to save vote", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save vote")
		return
	}

	_, err = tx.Exec(`UPDATE round SET last_activity_at = $1 WHERE id = $2`, time.Now(), roundID)
	if err != nil {
		slog.Error("failed to bump round activity", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save vote")
		return
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save vote")
		return
	}

	slog.Info("vote submitted", "round_id", roundID, "issue_id", req.IssueID, "is_update", alreadyVoted)

	h.broadcastVotes(roundID, req.IssueID)

	middleware.JSONResponse(w, http.StatusOK, models.SubmitVoteResponse{Success: true})
}

func (h *VotingHandler) broadcastVotes(roundID, issueID string) {
	votes, err := loadVotes(h.db, roundID, issueID)
	if err != nil {
		slog.Error("failed to load votes for broadcast", "error", err, "round_id", roundID)
		return
	}
	expected, err := countExpectedVotes(h.db, roundID)
	if err != nil {
		slog.Error("failed to count participants for broadcast", "error", err, "round_id", roundID)
		return
	}

	h.hub.BroadcastVotes(roundID, models.VoteUpdatePayload{
		IssueID:       issueID,
		Votes:         votes,
		ExpectedVotes: expected,
	})
}
