// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/storypoints/roundsync/auth"
	"github.com/storypoints/roundsync/cliparse"
	"github.com/storypoints/roundsync/middleware"
	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/realtime"
)

type ViewerHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *realtime.Hub
}

func NewViewerHandler(db *sql.DB, cfg cliparse.Config, hub *realtime.Hub) *ViewerHandler {
	return &ViewerHandler{db: db, cfg: cfg, hub: hub}
}

// Anonymous handles POST /auth/anonymous. Repeating the call with an
// already-issued viewer token is a no-op that returns the same identity,
// which is what makes client-side presence registration idempotent.
func (h *ViewerHandler) Anonymous(w http.ResponseWriter, r *http.Request) {
	var req models.AnonymousAuthRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.RoundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "roundId is required")
		return
	}

	var status string
	err := h.db.QueryRow(`SELECT status FROM round WHERE id = $1`, req.RoundID).Scan(&status)
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
		middleware.ErrorResponse(w, http.StatusConflict, "Round is not open")
		return
	}

	// An existing viewer token re-registers instead of creating a second
	// participant.
	if existing := r.Header.Get(middleware.HeaderViewerToken); existing != "" {
		var name string
		err := h.db.QueryRow(`
			SELECT name FROM participant WHERE round_id = $1 AND viewer_token = $2
		`, req.RoundID, existing).Scan(&name)
		if err == nil {
			h.markConnected(req.RoundID, existing)
			middleware.JSONResponse(w, http.StatusOK, models.AnonymousAuthResponse{
				ViewerToken: existing,
				CSRFToken:   auth.GenerateCSRFToken(existing, h.cfg.CSRFTokenSalt),
				Name:        name,
			})
			return
		}
		if err != sql.ErrNoRows {
			slog.Error("failed to query participant", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
	}

	viewerToken, err := auth.GenerateViewerToken()
	if err != nil {
		slog.Error("failed to generate viewer token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	name := req.Name
	if name == "" {
		count, err := countExpectedVotes(h.db, req.RoundID)
		if err != nil {
			count = 0
		}
		name = fmt.Sprintf("Voter %d", count+1)
	}

	ipHash := auth.HashIP(middleware.GetClientIP(r), h.cfg.DriverKeySalt)
	_, err = h.db.Exec(`
		INSERT INTO participant (round_id, viewer_token, name, kind, connected, joined_at, ip_hash)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
	`, req.RoundID, viewerToken, name, models.KindVoter, time.Now(), ipHash)
	if err != nil {
		slog.Error("failed to insert participant", "error", err, "round_id", req.RoundID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	slog.Info("participant registered", "round_id", req.RoundID, "name", name)

	// The expected-vote count changed; let the room know.
	h.broadcastCount(req.RoundID)

	middleware.JSONResponse(w, http.StatusCreated, models.AnonymousAuthResponse{
		ViewerToken: viewerToken,
		CSRFToken:   auth.GenerateCSRFToken(viewerToken, h.cfg.CSRFTokenSalt),
		Name:        name,
	})
}

// Disconnect handles POST /auth/disconnect. The call is best-effort and
// fire-and-forget from the client (it may be issued as the page unloads),
// so it always answers 204 once the body parses.
func (h *ViewerHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req models.DisconnectRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.RoundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "roundId is required")
		return
	}

	viewerToken := r.Header.Get(middleware.HeaderViewerToken)
	if viewerToken != "" {
		h.MarkDisconnected(req.RoundID, viewerToken)
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me?roundId=. It resolves the caller to a driver or
// an anonymous voter; without a known credential it answers 401, which the
// client treats as "not yet registered".
func (h *ViewerHandler) Me(w http.ResponseWriter, r *http.Request) {
	roundID := r.URL.Query().Get("roundId")
	if roundID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "roundId is required")
		return
	}

	viewerToken := r.Header.Get(middleware.HeaderViewerToken)
	if viewerToken == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "No credential presented")
		return
	}

	var name, kind string
	err := h.db.QueryRow(`
		SELECT name, kind FROM participant WHERE round_id = $1 AND viewer_token = $2
	`, roundID, viewerToken).Scan(&name, &kind)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Unknown participant")
		return
	}
	if err != nil {
		slog.Error("failed to query participant", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	// The driver key outranks the participant record: presenting a valid
	// key makes the caller the driver regardless of the stored kind.
	if driverKey := r.Header.Get(middleware.HeaderDriverKey); driverKey != "" {
		if auth.ValidateDriverKey(roundID, driverKey, h.cfg.DriverKeySalt) == nil {
			kind = models.KindDriver
		}
	}

	middleware.JSONResponse(w, http.StatusOK, models.MeResponse{
		ViewerID: auth.HashIP(viewerToken, h.cfg.CSRFTokenSalt),
		Name:     name,
		Kind:     kind,
	})
}

// MarkDisconnected flips a participant to disconnected and rebroadcasts
// the vote state. The realtime hub calls this when a socket drops.
func (h *ViewerHandler) MarkDisconnected(roundID, viewerToken string) {
	res, err := h.db.Exec(`
		UPDATE participant SET connected = 0
		WHERE round_id = $1 AND viewer_token = $2 AND connected = 1
	`, roundID, viewerToken)
	if err != nil {
		slog.Error("failed to mark participant disconnected", "error", err, "round_id", roundID)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return
	}

	slog.Info("participant disconnected", "round_id", roundID)
	h.broadcastCount(roundID)
}

func (h *ViewerHandler) markConnected(roundID, viewerToken string) {
	res, err := h.db.Exec(`
		UPDATE participant SET connected = 1
		WHERE round_id = $1 AND viewer_token = $2 AND connected = 0
	`, roundID, viewerToken)
	if err != nil {
		slog.Error("failed to mark participant connected", "error", err, "round_id", roundID)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		h.broadcastCount(roundID)
	}
}

// broadcastCount pushes a voteUpdated event reflecting the new
// expected-vote count for the current issue.
func (h *ViewerHandler) broadcastCount(roundID string) {
	var issueID sql.NullString
	err := h.db.QueryRow(`SELECT current_issue_id FROM round WHERE id = $1`, roundID).Scan(&issueID)
	if err != nil {
		slog.Error("failed to query round for broadcast", "error", err, "round_id", roundID)
		return
	}
	if !issueID.Valid || issueID.String == "" {
		return
	}

	votes, err := loadVotes(h.db, roundID, issueID.String)
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
		IssueID:       issueID.String,
		Votes:         votes,
		ExpectedVotes: expected,
	})
}
