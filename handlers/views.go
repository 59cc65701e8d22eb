// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/storypoints/roundsync/cliparse"
	"github.com/storypoints/roundsync/middleware"
	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/tracker"
)

type ViewsHandler struct {
	db      *sql.DB
	cfg     cliparse.Config
	tracker tracker.Client
}

func NewViewsHandler(db *sql.DB, cfg cliparse.Config, tc tracker.Client) *ViewsHandler {
	return &ViewsHandler{db: db, cfg: cfg, tracker: tc}
}

// GetIssues handles GET /views/:id/issues[?nextPage=token]. Pages come
// straight from the tracker; each served issue is cached so the set-issue
// endpoint can later resolve it by id alone.
func (h *ViewsHandler) GetIssues(w http.ResponseWriter, r *http.Request) {
	viewID := r.PathValue("id")
	if viewID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "view id is required")
		return
	}
	pageToken := r.URL.Query().Get("nextPage")

	issues, nextPage, err := h.tracker.FetchIssues(r.Context(), viewID, pageToken)
	if err == tracker.ErrNotConfigured {
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Tracker not configured")
		return
	}
	if err != nil {
		slog.Error("failed to fetch issues", "error", err, "view_id", viewID)
		middleware.ErrorResponse(w, http.StatusBadGateway, "Tracker request failed")
		return
	}

	h.cacheIssues(issues)

	middleware.JSONResponse(w, http.StatusOK, models.IssuePageResponse{
		Issues:   issues,
		NextPage: nextPage,
	})
}

func (h *ViewsHandler) cacheIssues(issues []models.Issue) {
	now := time.Now()
	for _, issue := range issues {
		payload, err := json.Marshal(issue)
		if err != nil {
			slog.Error("failed to marshal issue for cache", "error", err, "issue_id", issue.ID)
			continue
		}

		// Portable upsert: update first, insert when nothing matched.
		res, err := h.db.Exec(`
			UPDATE issue_snapshot SET payload = $1, cached_at = $2 WHERE id = $3
		`, string(payload), now, issue.ID)
		if err != nil {
			slog.Warn("failed to refresh issue snapshot", "error", err, "issue_id", issue.ID)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			continue
		}
		_, err = h.db.Exec(`
			INSERT INTO issue_snapshot (id, payload, cached_at)
			VALUES ($1, $2, $3)
		`, issue.ID, string(payload), now)
		if err != nil {
			slog.Warn("failed to cache issue snapshot", "error", err, "issue_id", issue.ID)
		}
	}
}
