// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/storypoints/roundsync/cliparse"
	"github.com/storypoints/roundsync/handlers"
	"github.com/storypoints/roundsync/middleware"
	"github.com/storypoints/roundsync/realtime"
	"github.com/storypoints/roundsync/tracker"
)

func NewRouter(db *sql.DB, cfg cliparse.Config, hub *realtime.Hub, tc tracker.Client) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	roundHandler := handlers.NewRoundHandler(db, cfg, hub)
	votingHandler := handlers.NewVotingHandler(db, cfg, hub)
	viewerHandler := handlers.NewViewerHandler(db, cfg, hub)
	viewsHandler := handlers.NewViewsHandler(db, cfg, tc)
	estimateHandler := handlers.NewEstimateHandler(db, cfg, tc)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Round management
	mux.HandleFunc("POST /rounds", middleware.WithLogging(roundHandler.CreateRound))
	mux.HandleFunc("GET /rounds/{id}", middleware.WithLogging(roundHandler.GetRound))
	mux.HandleFunc("POST /rounds/{id}/issue", middleware.WithLogging(roundHandler.SetIssue))

	// Voting (CSRF-guarded participant write)
	mux.HandleFunc("POST /rounds/{id}/vote", middleware.WithLogging(middleware.WithCSRF(cfg.CSRFTokenSalt, votingHandler.SubmitVote)))

	// Presence
	mux.HandleFunc("POST /auth/anonymous", middleware.WithLogging(viewerHandler.Anonymous))
	mux.HandleFunc("POST /auth/disconnect", middleware.WithLogging(viewerHandler.Disconnect))
	mux.HandleFunc("GET /auth/me", middleware.WithLogging(viewerHandler.Me))

	// Tracker proxying
	mux.HandleFunc("GET /views/{id}/issues", middleware.WithLogging(viewsHandler.GetIssues))
	mux.HandleFunc("POST /issues/{id}/estimate", middleware.WithLogging(middleware.WithCSRF(cfg.CSRFTokenSalt, estimateHandler.SubmitEstimate)))

	// Round event stream
	mux.HandleFunc("GET /ws", hub.ServeWS)

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("roundsync API v1"))
	})

	return mux
}
