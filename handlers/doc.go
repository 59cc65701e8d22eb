// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the RoundSync API.

# Handler Types

Each handler is a struct with database, config, and collaborator
dependencies:

  - RoundHandler: round creation, snapshot retrieval, current-issue change
  - VotingHandler: vote submission with snapshot broadcast
  - ViewerHandler: anonymous registration, disconnect, identity lookup
  - ViewsHandler: tracker issue listing proxy with pagination
  - EstimateHandler: estimate write-back to the tracker

Handlers are created via constructor functions:

	roundHandler := handlers.NewRoundHandler(db, cfg, hub)

# Round Flow

	POST /rounds                → CreateRound (driver key + viewer/CSRF tokens)
	POST /rounds/{id}/issue     → SetIssue (driver; clears votes, broadcasts)
	POST /rounds/{id}/vote      → SubmitVote (participant, CSRF-guarded)
	GET  /rounds/{id}           → GetRound (same payload shape the socket pushes)

# Presence Flow

	POST /auth/anonymous  → Anonymous (viewer_token + csrf_token)
	POST /auth/disconnect → Disconnect (best-effort, always 204)
	GET  /auth/me         → Me (driver vs anonymous resolution)

Driver operations require the X-Driver-Key header; participant writes
require X-Viewer-Token plus X-CSRF-Token.

# Broadcasts

State-changing handlers reload the authoritative snapshot and push it
through the realtime hub, so every connected participant converges on the
same {issue, votes, expectedVotes} regardless of who acted.
*/
package handlers
