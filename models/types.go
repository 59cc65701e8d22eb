// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"encoding/json"
	"time"
)

// Round status constants
const (
	StatusOpen     = "open"
	StatusFinished = "finished"
)

// Participant kind constants
const (
	KindDriver = "driver"
	KindVoter  = "voter"
)

// Channel event tags. Every frame pushed over the round websocket is an
// Envelope whose Event field carries one of these.
const (
	EventResponse          = "response"
	EventRoundIssueUpdated = "roundIssueUpdated"
	EventVoteUpdated       = "voteUpdated"
	EventError             = "error"
)

// Request types

type CreateRoundRequest struct {
	TeamID string `json:"team_id,omitempty"`
}

// Issue carries the issue id; the server resolves it against the issues
// it has already served for the round's views.
type SetIssueRequest struct {
	Issue string `json:"issue"`
}

// Vote is nil for an explicit abstain.
type SubmitVoteRequest struct {
	Vote    *float64 `json:"vote"`
	IssueID string   `json:"issueId"`
}

type AnonymousAuthRequest struct {
	RoundID string `json:"roundId"`
	Name    string `json:"name,omitempty"`
}

type DisconnectRequest struct {
	RoundID string `json:"roundId"`
}

type SubmitEstimateRequest struct {
	Estimate float64 `json:"estimate"`
	RoundID  string  `json:"roundId"`
}

// Response types

// The driver is a participant too: it gets its own viewer/CSRF tokens in
// addition to the driver key gating navigation and write-back.
type CreateRoundResponse struct {
	RoundID     string `json:"round_id"`
	DriverKey   string `json:"driver_key"`
	ViewerToken string `json:"viewer_token"`
	CSRFToken   string `json:"csrf_token"`
}

type SubmitVoteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type AnonymousAuthResponse struct {
	ViewerToken string `json:"viewer_token"`
	CSRFToken   string `json:"csrf_token"`
	Name        string `json:"name"`
}

type MeResponse struct {
	ViewerID string `json:"viewer_id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

type IssuePageResponse struct {
	Issues   []Issue `json:"issues"`
	NextPage *string `json:"nextPage"`
}

type SubmitEstimateResponse struct {
	Estimate float64 `json:"estimate"`
}

// Domain types

type Round struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	CurrentIssue   *Issue     `json:"current_issue,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Issue is immutable once received; a new issue is always a wholesale
// replacement, never a partial patch.
type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	Creator     string    `json:"creator,omitempty"`
	Team        string    `json:"team,omitempty"`
	State       string    `json:"state,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Comments    []Comment `json:"comments,omitempty"`
}

type Comment struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type Participant struct {
	RoundID     string    `json:"round_id"`
	ViewerToken string    `json:"-"` // Never expose in JSON
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Connected   bool      `json:"connected"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Channel wire types

// Envelope is the outer shape of every websocket frame. Payload stays raw
// until the event tag has been inspected.
type Envelope struct {
	Event   string          `json:"event"`
	Type    string          `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoundSnapshotPayload is carried by both "response" and
// "roundIssueUpdated" events. Votes and ExpectedVotes are full snapshots,
// never deltas, so applying the same payload twice is a no-op.
type RoundSnapshotPayload struct {
	Issue         *Issue     `json:"issue"`
	Votes         []*float64 `json:"votes"`
	ExpectedVotes int        `json:"expectedVotes"`
}

// VoteUpdatePayload is carried by "voteUpdated" events. The current issue
// is deliberately absent: vote updates never change it.
type VoteUpdatePayload struct {
	IssueID       string     `json:"issueId"`
	Votes         []*float64 `json:"votes"`
	ExpectedVotes int        `json:"expectedVotes"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
