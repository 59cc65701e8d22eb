// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storypoints/roundsync/middleware"
	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/testutil"
)

func TestSubmitVote(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewVotingHandler(conn, cfg, newTestHub(conn))

	roundID, _, _, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusOpen)
	issue := testutil.CacheTestIssue(t, conn, "iss-1", "First issue")
	testutil.SetTestIssue(t, conn, roundID, issue)
	voterToken, _ := testutil.CreateTestVoter(t, conn, cfg, roundID, "Alice")

	finishedID, _, finishedToken, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusFinished)

	tests := []struct {
		name           string
		roundID        string
		viewerToken    string
		body           models.SubmitVoteRequest
		expectedStatus int
		wantSuccess    bool
		wantMessage    string
	}{
		{
			name:           "valid vote",
			roundID:        roundID,
			viewerToken:    voterToken,
			body:           models.SubmitVoteRequest{Vote: fp(5), IssueID: "iss-1"},
			expectedStatus: http.StatusOK,
			wantSuccess:    true,
		},
		{
			name:           "explicit abstain",
			roundID:        roundID,
			viewerToken:    voterToken,
			body:           models.SubmitVoteRequest{Vote: nil, IssueID: "iss-1"},
			expectedStatus: http.StatusOK,
			wantSuccess:    true,
		},
		{
			name:           "stale issue",
			roundID:        roundID,
			viewerToken:    voterToken,
			body:           models.SubmitVoteRequest{Vote: fp(3), IssueID: "iss-0"},
			expectedStatus: http.StatusConflict,
			wantMessage:    "Vote is for a stale issue",
		},
		{
			name:           "missing issue id",
			roundID:        roundID,
			viewerToken:    voterToken,
			body:           models.SubmitVoteRequest{Vote: fp(3)},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown participant",
			roundID:        roundID,
			viewerToken:    "not-registered",
			body:           models.SubmitVoteRequest{Vote: fp(3), IssueID: "iss-1"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "finished round",
			roundID:        finishedID,
			viewerToken:    finishedToken,
			body:           models.SubmitVoteRequest{Vote: fp(3), IssueID: "iss-1"},
			expectedStatus: http.StatusConflict,
			wantMessage:    "Round is not open for voting",
		},
		{
			name:           "round not found",
			roundID:        "nope",
			viewerToken:    voterToken,
			body:           models.SubmitVoteRequest{Vote: fp(3), IssueID: "iss-1"},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{middleware.HeaderViewerToken: tt.viewerToken}
			req := testutil.MakeRequest(http.MethodPost, "/rounds/"+tt.roundID+"/vote", tt.body, headers)
			req.SetPathValue("id", tt.roundID)
			w := httptest.NewRecorder()
			handler.SubmitVote(w, req)

			testutil.AssertStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus == http.StatusOK || tt.wantMessage != "" {
				var resp models.SubmitVoteResponse
				testutil.AssertJSON(t, w, &resp)
				if resp.Success != tt.wantSuccess {
					t.Errorf("success = %v, want %v", resp.Success, tt.wantSuccess)
				}
				if tt.wantMessage != "" && resp.Message != tt.wantMessage {
					t.Errorf("message = %q, want %q", resp.Message, tt.wantMessage)
				}
			}
		})
	}

	// The second submission replaced the first: one row, abstain value.
	var count int
	if err := conn.QueryRow(`
		SELECT COUNT(*) FROM vote WHERE round_id = $1 AND viewer_token = $2
	`, roundID, voterToken).Scan(&count); err != nil {
		t.Fatalf("Failed to count votes: %v", err)
	}
	if count != 1 {
		t.Errorf("vote rows = %d, want 1 (revote must replace)", count)
	}

	var value *float64
	if err := conn.QueryRow(`
		SELECT value FROM vote WHERE round_id = $1 AND viewer_token = $2
	`, roundID, voterToken).Scan(&value); err != nil {
		t.Fatalf("Failed to query vote: %v", err)
	}
	if value != nil {
		t.Errorf("vote value = %v, want NULL abstain", *value)
	}
}

func TestSubmitVoteRevoteReplacesValue(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewVotingHandler(conn, cfg, newTestHub(conn))

	roundID, _, driverToken, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusOpen)
	issue := testutil.CacheTestIssue(t, conn, "iss-1", "First issue")
	testutil.SetTestIssue(t, conn, roundID, issue)

	submit := func(vote *float64) {
		t.Helper()
		headers := map[string]string{middleware.HeaderViewerToken: driverToken}
		req := testutil.MakeRequest(http.MethodPost, "/rounds/"+roundID+"/vote",
			models.SubmitVoteRequest{Vote: vote, IssueID: "iss-1"}, headers)
		req.SetPathValue("id", roundID)
		w := httptest.NewRecorder()
		handler.SubmitVote(w, req)
		testutil.AssertStatus(t, w, http.StatusOK)
	}

	submit(fp(3))
	submit(fp(8))

	var value float64
	if err := conn.QueryRow(`
		SELECT value FROM vote WHERE round_id = $1 AND viewer_token = $2
	`, roundID, driverToken).Scan(&value); err != nil {
		t.Fatalf("Failed to query vote: %v", err)
	}
	if value != 8 {
		t.Errorf("vote value = %v, want 8", value)
	}
}
