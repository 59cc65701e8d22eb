// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storypoints/roundsync/auth"
	"github.com/storypoints/roundsync/middleware"
	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/realtime"
	"github.com/storypoints/roundsync/testutil"
)

func newTestHub(conn *sql.DB) *realtime.Hub {
	return realtime.NewHub(nil, func(roundID string) (models.RoundSnapshotPayload, error) {
		return LoadSnapshot(conn, roundID)
	}, nil)
}

func fp(v float64) *float64 {
	return &v
}

func TestCreateRound(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewRoundHandler(conn, cfg, newTestHub(conn))

	req := testutil.MakeRequest(http.MethodPost, "/rounds", models.CreateRoundRequest{}, nil)
	w := httptest.NewRecorder()
	handler.CreateRound(w, req)

	testutil.AssertStatus(t, w, http.StatusCreated)

	var resp models.CreateRoundResponse
	testutil.AssertJSON(t, w, &resp)

	if resp.RoundID == "" {
		t.Fatal("Expected non-empty round_id")
	}
	if err := auth.ValidateDriverKey(resp.RoundID, resp.DriverKey, cfg.DriverKeySalt); err != nil {
		t.Errorf("Returned driver key does not validate: %v", err)
	}
	if resp.ViewerToken == "" {
		t.Error("Expected non-empty viewer_token")
	}
	if err := auth.ValidateCSRFToken(resp.ViewerToken, resp.CSRFToken, cfg.CSRFTokenSalt); err != nil {
		t.Errorf("Returned CSRF token does not validate: %v", err)
	}

	// The round opens immediately with the driver as its first
	// participant.
	var status string
	if err := conn.QueryRow(`SELECT status FROM round WHERE id = $1`, resp.RoundID).Scan(&status); err != nil {
		t.Fatalf("Failed to query round: %v", err)
	}
	if status != models.StatusOpen {
		t.Errorf("Round status = %q, want open", status)
	}

	var kind string
	err := conn.QueryRow(`
		SELECT kind FROM participant WHERE round_id = $1 AND viewer_token = $2
	`, resp.RoundID, resp.ViewerToken).Scan(&kind)
	if err != nil {
		t.Fatalf("Failed to query driver participant: %v", err)
	}
	if kind != models.KindDriver {
		t.Errorf("Participant kind = %q, want driver", kind)
	}
}

func TestGetRound(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewRoundHandler(conn, cfg, newTestHub(conn))

	roundID, _, driverToken, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusOpen)
	issue := testutil.CacheTestIssue(t, conn, "iss-1", "First issue")
	testutil.SetTestIssue(t, conn, roundID, issue)
	voterToken, _ := testutil.CreateTestVoter(t, conn, cfg, roundID, "Alice")
	testutil.SubmitTestVote(t, conn, roundID, "iss-1", driverToken, fp(5))
	testutil.SubmitTestVote(t, conn, roundID, "iss-1", voterToken, nil)

	req := testutil.MakeRequest(http.MethodGet, "/rounds/"+roundID, nil, nil)
	req.SetPathValue("id", roundID)
	w := httptest.NewRecorder()
	handler.GetRound(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)

	var snapshot models.RoundSnapshotPayload
	testutil.AssertJSON(t, w, &snapshot)

	if snapshot.Issue == nil || snapshot.Issue.ID != "iss-1" {
		t.Errorf("Issue = %v, want iss-1", snapshot.Issue)
	}
	if len(snapshot.Votes) != 2 {
		t.Fatalf("len(Votes) = %d, want 2", len(snapshot.Votes))
	}
	if snapshot.Votes[0] == nil || *snapshot.Votes[0] != 5 {
		t.Errorf("Votes[0] = %v, want 5", snapshot.Votes[0])
	}
	if snapshot.Votes[1] != nil {
		t.Errorf("Votes[1] = %v, want abstain", *snapshot.Votes[1])
	}
	if snapshot.ExpectedVotes != 2 {
		t.Errorf("ExpectedVotes = %d, want 2", snapshot.ExpectedVotes)
	}
}

func TestGetRoundNotFound(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewRoundHandler(conn, cfg, newTestHub(conn))

	req := testutil.MakeRequest(http.MethodGet, "/rounds/nope", nil, nil)
	req.SetPathValue("id", "nope")
	w := httptest.NewRecorder()
	handler.GetRound(w, req)

	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestSetIssue(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewRoundHandler(conn, cfg, newTestHub(conn))

	roundID, driverKey, driverToken, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusOpen)
	first := testutil.CacheTestIssue(t, conn, "iss-1", "First issue")
	testutil.CacheTestIssue(t, conn, "iss-2", "Second issue")
	testutil.SetTestIssue(t, conn, roundID, first)
	testutil.SubmitTestVote(t, conn, roundID, "iss-1", driverToken, fp(3))

	finishedID, finishedKey, _, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusFinished)

	tests := []struct {
		name           string
		roundID        string
		driverKey      string
		body           interface{}
		expectedStatus int
	}{
		{
			name:           "missing driver key",
			roundID:        roundID,
			body:           models.SetIssueRequest{Issue: "iss-2"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid driver key",
			roundID:        roundID,
			driverKey:      "bogus",
			body:           models.SetIssueRequest{Issue: "iss-2"},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "missing issue",
			roundID:        roundID,
			driverKey:      driverKey,
			body:           models.SetIssueRequest{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown issue",
			roundID:        roundID,
			driverKey:      driverKey,
			body:           models.SetIssueRequest{Issue: "never-served"},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "finished round",
			roundID:        finishedID,
			driverKey:      finishedKey,
			body:           models.SetIssueRequest{Issue: "iss-2"},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "valid change",
			roundID:        roundID,
			driverKey:      driverKey,
			body:           models.SetIssueRequest{Issue: "iss-2"},
			expectedStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.driverKey != "" {
				headers[middleware.HeaderDriverKey] = tt.driverKey
			}
			req := testutil.MakeRequest(http.MethodPost, "/rounds/"+tt.roundID+"/issue", tt.body, headers)
			req.SetPathValue("id", tt.roundID)
			w := httptest.NewRecorder()
			handler.SetIssue(w, req)

			testutil.AssertStatus(t, w, tt.expectedStatus)
		})
	}

	// The successful change replaced the issue and cleared every vote.
	var currentIssueID string
	if err := conn.QueryRow(`SELECT current_issue_id FROM round WHERE id = $1`, roundID).Scan(&currentIssueID); err != nil {
		t.Fatalf("Failed to query round: %v", err)
	}
	if currentIssueID != "iss-2" {
		t.Errorf("current_issue_id = %q, want iss-2", currentIssueID)
	}

	var voteCount int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM vote WHERE round_id = $1`, roundID).Scan(&voteCount); err != nil {
		t.Fatalf("Failed to count votes: %v", err)
	}
	if voteCount != 0 {
		t.Errorf("vote count = %d, want 0 after issue change", voteCount)
	}
}
