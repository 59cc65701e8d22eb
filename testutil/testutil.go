// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/storypoints/roundsync/auth"
	"github.com/storypoints/roundsync/cliparse"
	"github.com/storypoints/roundsync/db"
	"github.com/storypoints/roundsync/models"
)

// SetupTestDB creates a fresh sqlite database with the full schema in a
// per-test temp directory
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// sqlite tolerates one writer at a time
	conn.SetMaxOpenConns(1)

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:             3320,
		DatabaseType:     "sqlite",
		DriverKeySalt:    "test-driver-salt",
		CSRFTokenSalt:    "test-csrf-salt",
		InactivityWindow: 30 * time.Minute,
	}
}

// CreateTestRound creates a round with a driver participant and returns
// the ids and credentials. status should be "open" or "finished"
func CreateTestRound(t *testing.T, conn *sql.DB, cfg cliparse.Config, status string) (roundID, driverKey, viewerToken, csrfToken string) {
	t.Helper()

	roundID, _ = auth.GenerateID(16)
	driverKey = auth.GenerateDriverKey(roundID, cfg.DriverKeySalt)
	viewerToken, _ = auth.GenerateViewerToken()
	csrfToken = auth.GenerateCSRFToken(viewerToken, cfg.CSRFTokenSalt)

	now := time.Now()
	var finishedAt *time.Time
	if status == models.StatusFinished {
		finishedAt = &now
	}

	_, err := conn.Exec(`
		INSERT INTO round (id, status, created_at, last_activity_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
	`, roundID, status, now, now, finishedAt)
	if err != nil {
		t.Fatalf("Failed to create test round: %v", err)
	}

	_, err = conn.Exec(`
		INSERT INTO participant (round_id, viewer_token, name, kind, connected, joined_at)
		VALUES ($1, $2, 'Driver', $3, 1, $4)
	`, roundID, viewerToken, models.KindDriver, now)
	if err != nil {
		t.Fatalf("Failed to create driver participant: %v", err)
	}

	return roundID, driverKey, viewerToken, csrfToken
}

// CreateTestVoter registers a connected voter and returns its credentials
func CreateTestVoter(t *testing.T, conn *sql.DB, cfg cliparse.Config, roundID, name string) (viewerToken, csrfToken string) {
	t.Helper()

	viewerToken, _ = auth.GenerateViewerToken()
	csrfToken = auth.GenerateCSRFToken(viewerToken, cfg.CSRFTokenSalt)

	_, err := conn.Exec(`
		INSERT INTO participant (round_id, viewer_token, name, kind, connected, joined_at)
		VALUES ($1, $2, $3, $4, 1, $5)
	`, roundID, viewerToken, name, models.KindVoter, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test voter: %v", err)
	}

	return viewerToken, csrfToken
}

// CacheTestIssue stores an issue snapshot so the set-issue endpoint can
// resolve it, and returns the issue
func CacheTestIssue(t *testing.T, conn *sql.DB, id, title string) models.Issue {
	t.Helper()

	issue := models.Issue{ID: id, Title: title, CreatedAt: time.Now().UTC()}
	payload, err := json.Marshal(issue)
	if err != nil {
		t.Fatalf("Failed to marshal test issue: %v", err)
	}

	_, err = conn.Exec(`
		INSERT INTO issue_snapshot (id, payload, cached_at)
		VALUES ($1, $2, $3)
	`, id, string(payload), time.Now())
	if err != nil {
		t.Fatalf("Failed to cache test issue: %v", err)
	}

	return issue
}

// SetTestIssue makes an issue the round's current issue directly in the
// database
func SetTestIssue(t *testing.T, conn *sql.DB, roundID string, issue models.Issue) {
	t.Helper()

	payload, err := json.Marshal(issue)
	if err != nil {
		t.Fatalf("Failed to marshal test issue: %v", err)
	}

	_, err = conn.Exec(`
		UPDATE round SET current_issue = $1, current_issue_id = $2 WHERE id = $3
	`, string(payload), issue.ID, roundID)
	if err != nil {
		t.Fatalf("Failed to set test issue: %v", err)
	}
}

// SubmitTestVote writes a vote row directly. value nil records an abstain
func SubmitTestVote(t *testing.T, conn *sql.DB, roundID, issueID, viewerToken string, value *float64) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO vote (round_id, issue_id, viewer_token, value, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, roundID, issueID, viewerToken, value, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test vote: %v", err)
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
