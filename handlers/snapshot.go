// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/storypoints/roundsync/models"
)

var ErrRoundNotFound = errors.New("round not found")

// LoadSnapshot builds the authoritative round snapshot: current issue,
// the full vote list for it, and the expected-vote count. The hub sends
// it on every socket join; handlers broadcast it on issue changes.
func LoadSnapshot(db *sql.DB, roundID string) (models.RoundSnapshotPayload, error) {
	var issueJSON sql.NullString
	var issueID sql.NullString
	err := db.QueryRow(`
		SELECT current_issue, current_issue_id FROM round WHERE id = $1
	`, roundID).Scan(&issueJSON, &issueID)

	if err == sql.ErrNoRows {
		return models.RoundSnapshotPayload{}, ErrRoundNotFound
	}
	if err != nil {
		return models.RoundSnapshotPayload{}, fmt.Errorf("failed to query round: %w", err)
	}

	payload := models.RoundSnapshotPayload{Votes: []*float64{}}

	if issueJSON.Valid && issueJSON.String != "" {
		var issue models.Issue
		if err := json.Unmarshal([]byte(issueJSON.String), &issue); err != nil {
			return models.RoundSnapshotPayload{}, fmt.Errorf("failed to decode stored issue: %w", err)
		}
		payload.Issue = &issue
	}

	if issueID.Valid && issueID.String != "" {
		votes, err := loadVotes(db, roundID, issueID.String)
		if err != nil {
			return models.RoundSnapshotPayload{}, err
		}
		payload.Votes = votes
	}

	expected, err := countExpectedVotes(db, roundID)
	if err != nil {
		return models.RoundSnapshotPayload{}, err
	}
	payload.ExpectedVotes = expected

	return payload, nil
}

// loadVotes returns the vote values for an issue in submission order.
// Only values cross the wire; voter identity stays server-side.
func loadVotes(db *sql.DB, roundID, issueID string) ([]*float64, error) {
	rows, err := db.Query(`
		SELECT value FROM vote
		WHERE round_id = $1 AND issue_id = $2
		ORDER BY submitted_at, viewer_token
	`, roundID, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	votes := []*float64{}
	for rows.Next() {
		var value sql.NullFloat64
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		if value.Valid {
			v := value.Float64
			votes = append(votes, &v)
		} else {
			votes = append(votes, nil)
		}
	}

	return votes, rows.Err()
}

// countExpectedVotes counts connected participants; the server, not the
// client, owns this number.
func countExpectedVotes(db *sql.DB, roundID string) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM participant
		WHERE round_id = $1 AND connected = 1
	`, roundID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}
