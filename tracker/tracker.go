// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/storypoints/roundsync/models"
)

// ErrNotConfigured is returned when no tracker credentials were supplied.
var ErrNotConfigured = errors.New("tracker not configured")

// Client is the narrow boundary to the upstream issue tracker. Everything
// else the tracker offers (query shaping, workspaces, auth flows) is out
// of scope; these two calls are all the round server needs.
type Client interface {
	// FetchIssues returns one page of issues for a view, plus the token
	// for the next page (nil when exhausted).
	FetchIssues(ctx context.Context, viewID, pageToken string) ([]models.Issue, *string, error)

	// SubmitEstimate writes the agreed estimate back to the tracker.
	SubmitEstimate(ctx context.Context, issueID string, points float64) error
}

// HTTPClient talks to the tracker's REST facade with a bearer token.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient returns a tracker client, or nil-configured behavior when
// baseURL is empty.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *HTTPClient) FetchIssues(ctx context.Context, viewID, pageToken string) ([]models.Issue, *string, error) {
	if c.baseURL == "" {
		return nil, nil, ErrNotConfigured
	}

	u := fmt.Sprintf("%s/views/%s/issues", c.baseURL, url.PathEscape(viewID))
	if pageToken != "" {
		u += "?cursor=" + url.QueryEscape(pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build tracker request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("tracker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("tracker returned status %d", resp.StatusCode)
	}

	var page models.IssuePageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, nil, fmt.Errorf("failed to decode tracker response: %w", err)
	}

	return page.Issues, page.NextPage, nil
}

func (c *HTTPClient) SubmitEstimate(ctx context.Context, issueID string, points float64) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(map[string]float64{"estimate": points})
	if err != nil {
		return fmt.Errorf("failed to marshal estimate: %w", err)
	}

	u := fmt.Sprintf("%s/issues/%s/estimate", c.baseURL, url.PathEscape(issueID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build tracker request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tracker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("tracker returned status %d", resp.StatusCode)
	}

	return nil
}
