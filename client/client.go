// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/storypoints/roundsync/middleware"
	"github.com/storypoints/roundsync/models"
)

// Every request gets a bounded deadline so a hung call can never leave a
// guard flag stuck forever.
const (
	requestTimeout    = 10 * time.Second
	disconnectTimeout = 3 * time.Second
)

var (
	// ErrMissingCSRFToken short-circuits state-changing calls before any
	// network traffic when no CSRF token has been issued yet.
	ErrMissingCSRFToken = errors.New("csrf token not available")

	// ErrMissingDriverKey guards driver-only calls the same way.
	ErrMissingDriverKey = errors.New("driver key not available")
)

// APIError is a non-2xx response decoded from the server's error shape.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// Client is the typed HTTP client for the round API. Credentials may be
// set after construction (they arrive with registration); access is
// mutex-guarded since the channel teardown path reads them from another
// goroutine.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.RWMutex
	viewerToken string
	csrfToken   string
	driverKey   string
}

// New creates a client for the given server base URL (no trailing slash).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// SetCredentials installs the viewer and CSRF tokens issued at
// registration.
func (c *Client) SetCredentials(viewerToken, csrfToken string) {
	c.mu.Lock()
	c.viewerToken = viewerToken
	c.csrfToken = csrfToken
	c.mu.Unlock()
}

// SetDriverKey installs the driver key for driver-only calls.
func (c *Client) SetDriverKey(key string) {
	c.mu.Lock()
	c.driverKey = key
	c.mu.Unlock()
}

// Credentials returns the installed viewer and CSRF tokens.
func (c *Client) Credentials() (viewerToken, csrfToken string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewerToken, c.csrfToken
}

// ViewerToken returns the current viewer token, empty when unregistered.
func (c *Client) ViewerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewerToken
}

// HasCSRFToken reports whether state-changing calls can proceed.
func (c *Client) HasCSRFToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.csrfToken != ""
}

// IsDriver reports whether a driver key is installed.
func (c *Client) IsDriver() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.driverKey != ""
}

// CreateRound starts a new round; the response carries the driver key and
// the driver's own participant credentials.
func (c *Client) CreateRound(ctx context.Context) (models.CreateRoundResponse, error) {
	var resp models.CreateRoundResponse
	if err := c.do(ctx, http.MethodPost, "/rounds", models.CreateRoundRequest{}, &resp, nil); err != nil {
		return models.CreateRoundResponse{}, err
	}
	return resp, nil
}

// Me resolves the caller's identity within a round.
func (c *Client) Me(ctx context.Context, roundID string) (models.MeResponse, error) {
	var resp models.MeResponse
	path := "/auth/me?roundId=" + url.QueryEscape(roundID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, nil); err != nil {
		return models.MeResponse{}, err
	}
	return resp, nil
}

// JoinAnonymous registers the caller as an anonymous voter in the round.
func (c *Client) JoinAnonymous(ctx context.Context, roundID, name string) (models.AnonymousAuthResponse, error) {
	var resp models.AnonymousAuthResponse
	req := models.AnonymousAuthRequest{RoundID: roundID, Name: name}
	if err := c.do(ctx, http.MethodPost, "/auth/anonymous", req, &resp, nil); err != nil {
		return models.AnonymousAuthResponse{}, err
	}
	return resp, nil
}

// Disconnect notifies the server that this participant is leaving. It is
// fire-and-forget: it runs on its own detached context so it can be
// issued during teardown, and failures are only logged.
func (c *Client) Disconnect(roundID string) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	req := models.DisconnectRequest{RoundID: roundID}
	if err := c.do(ctx, http.MethodPost, "/auth/disconnect", req, nil, nil); err != nil {
		slog.Warn("disconnect notification failed", "error", err, "round_id", roundID)
	}
}

// SubmitVote submits one estimate (nil = abstain) for the given issue.
// A {success:false} body inside any response is an error to the caller,
// matching the server's application-level failure shape.
func (c *Client) SubmitVote(ctx context.Context, roundID, issueID string, value *float64) error {
	if !c.HasCSRFToken() {
		return ErrMissingCSRFToken
	}

	var resp models.SubmitVoteResponse
	req := models.SubmitVoteRequest{Vote: value, IssueID: issueID}
	err := c.do(ctx, http.MethodPost, "/rounds/"+url.PathEscape(roundID)+"/vote", req, &resp, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && resp.Message != "" {
			return fmt.Errorf("vote rejected: %s", resp.Message)
		}
		return err
	}
	if !resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("vote rejected: %s", resp.Message)
		}
		return errors.New("vote rejected")
	}
	return nil
}

// SetCurrentIssue asks the server to make issueID the round's current
// issue (driver only).
func (c *Client) SetCurrentIssue(ctx context.Context, roundID, issueID string) error {
	c.mu.RLock()
	key := c.driverKey
	c.mu.RUnlock()
	if key == "" {
		return ErrMissingDriverKey
	}

	req := models.SetIssueRequest{Issue: issueID}
	return c.do(ctx, http.MethodPost, "/rounds/"+url.PathEscape(roundID)+"/issue", req, nil, nil)
}

// FetchIssues loads one page of issues for a view.
func (c *Client) FetchIssues(ctx context.Context, viewID, pageToken string) (models.IssuePageResponse, error) {
	path := "/views/" + url.PathEscape(viewID) + "/issues"
	if pageToken != "" {
		path += "?nextPage=" + url.QueryEscape(pageToken)
	}

	var resp models.IssuePageResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, nil); err != nil {
		return models.IssuePageResponse{}, err
	}
	return resp, nil
}

// SubmitEstimate writes the agreed estimate back to the tracker via the
// server (driver only). Returns the value the server recorded.
func (c *Client) SubmitEstimate(ctx context.Context, roundID, issueID string, value float64) (float64, error) {
	c.mu.RLock()
	key := c.driverKey
	csrf := c.csrfToken
	c.mu.RUnlock()
	if key == "" {
		return 0, ErrMissingDriverKey
	}
	if csrf == "" {
		return 0, ErrMissingCSRFToken
	}

	var resp models.SubmitEstimateResponse
	req := models.SubmitEstimateRequest{Estimate: value, RoundID: roundID}
	if err := c.do(ctx, http.MethodPost, "/issues/"+url.PathEscape(issueID)+"/estimate", req, &resp, nil); err != nil {
		return 0, err
	}
	return resp.Estimate, nil
}

// do performs one request. errBody, when non-nil, additionally receives
// the decoded body of a non-2xx response so callers can surface
// application messages.
func (c *Client) do(ctx context.Context, method, path string, body, out, errBody interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	if c.viewerToken != "" {
		req.Header.Set(middleware.HeaderViewerToken, c.viewerToken)
	}
	if c.csrfToken != "" {
		req.Header.Set(middleware.HeaderCSRFToken, c.csrfToken)
	}
	if c.driverKey != "" {
		req.Header.Set(middleware.HeaderDriverKey, c.driverKey)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if errBody != nil {
			_ = json.Unmarshal(raw, errBody)
		}
		var errResp models.ErrorResponse
		_ = json.Unmarshal(raw, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Message}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
