// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storypoints/roundsync/models"
)

func TestFetchIssues(t *testing.T) {
	next := "cursor-2"
	var gotAuth, gotCursor string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCursor = r.URL.Query().Get("cursor")
		if r.URL.Path != "/views/view-1/issues" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.IssuePageResponse{
			Issues:   []models.Issue{{ID: "iss-1", Title: "First"}},
			NextPage: &next,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret-token")
	issues, nextPage, err := c.FetchIssues(context.Background(), "view-1", "cursor-1")
	if err != nil {
		t.Fatalf("FetchIssues() error = %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotCursor != "cursor-1" {
		t.Errorf("cursor = %q, want cursor-1", gotCursor)
	}
	if len(issues) != 1 || issues[0].ID != "iss-1" {
		t.Errorf("issues = %v", issues)
	}
	if nextPage == nil || *nextPage != "cursor-2" {
		t.Errorf("nextPage = %v, want cursor-2", nextPage)
	}
}

func TestFetchIssuesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok")
	if _, _, err := c.FetchIssues(context.Background(), "view-1", ""); err == nil {
		t.Fatal("FetchIssues() succeeded despite upstream 502")
	}
}

func TestSubmitEstimate(t *testing.T) {
	var gotBody map[string]float64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/issues/iss-1/estimate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok")
	if err := c.SubmitEstimate(context.Background(), "iss-1", 8); err != nil {
		t.Fatalf("SubmitEstimate() error = %v", err)
	}
	if gotBody["estimate"] != 8 {
		t.Errorf("body = %v, want estimate 8", gotBody)
	}
}

func TestNotConfigured(t *testing.T) {
	c := NewHTTPClient("", "")

	if _, _, err := c.FetchIssues(context.Background(), "view-1", ""); err != ErrNotConfigured {
		t.Errorf("FetchIssues() error = %v, want ErrNotConfigured", err)
	}
	if err := c.SubmitEstimate(context.Background(), "iss-1", 5); err != ErrNotConfigured {
		t.Errorf("SubmitEstimate() error = %v, want ErrNotConfigured", err)
	}
}
