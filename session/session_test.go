// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/storypoints/roundsync/client"
	"github.com/storypoints/roundsync/models"
)

// fakeServer counts identity lookups and registrations and controls
// whether /auth/me recognizes the caller.
type fakeServer struct {
	*httptest.Server
	recognize  bool
	meCalls    atomic.Int32
	joinCalls  atomic.Int32
	meFailWith int
}

func newFakeServer(t *testing.T, recognize bool) *fakeServer {
	t.Helper()
	s := &fakeServer{recognize: recognize}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		s.meCalls.Add(1)
		if s.meFailWith != 0 {
			w.WriteHeader(s.meFailWith)
			json.NewEncoder(w).Encode(models.ErrorResponse{Error: "nope"})
			return
		}
		if !s.recognize {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(models.ErrorResponse{Error: "unauthorized"})
			return
		}
		json.NewEncoder(w).Encode(models.MeResponse{
			ViewerID: "viewer-1", Name: "Voter 1", Kind: models.KindVoter,
		})
	})
	mux.HandleFunc("POST /auth/anonymous", func(w http.ResponseWriter, r *http.Request) {
		s.joinCalls.Add(1)
		json.NewEncoder(w).Encode(models.AnonymousAuthResponse{
			ViewerToken: "new-viewer-token",
			CSRFToken:   "new-csrf-token",
			Name:        "Voter 2",
		})
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

func TestResolveRegistersAnonymously(t *testing.T) {
	srv := newFakeServer(t, false)
	api := client.New(srv.URL)
	r := NewResolver(api)

	id, err := r.Resolve(context.Background(), "round-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id.Kind != models.KindVoter {
		t.Errorf("Kind = %q, want voter", id.Kind)
	}
	if id.Name != "Voter 2" {
		t.Errorf("Name = %q, want Voter 2", id.Name)
	}

	// No credential was held, so /auth/me must not have been consulted.
	if got := srv.meCalls.Load(); got != 0 {
		t.Errorf("me calls = %d, want 0", got)
	}
	if api.ViewerToken() != "new-viewer-token" {
		t.Errorf("ViewerToken = %q, want issued token", api.ViewerToken())
	}
	if !api.HasCSRFToken() {
		t.Error("CSRF token not installed after registration")
	}
}

func TestResolveKeepsRecognizedIdentity(t *testing.T) {
	srv := newFakeServer(t, true)
	api := client.New(srv.URL)
	api.SetCredentials("old-viewer-token", "old-csrf-token")
	r := NewResolver(api)

	id, err := r.Resolve(context.Background(), "round-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id.Name != "Voter 1" {
		t.Errorf("Name = %q, want Voter 1", id.Name)
	}

	if got := srv.joinCalls.Load(); got != 0 {
		t.Errorf("join calls = %d, want 0 for recognized credential", got)
	}
	if api.ViewerToken() != "old-viewer-token" {
		t.Errorf("ViewerToken = %q, credential must be kept", api.ViewerToken())
	}
}

func TestResolveStaleCredentialFallsBack(t *testing.T) {
	srv := newFakeServer(t, false)
	api := client.New(srv.URL)
	api.SetCredentials("stale-token", "stale-csrf")
	r := NewResolver(api)

	id, err := r.Resolve(context.Background(), "round-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id.Name != "Voter 2" {
		t.Errorf("Name = %q, want fresh registration", id.Name)
	}
	if got := srv.meCalls.Load(); got != 1 {
		t.Errorf("me calls = %d, want 1", got)
	}
	if got := srv.joinCalls.Load(); got != 1 {
		t.Errorf("join calls = %d, want 1", got)
	}
	if api.ViewerToken() != "new-viewer-token" {
		t.Errorf("ViewerToken = %q, want replaced", api.ViewerToken())
	}
}

func TestResolveIsOneShot(t *testing.T) {
	srv := newFakeServer(t, false)
	api := client.New(srv.URL)
	r := NewResolver(api)

	first, err := r.Resolve(context.Background(), "round-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := r.Resolve(context.Background(), "round-1")
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	if first != second {
		t.Errorf("second Resolve() = %+v, want cached %+v", second, first)
	}
	if got := srv.joinCalls.Load(); got != 1 {
		t.Errorf("join calls = %d, want 1", got)
	}
	if !r.Resolved() {
		t.Error("Resolved() = false after success")
	}
}

func TestResolveRequiresRoundID(t *testing.T) {
	api := client.New("http://127.0.0.1:1")
	r := NewResolver(api)

	if _, err := r.Resolve(context.Background(), ""); err != ErrMissingRoundID {
		t.Errorf("Resolve(\"\") error = %v, want ErrMissingRoundID", err)
	}
}

func TestResolveServerErrorPropagates(t *testing.T) {
	srv := newFakeServer(t, true)
	srv.meFailWith = http.StatusInternalServerError
	api := client.New(srv.URL)
	api.SetCredentials("tok", "csrf")
	r := NewResolver(api)

	if _, err := r.Resolve(context.Background(), "round-1"); err == nil {
		t.Fatal("Resolve() succeeded despite 500 from identity lookup")
	}
	if got := srv.joinCalls.Load(); got != 0 {
		t.Errorf("join calls = %d, want 0 on non-401 failure", got)
	}
	if r.Resolved() {
		t.Error("Resolved() = true after failure")
	}
}
