// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/storypoints/roundsync/client"
	"github.com/storypoints/roundsync/models"
)

// ErrMissingRoundID is returned when resolution is attempted with no
// round to register against.
var ErrMissingRoundID = errors.New("round id is required")

// Identity is the resolved participant: an existing participant
// recognized by the server, or a freshly registered anonymous voter.
type Identity struct {
	Kind string // models.KindDriver or models.KindVoter
	Name string
}

// Resolver establishes who the caller is within a round. Resolution is
// one-shot: the first successful Resolve registers presence (or confirms
// an existing registration) and every later call returns the cached
// identity. The zero credential state never reaches voting paths; a
// resolved identity always leaves the api client holding viewer and CSRF
// tokens.
type Resolver struct {
	api *client.Client

	mu       sync.Mutex
	resolved bool
	identity Identity
}

// NewResolver wraps the api client the identity will be installed on.
func NewResolver(api *client.Client) *Resolver {
	return &Resolver{api: api}
}

// Resolved reports whether an identity has been established.
func (r *Resolver) Resolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Identity returns the resolved identity; the bool is false until
// Resolve has succeeded.
func (r *Resolver) Identity() (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity, r.resolved
}

// Resolve determines the caller's identity in roundID. A caller whose
// credentials the server still recognizes keeps its existing identity;
// anyone else is registered as a new anonymous voter and the issued
// credentials are installed on the api client. Safe to call repeatedly;
// only the first success talks to the server.
func (r *Resolver) Resolve(ctx context.Context, roundID string) (Identity, error) {
	if roundID == "" {
		return Identity{}, ErrMissingRoundID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return r.identity, nil
	}

	// An existing credential may still be known to the server, e.g. after
	// a reload. Ask before registering a duplicate participant.
	if r.api.ViewerToken() != "" {
		me, err := r.api.Me(ctx, roundID)
		if err == nil {
			r.identity = Identity{Kind: me.Kind, Name: me.Name}
			r.resolved = true
			slog.Info("identity recognized", "round_id", roundID, "kind", me.Kind)
			return r.identity, nil
		}

		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			return Identity{}, fmt.Errorf("identity lookup failed: %w", err)
		}
		// Stale credential: fall through to anonymous registration.
	}

	resp, err := r.api.JoinAnonymous(ctx, roundID, "")
	if err != nil {
		return Identity{}, fmt.Errorf("anonymous registration failed: %w", err)
	}
	r.api.SetCredentials(resp.ViewerToken, resp.CSRFToken)

	r.identity = Identity{Kind: models.KindVoter, Name: resp.Name}
	r.resolved = true
	slog.Info("registered anonymously", "round_id", roundID, "name", resp.Name)
	return r.identity, nil
}
