// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"sync"

	"github.com/storypoints/roundsync/models"
)

// State is one consistent view of a round as seen by a participant: the
// locally browsed issue list plus the server-owned voting snapshot.
type State struct {
	// View browsing state, owned by this client.
	SelectedView      string
	Issues            []models.Issue
	CurrentIssueIndex int
	NextPage          *string
	IsLoading         bool

	// Round state, owned by the server and replaced wholesale on every
	// push.
	CurrentIssue  *models.Issue
	Votes         []*float64
	ExpectedVotes int
}

// Store holds round state behind a single mutation path. Mutations are
// expected from one goroutine (the channel dispatch loop plus the
// coordinator); Snapshot is safe from any.
type Store struct {
	mu    sync.RWMutex
	state State
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Snapshot returns a copy of the current state. Slices are shared but
// never mutated in place by the store, so the copy is safe to read.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetSelectedView switches the browsed view. Issues, pagination, and the
// issue cursor all reset; the round's current issue and votes are
// untouched since they belong to the server.
func (s *Store) SetSelectedView(viewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SelectedView = viewID
	s.state.Issues = nil
	s.state.CurrentIssueIndex = 0
	s.state.NextPage = nil
	s.state.IsLoading = true
}

// SetIssues replaces the issue list, typically with the first page of a
// freshly selected view. The loading flag is the caller's to clear.
func (s *Store) SetIssues(issues []models.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Issues = issues
	s.clampIndex()
}

// AppendIssues adds a further page to the issue list.
func (s *Store) AppendIssues(issues []models.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Issues = append(s.state.Issues, issues...)
}

// SetNextPage records the pagination cursor for the current view; nil
// means the last page has been loaded.
func (s *Store) SetNextPage(token *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.NextPage = token
}

// SetCurrentIssueIndex moves the browsing cursor. Out-of-range values
// are clamped silently rather than rejected; callers racing a shrinking
// list should not fail.
func (s *Store) SetCurrentIssueIndex(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentIssueIndex = index
	s.clampIndex()
}

// SetLoading flips the pagination in-flight flag.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoading = loading
}

// ApplySnapshot installs a full round snapshot. Issue, votes, and
// expected count are replacements, so replaying the same snapshot is a
// no-op.
func (s *Store) ApplySnapshot(p models.RoundSnapshotPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentIssue = p.Issue
	s.state.Votes = p.Votes
	s.state.ExpectedVotes = p.ExpectedVotes
}

// ApplyVoteUpdate installs a vote snapshot for the round's current
// issue. Updates tagged with any other issue id are discarded: they
// were emitted before a navigation this client has already seen.
func (s *Store) ApplyVoteUpdate(p models.VoteUpdatePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentIssue == nil || s.state.CurrentIssue.ID != p.IssueID {
		return
	}
	s.state.Votes = p.Votes
	s.state.ExpectedVotes = p.ExpectedVotes
}

// CurrentBrowsedIssue returns the issue under the browsing cursor, or
// nil when the list is empty.
func (s *Store) CurrentBrowsedIssue() *models.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.state.Issues) == 0 {
		return nil
	}
	issue := s.state.Issues[s.state.CurrentIssueIndex]
	return &issue
}

// caller must hold mu
func (s *Store) clampIndex() {
	if len(s.state.Issues) == 0 {
		s.state.CurrentIssueIndex = 0
		return
	}
	if s.state.CurrentIssueIndex < 0 {
		s.state.CurrentIssueIndex = 0
	}
	if s.state.CurrentIssueIndex >= len(s.state.Issues) {
		s.state.CurrentIssueIndex = len(s.state.Issues) - 1
	}
}
