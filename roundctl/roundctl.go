// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package roundctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/storypoints/roundsync/channel"
	"github.com/storypoints/roundsync/client"
	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/stats"
	"github.com/storypoints/roundsync/store"
)

var (
	// ErrVoteInFlight rejects a vote while the previous one is still on
	// the wire. One submission at a time keeps the server's last-write
	// semantics intelligible to the voter.
	ErrVoteInFlight = errors.New("a vote is already in flight")

	// ErrEstimateInFlight rejects a write-back while the previous one is
	// still on the wire.
	ErrEstimateInFlight = errors.New("an estimate is already in flight")

	// ErrNotRevealed means write-back was attempted before every
	// expected vote arrived.
	ErrNotRevealed = errors.New("votes are not revealed yet")

	// ErrNoCurrentIssue means the round has no issue to vote on yet.
	ErrNoCurrentIssue = errors.New("no current issue")

	// ErrNotDriver guards navigation and write-back.
	ErrNotDriver = errors.New("driver key required")

	// ErrNoIssues means navigation was attempted on an empty issue list.
	ErrNoIssues = errors.New("no issues loaded")
)

// Notifier receives human-readable events the coordinator cannot handle
// itself: server-pushed errors, failed optimistic navigation.
type Notifier interface {
	Notify(message string)
}

// API is the slice of the HTTP client the coordinator drives.
type API interface {
	SubmitVote(ctx context.Context, roundID, issueID string, value *float64) error
	SetCurrentIssue(ctx context.Context, roundID, issueID string) error
	FetchIssues(ctx context.Context, viewID, pageToken string) (models.IssuePageResponse, error)
	SubmitEstimate(ctx context.Context, roundID, issueID string, value float64) (float64, error)
	IsDriver() bool
}

var _ API = (*client.Client)(nil)

// Session coordinates one participant's view of one round: it routes
// channel messages into the store, applies the vote and navigation
// rules, and renders the masked display.
type Session struct {
	roundID  string
	api      API
	store    *store.Store
	ch       *channel.Channel
	notifier Notifier

	voteInFlight     atomic.Bool
	estimateInFlight atomic.Bool

	mu       sync.Mutex
	ownVote  *float64
	hasVoted bool
}

// New creates a session. ch may be nil in tests that feed messages
// directly; notifier may be nil to drop notifications.
func New(roundID string, api API, st *store.Store, ch *channel.Channel, notifier Notifier) *Session {
	return &Session{
		roundID:  roundID,
		api:      api,
		store:    st,
		ch:       ch,
		notifier: notifier,
	}
}

// Store exposes the underlying state for read access.
func (s *Session) Store() *store.Store {
	return s.store
}

// HandleMessage routes one channel message into the store. Call it from
// the channel's OnMessage; ordering is the channel's single dispatch
// goroutine.
func (s *Session) HandleMessage(msg channel.Message) {
	switch m := msg.(type) {
	case channel.RoundSnapshot:
		prev := s.store.Snapshot().CurrentIssue
		s.store.ApplySnapshot(m.Snapshot)
		// A new issue starts a fresh ballot; the remembered own vote
		// belongs to the old one.
		if issueChanged(prev, m.Snapshot.Issue) {
			s.mu.Lock()
			s.ownVote = nil
			s.hasVoted = false
			s.mu.Unlock()
		}
	case channel.VoteUpdate:
		s.store.ApplyVoteUpdate(m.Update)
	case channel.ProtocolError:
		s.notify(m.Message)
	case channel.Unparseable:
		slog.Warn("dropped unparseable frame", "round_id", s.roundID, "error", m.Err)
	}
}

func issueChanged(prev, next *models.Issue) bool {
	switch {
	case prev == nil && next == nil:
		return false
	case prev == nil || next == nil:
		return true
	default:
		return prev.ID != next.ID
	}
}

// SubmitVote submits value (nil = abstain) for the round's current
// issue. At most one vote is in flight at a time; concurrent callers get
// ErrVoteInFlight instead of queueing.
func (s *Session) SubmitVote(ctx context.Context, value *float64) error {
	issue := s.store.Snapshot().CurrentIssue
	if issue == nil {
		return ErrNoCurrentIssue
	}

	if !s.voteInFlight.CompareAndSwap(false, true) {
		return ErrVoteInFlight
	}
	defer s.voteInFlight.Store(false)

	if err := s.api.SubmitVote(ctx, s.roundID, issue.ID, value); err != nil {
		return err
	}

	s.mu.Lock()
	s.ownVote = value
	s.hasVoted = true
	s.mu.Unlock()

	if value == nil {
		s.notify("abstain recorded")
	} else {
		s.notify("vote recorded")
	}
	return nil
}

// Advance moves the round to the next issue in the browsed list,
// wrapping at the end. Driver only. The local cursor moves immediately;
// the server push is what the other participants see.
func (s *Session) Advance(ctx context.Context) error {
	return s.navigate(ctx, 1)
}

// Retreat moves to the previous issue, wrapping at the start. Driver
// only.
func (s *Session) Retreat(ctx context.Context) error {
	return s.navigate(ctx, -1)
}

func (s *Session) navigate(ctx context.Context, delta int) error {
	if !s.api.IsDriver() {
		return ErrNotDriver
	}

	state := s.store.Snapshot()
	n := len(state.Issues)
	if n == 0 {
		return ErrNoIssues
	}

	next := ((state.CurrentIssueIndex+delta)%n + n) % n
	s.store.SetCurrentIssueIndex(next)

	issue := state.Issues[next]
	if err := s.api.SetCurrentIssue(ctx, s.roundID, issue.ID); err != nil {
		// The optimistic cursor is wrong now; the next server snapshot is
		// the correction.
		s.notify(fmt.Sprintf("failed to change issue: %v", err))
		return err
	}

	// Landing on the last loaded issue pulls the next page in so the
	// driver can keep going. A failed prefetch never fails navigation.
	if next == n-1 {
		if err := s.EnsureNextPage(ctx); err != nil {
			slog.Warn("next page prefetch failed", "round_id", s.roundID, "error", err)
		}
	}
	return nil
}

// SubmitEstimate writes the agreed estimate for the current issue back
// to the tracker. Values snap to the estimation scale before submission.
// Driver only, only after the ballot completes, and at most one
// write-back in flight at a time.
func (s *Session) SubmitEstimate(ctx context.Context, value float64) (float64, error) {
	if !s.api.IsDriver() {
		return 0, ErrNotDriver
	}
	state := s.store.Snapshot()
	if state.CurrentIssue == nil {
		return 0, ErrNoCurrentIssue
	}
	if state.ExpectedVotes == 0 || len(state.Votes) < state.ExpectedVotes {
		return 0, ErrNotRevealed
	}

	if !s.estimateInFlight.CompareAndSwap(false, true) {
		return 0, ErrEstimateInFlight
	}
	defer s.estimateInFlight.Store(false)

	rounded := stats.RoundToNearestFibonacci(value)
	return s.api.SubmitEstimate(ctx, s.roundID, state.CurrentIssue.ID, rounded)
}

// SelectView switches the browsed view and loads its first page. A page
// that arrives after the view changed again, or after the channel
// remounted, is discarded.
func (s *Session) SelectView(ctx context.Context, viewID string) error {
	s.store.SetSelectedView(viewID)
	gen := s.generation()

	page, err := s.api.FetchIssues(ctx, viewID, "")
	if err != nil {
		if !s.stale(gen, viewID) {
			s.store.SetLoading(false)
		}
		return fmt.Errorf("failed to load view: %w", err)
	}

	if s.stale(gen, viewID) {
		slog.Debug("discarded stale view page", "view_id", viewID)
		return nil
	}
	s.store.SetIssues(page.Issues)
	s.store.SetNextPage(page.NextPage)
	s.store.SetLoading(false)
	return nil
}

// EnsureNextPage loads the next page of the current view. It is a no-op
// unless the cursor sits on the last loaded issue, a continuation token
// exists, and no fetch is already running. Stale responses are discarded
// the same way as in SelectView.
func (s *Session) EnsureNextPage(ctx context.Context) error {
	state := s.store.Snapshot()
	if state.NextPage == nil || state.IsLoading || state.SelectedView == "" {
		return nil
	}
	if state.CurrentIssueIndex != len(state.Issues)-1 {
		return nil
	}

	s.store.SetLoading(true)
	gen := s.generation()
	viewID := state.SelectedView

	page, err := s.api.FetchIssues(ctx, viewID, *state.NextPage)
	if err != nil {
		if !s.stale(gen, viewID) {
			s.store.SetLoading(false)
		}
		return fmt.Errorf("failed to load next page: %w", err)
	}

	if s.stale(gen, viewID) {
		slog.Debug("discarded stale page", "view_id", viewID)
		return nil
	}
	s.store.AppendIssues(page.Issues)
	s.store.SetNextPage(page.NextPage)
	s.store.SetLoading(false)
	return nil
}

func (s *Session) generation() uint64 {
	if s.ch == nil {
		return 0
	}
	return s.ch.Generation()
}

func (s *Session) stale(gen uint64, viewID string) bool {
	if s.generation() != gen {
		return true
	}
	return s.store.Snapshot().SelectedView != viewID
}

func (s *Session) notify(message string) {
	if s.notifier != nil {
		s.notifier.Notify(message)
	}
}

// Display is what a participant sees: one cell per received vote, masked
// until the ballot completes.
type Display struct {
	Issue    *models.Issue
	Cells    []string
	Revealed bool
	Stats    stats.Stats
	Expected int
	Received int
	OwnVote  string // "", a number, or "abstain"
}

// Display renders the current ballot. Votes stay masked until every
// expected participant has voted; a voter always sees its own choice,
// including an abstain, regardless of masking.
func (s *Session) Display() Display {
	state := s.store.Snapshot()

	d := Display{
		Issue:    state.CurrentIssue,
		Expected: state.ExpectedVotes,
		Received: len(state.Votes),
	}

	s.mu.Lock()
	if s.hasVoted {
		if s.ownVote == nil {
			d.OwnVote = "abstain"
		} else {
			d.OwnVote = formatVote(*s.ownVote)
		}
	}
	s.mu.Unlock()

	d.Revealed = d.Expected > 0 && d.Received >= d.Expected
	d.Cells = make([]string, len(state.Votes))
	for i, v := range state.Votes {
		switch {
		case !d.Revealed:
			d.Cells[i] = "✓"
		case v == nil:
			d.Cells[i] = "abstain"
		default:
			d.Cells[i] = formatVote(*v)
		}
	}

	if d.Revealed {
		d.Stats = stats.CalculateStats(state.Votes)
	}
	return d
}

func formatVote(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
