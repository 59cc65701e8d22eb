// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/storypoints/roundsync/models"
)

const handshakeTimeout = 10 * time.Second

// Status is the channel lifecycle state.
type Status int

const (
	StatusClosed Status = iota
	StatusConnecting
	StatusOpen
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	default:
		return "closed"
	}
}

// ErrAlreadyConnected is returned by Connect when the channel is not
// closed. Callers remount by closing first.
var ErrAlreadyConnected = errors.New("channel already connected")

// Message is the closed union of everything a round channel can emit.
// Dispatch happens from a single goroutine, so handlers see messages in
// arrival order.
type Message interface {
	isMessage()
}

// RoundSnapshot carries a full round snapshot: the initial replay on
// join and every issue navigation.
type RoundSnapshot struct {
	Snapshot models.RoundSnapshotPayload
}

// VoteUpdate carries a vote snapshot for one issue.
type VoteUpdate struct {
	Update models.VoteUpdatePayload
}

// ProtocolError is a server-pushed error, such as the round finishing.
type ProtocolError struct {
	Message string
}

// Unparseable wraps a frame that could not be decoded. The channel stays
// open; one bad frame never tears down the link.
type Unparseable struct {
	Raw []byte
	Err error
}

func (RoundSnapshot) isMessage() {}
func (VoteUpdate) isMessage()    {}
func (ProtocolError) isMessage() {}
func (Unparseable) isMessage()   {}

// Parse decodes one wire frame into the message union. It never returns
// nil: anything unrecognized comes back as Unparseable.
func Parse(raw []byte) Message {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Unparseable{Raw: raw, Err: err}
	}

	switch env.Event {
	case models.EventResponse, models.EventRoundIssueUpdated:
		var p models.RoundSnapshotPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Unparseable{Raw: raw, Err: err}
		}
		return RoundSnapshot{Snapshot: p}
	case models.EventVoteUpdated:
		var p models.VoteUpdatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Unparseable{Raw: raw, Err: err}
		}
		return VoteUpdate{Update: p}
	case models.EventError:
		var msg string
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return Unparseable{Raw: raw, Err: err}
		}
		return ProtocolError{Message: msg}
	default:
		return Unparseable{Raw: raw, Err: fmt.Errorf("unknown event %q", env.Event)}
	}
}

// Channel maintains one websocket subscription to a round. Messages are
// decoded and handed to OnMessage from a single read goroutine.
//
// Teardown comes in two flavors: Close is silent (page navigation within
// the app, remount), while Unload and transport-level drops additionally
// fire NotifyLeave so the server can mark the participant disconnected.
// NotifyLeave runs at most once per connection regardless of how many
// teardown paths race.
type Channel struct {
	wsBaseURL   string
	roundID     string
	viewerToken string

	// OnMessage receives every decoded frame in order. Required.
	OnMessage func(Message)

	// NotifyLeave tells the server this participant left. Optional.
	NotifyLeave func()

	mu         sync.Mutex
	status     Status
	ws         *websocket.Conn
	generation uint64
	leaveOnce  *sync.Once
}

// New creates a channel for one participant in one round. wsBaseURL is
// the websocket origin, e.g. "ws://localhost:3319".
func New(wsBaseURL, roundID, viewerToken string, onMessage func(Message)) *Channel {
	return &Channel{
		wsBaseURL:   wsBaseURL,
		roundID:     roundID,
		viewerToken: viewerToken,
		OnMessage:   onMessage,
	}
}

// Status returns the current lifecycle state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Generation returns a counter incremented on every successful Connect.
// Callers tag async work with it to discard results from a previous
// mount.
func (c *Channel) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Connect dials the round's websocket endpoint and starts the read loop.
// On failure the channel returns to closed and can be retried.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusClosed {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	u := fmt.Sprintf("%s/ws?roundId=%s&token=%s",
		c.wsBaseURL, url.QueryEscape(c.roundID), url.QueryEscape(c.viewerToken))

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		c.mu.Lock()
		c.status = StatusClosed
		c.mu.Unlock()
		return fmt.Errorf("failed to dial round channel: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.status = StatusOpen
	c.generation++
	gen := c.generation
	once := &sync.Once{}
	c.leaveOnce = once
	c.mu.Unlock()

	go c.readLoop(ws, gen, once)
	return nil
}

// Close tears the connection down silently: the server is not told the
// participant left. Used when the caller intends to reconnect, or when
// departure has already been reported another way.
func (c *Channel) Close() {
	c.teardown(false)
}

// Unload tears the connection down and reports the departure to the
// server. This is the ordinary way to leave a round.
func (c *Channel) Unload() {
	c.teardown(true)
}

func (c *Channel) teardown(notify bool) {
	c.mu.Lock()
	ws := c.ws
	once := c.leaveOnce
	c.ws = nil
	c.status = StatusClosed
	c.mu.Unlock()

	if once != nil {
		if notify {
			once.Do(c.fireLeave)
		} else {
			// Consume the once so a racing transport-close cannot notify
			// after an intentionally silent close.
			once.Do(func() {})
		}
	}

	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
}

func (c *Channel) fireLeave() {
	if c.NotifyLeave != nil {
		c.NotifyLeave()
	}
}

// readLoop is the single dispatch point: frames reach OnMessage in the
// order the server sent them.
func (c *Channel) readLoop(ws *websocket.Conn, gen uint64, once *sync.Once) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.generation == gen && c.ws == ws {
				c.ws = nil
				c.status = StatusClosed
			}
			c.mu.Unlock()

			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("round channel dropped", "round_id", c.roundID, "error", err)
			}
			// An unexpected drop counts as a departure.
			once.Do(c.fireLeave)
			return
		}

		if c.OnMessage != nil {
			c.OnMessage(Parse(raw))
		}
	}
}
