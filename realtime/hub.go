// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/storypoints/roundsync/models"
)

// eventsChannel is the redis pub/sub channel relaying round events
// between server instances.
const eventsChannel = "roundsync:events"

// SnapshotFunc loads the current authoritative snapshot for a round. The
// hub sends it as a "response" event to every socket that joins, which is
// how a reloaded client re-derives its state.
type SnapshotFunc func(roundID string) (models.RoundSnapshotPayload, error)

// DisconnectFunc is invoked when a socket drops without an explicit
// disconnect call, so presence bookkeeping still converges.
type DisconnectFunc func(roundID, viewerToken string)

// relayFrame is the shape published over redis: the target round plus the
// already-encoded envelope.
type relayFrame struct {
	RoundID string          `json:"roundId"`
	Frame   json.RawMessage `json:"frame"`
}

// Hub tracks one room of connections per round and fans events out to
// them. With a redis client configured, events are published and every
// instance (including the publisher) delivers them from its subscription;
// without redis, delivery is local and direct.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn // roundID -> connID -> conn

	rdb          *redis.Client
	snapshot     SnapshotFunc
	onDisconnect DisconnectFunc
	upgrader     websocket.Upgrader
}

// NewHub constructs a Hub. rdb may be nil for single-instance deployments
// and tests.
func NewHub(rdb *redis.Client, snapshot SnapshotFunc, onDisconnect DisconnectFunc) *Hub {
	return &Hub{
		rooms:        make(map[string]map[string]*Conn),
		rdb:          rdb,
		snapshot:     snapshot,
		onDisconnect: onDisconnect,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run relays redis-published events into local rooms. It returns
// immediately when no redis client is configured, otherwise blocks until
// the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		return
	}

	pubsub := h.rdb.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame relayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				slog.Error("failed to decode relayed frame", "error", err)
				continue
			}
			h.deliver(frame.RoundID, frame.Frame)
		}
	}
}

// ServeWS upgrades the request and joins the socket to its round room.
// The connection address carries roundId and token as query parameters;
// browsers cannot set headers on websocket dials.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roundID := r.URL.Query().Get("roundId")
	if roundID == "" {
		http.Error(w, "roundId is required", http.StatusBadRequest)
		return
	}
	viewerToken := r.URL.Query().Get("token")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err, "round_id", roundID)
		return
	}

	conn := NewConn(roundID, viewerToken, ws)
	h.join(conn)
	conn.Start()

	slog.Info("socket joined", "round_id", roundID, "conn_id", conn.ID)

	// Replay the authoritative state to the newcomer.
	h.sendSnapshot(conn)

	// The link is receive-only from the client's perspective; the read
	// loop exists to observe pings and the close.
	h.readLoop(conn)
}

// BroadcastSnapshot pushes a roundIssueUpdated event to every participant
// in the round.
func (h *Hub) BroadcastSnapshot(roundID string, payload models.RoundSnapshotPayload) {
	h.broadcast(roundID, models.EventRoundIssueUpdated, payload)
}

// BroadcastVotes pushes a voteUpdated event to every participant in the
// round.
func (h *Hub) BroadcastVotes(roundID string, payload models.VoteUpdatePayload) {
	h.broadcast(roundID, models.EventVoteUpdated, payload)
}

// BroadcastError pushes an error event to every participant in the round.
func (h *Hub) BroadcastError(roundID string, message string) {
	h.broadcast(roundID, models.EventError, message)
}

// RoomSize reports the number of sockets currently joined to a round.
func (h *Hub) RoomSize(roundID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roundID])
}

// Close terminates all tracked connections.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Conn, 0)
	for _, room := range h.rooms {
		for _, conn := range room {
			conns = append(conns, conn)
		}
	}
	h.rooms = make(map[string]map[string]*Conn)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

func (h *Hub) broadcast(roundID, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event payload", "error", err, "event", event)
		return
	}
	frame, err := json.Marshal(models.Envelope{Event: event, Payload: raw})
	if err != nil {
		slog.Error("failed to marshal envelope", "error", err, "event", event)
		return
	}

	if h.rdb == nil {
		h.deliver(roundID, frame)
		return
	}

	relay, err := json.Marshal(relayFrame{RoundID: roundID, Frame: frame})
	if err != nil {
		slog.Error("failed to marshal relay frame", "error", err)
		return
	}
	if err := h.rdb.Publish(context.Background(), eventsChannel, relay).Err(); err != nil {
		slog.Error("failed to publish event", "error", err, "round_id", roundID)
		// Degrade to local delivery so this instance's room still sees it.
		h.deliver(roundID, frame)
	}
}

func (h *Hub) deliver(roundID string, frame []byte) {
	h.mu.RLock()
	room := h.rooms[roundID]
	conns := make([]*Conn, 0, len(room))
	for _, conn := range room {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(frame); err != nil {
			slog.Warn("failed to deliver event", "conn_id", conn.ID, "error", err)
		}
	}
}

func (h *Hub) sendSnapshot(conn *Conn) {
	payload, err := h.snapshot(conn.RoundID)
	if err != nil {
		slog.Error("failed to load round snapshot", "error", err, "round_id", conn.RoundID)
		h.sendError(conn, "failed to load round state")
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal snapshot", "error", err)
		return
	}
	frame, err := json.Marshal(models.Envelope{Event: models.EventResponse, Payload: raw})
	if err != nil {
		slog.Error("failed to marshal envelope", "error", err)
		return
	}
	if err := conn.Send(frame); err != nil {
		slog.Warn("failed to send snapshot", "conn_id", conn.ID, "error", err)
	}
}

func (h *Hub) sendError(conn *Conn, message string) {
	raw, _ := json.Marshal(message)
	frame, err := json.Marshal(models.Envelope{Event: models.EventError, Payload: raw})
	if err != nil {
		return
	}
	_ = conn.Send(frame)
}

func (h *Hub) join(conn *Conn) {
	h.mu.Lock()
	room := h.rooms[conn.RoundID]
	if room == nil {
		room = make(map[string]*Conn)
		h.rooms[conn.RoundID] = room
	}
	room[conn.ID] = conn
	h.mu.Unlock()
}

func (h *Hub) leave(conn *Conn) {
	h.mu.Lock()
	room := h.rooms[conn.RoundID]
	if room != nil {
		delete(room, conn.ID)
		if len(room) == 0 {
			delete(h.rooms, conn.RoundID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) readLoop(conn *Conn) {
	defer func() {
		h.leave(conn)
		conn.Close(websocket.CloseNormalClosure, "")
		if h.onDisconnect != nil && conn.ViewerToken != "" {
			h.onDisconnect(conn.RoundID, conn.ViewerToken)
		}
		slog.Info("socket left", "round_id", conn.RoundID, "conn_id", conn.ID)
	}()

	for {
		// Inbound frames are not part of the protocol; read to detect the
		// close and discard everything else.
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			return
		}
	}
}
