// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package realtime fans round events out to participant websockets.

# Rooms

The Hub keeps one room of connections per round. A socket joins by
dialing:

	GET /ws?roundId={roundId}&token={viewerToken}

On join the hub immediately sends a "response" event carrying the current
round snapshot; that is the replay path a reloaded client relies on.

# Events

Handlers call BroadcastSnapshot (roundIssueUpdated), BroadcastVotes
(voteUpdated), and BroadcastError. The link is push-only: inbound client
frames are read solely to detect the close.

# Cross-instance fan-out

With a redis client configured, broadcasts go through PUBLISH on
"roundsync:events" and every instance delivers them to its local room
from the subscription started by Run. Without redis, delivery is local
and direct; Run returns immediately.

# Disconnects

A dropped socket triggers the DisconnectFunc so participant presence
converges even when the client never managed its explicit disconnect
call.
*/
package realtime
