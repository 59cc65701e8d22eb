// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package channel is the client side of the round websocket: it dials,
// decodes pushed frames into a closed message union, and dispatches
// them in order from a single goroutine. It distinguishes silent
// teardown (Close) from departure (Unload or a dropped transport), and
// reports each departure to the server at most once.
package channel
