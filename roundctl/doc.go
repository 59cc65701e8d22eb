// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package roundctl coordinates one participant's round: it routes
// channel pushes into the store, enforces the one-vote-in-flight and
// driver-only rules, paginates views with stale-response discard, and
// renders the masked ballot display.
package roundctl
