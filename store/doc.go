// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package store holds the client-side round state: the locally browsed
// issue list and cursor alongside the server-pushed voting snapshot.
// Server pushes always replace, never patch.
package store
