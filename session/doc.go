// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package session resolves the caller's identity within a round: an
// existing participant the server still recognizes, or a freshly
// registered anonymous voter. Registration runs at most once per
// resolver.
package session
