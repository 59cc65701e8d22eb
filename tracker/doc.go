// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package tracker is the boundary to the upstream issue tracker: paged
// issue listing per view and estimate write-back. Handlers depend on the
// Client interface; tests substitute a fake.
package tracker
