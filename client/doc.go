// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package client provides the typed HTTP client for the round API. All
// calls carry the viewer, CSRF, and driver credentials installed on the
// Client, run under a 10 second deadline, and report application-level
// rejections ({success:false} bodies) as errors.
package client
