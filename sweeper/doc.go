// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package sweeper finishes inactive rounds on a cron schedule. A round
// with no votes or issue changes inside the configured window moves to
// status finished and its room is notified.
package sweeper
