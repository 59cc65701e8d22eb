// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the RoundSync server.

RoundSync is a collaborative estimation ("planning poker") service layered
over a third-party issue tracker: an authenticated driver navigates
tracker issues while any number of anonymous voters estimate them in a
shared realtime round.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=rounds.db DRIVER_KEY_SALT=... CSRF_TOKEN_SALT=... go run .

Or with flags:

	go run . -p 3319 -d rounds.db -driver-salt ... -csrf-salt ...

# Configuration

Required settings:

  - DATABASE_URL (-d): sqlite path or postgres connection string
  - DRIVER_KEY_SALT (-driver-salt): secret for driver key HMAC
  - CSRF_TOKEN_SALT (-csrf-salt): secret for CSRF token HMAC

Optional settings:

  - PORT (-p): server port (default: 3319)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - REDIS_ADDR (-redis): cross-instance websocket fan-out
  - INACTIVITY_MINUTES (-inactivity): round auto-finish window
  - TRACKER_BASE_URL / TRACKER_TOKEN: upstream issue tracker access

# Architecture

The server uses a handler-based architecture with dependency injection:

  - handlers: HTTP request handlers (rounds, voting, presence, tracker)
  - realtime: per-round websocket rooms with optional redis fan-out
  - sweeper: cron-driven auto-finish of inactive rounds
  - router: route definitions using Go 1.22+ routing
  - middleware: CORS, logging, CSRF, JSON helpers
  - models: request/response/wire types
  - auth: token generation and validation
  - db: schema creation
  - cliparse: configuration parsing
  - tracker: issue tracker boundary

The client core lives beside it:

  - channel: round websocket client state machine
  - store: single-writer round state reducer
  - session: viewer identity resolution and presence registration
  - roundctl: round coordinator (navigation, voting, display policy)
  - client: typed HTTP API client
  - stats: vote aggregation
  - cmd/roundcli: terminal participant

See package documentation for each component.
*/
package main
