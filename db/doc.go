// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db creates the database schema.

# Tables

  - round: lifecycle state, current issue (JSON text), activity timestamp
  - participant: one row per viewer token per round
  - vote: one row per (round, issue, viewer), value NULL for abstain
  - issue_snapshot: issues served through the views proxy, keyed by id

# Portability

The same DDL runs under sqlite (modernc.org/sqlite, the default and the
test database) and postgres (lib/pq). Both drivers accept $1-style
placeholders, so query text is shared too. Timestamps are passed
explicitly rather than defaulted so sqlite and postgres agree on them.

# Key Relationships

  - participant.round_id → round.id (cascade delete)
  - vote.round_id → round.id (cascade delete)
  - vote is keyed by (round_id, issue_id, viewer_token): re-voting on the
    same issue is an update, not a duplicate
*/
package db
