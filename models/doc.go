// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, domain, and wire types shared by
the server and the client core.

# Request Types

Types for parsing incoming JSON:

  - CreateRoundRequest: team_id (optional)
  - SetIssueRequest: issue (full Issue object)
  - SubmitVoteRequest: vote (number or null for abstain), issueId
  - AnonymousAuthRequest: roundId, name
  - DisconnectRequest: roundId
  - SubmitEstimateRequest: estimate

# Response Types

Types for JSON responses:

  - CreateRoundResponse: round_id, driver_key
  - SubmitVoteResponse: success, message
  - AnonymousAuthResponse: viewer_token, csrf_token, name
  - MeResponse: viewer_id, name, kind
  - IssuePageResponse: issues, nextPage
  - ErrorResponse: error, message

# Domain Types

Internal data structures:

  - Round: round lifecycle state and current issue
  - Issue: unit of work from the tracker, immutable once received
  - Comment: issue comment
  - Participant: one viewer's registration in a round

# Wire Types

Every websocket frame is an Envelope {event, type?, payload}. The event
tag selects the payload shape:

	response, roundIssueUpdated → RoundSnapshotPayload
	voteUpdated                 → VoteUpdatePayload
	error                       → string

Vote values are *float64 throughout; nil is an explicit abstain.

# Constants

Round status values:

	StatusOpen     = "open"
	StatusFinished = "finished"

Participant kinds:

	KindDriver = "driver"
	KindVoter  = "voter"
*/
package models
