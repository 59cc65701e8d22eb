// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides token generation and validation for rounds.

# Driver Keys

Driver keys are HMAC-SHA256 over the round ID with a server-side salt,
encoded URL-safe base64 without padding. They are deterministic, so they
can be validated without storage:

	key := auth.GenerateDriverKey(roundID, salt)
	err := auth.ValidateDriverKey(roundID, key, salt)

The driver key gates issue navigation and estimate write-back.

# Viewer Tokens

Viewer tokens are 192-bit random values identifying one participant within
a round. They are issued by POST /auth/anonymous and carried in the
X-Viewer-Token header.

# CSRF Tokens

CSRF tokens are HMAC-derived from the viewer token. State-changing
requests must present both headers; validation is constant-time and
storage-free.

# IP Hashing

HashIP produces a salted, truncated hash for abuse deduplication without
retaining raw addresses.
*/
package auth
