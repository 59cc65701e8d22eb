// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and response helpers.

# Middleware

  - WithLogging: request start/completion logging with duration
  - WithCSRF: storage-free CSRF enforcement for state-changing
    participant requests (X-Viewer-Token + X-CSRF-Token headers)
  - CORS: permissive cross-origin handling including the custom headers

# Helpers

  - JSONResponse / ErrorResponse: JSON writing with consistent error shape
  - ParseJSONBody: request body decoding
  - GetClientIP: X-Forwarded-For / X-Real-IP / RemoteAddr resolution

# Headers

The shared header names live here so server and client agree:

	HeaderViewerToken = "X-Viewer-Token"
	HeaderDriverKey   = "X-Driver-Key"
	HeaderCSRFToken   = "X-CSRF-Token"
*/
package middleware
