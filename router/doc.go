// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines the HTTP route table.

Routes use Go 1.22+ method patterns on the standard ServeMux. All JSON
endpoints are wrapped with request logging; the vote endpoint additionally
carries the CSRF middleware. The websocket endpoint is served raw so the
upgrade handshake is untouched.

	GET  /health
	POST /rounds
	GET  /rounds/{id}
	POST /rounds/{id}/issue
	POST /rounds/{id}/vote
	POST /auth/anonymous
	POST /auth/disconnect
	GET  /auth/me
	GET  /views/{id}/issues
	POST /issues/{id}/estimate
	GET  /ws?roundId=&token=
*/
package router
