// Package api exposes the HTTP surface: the Google login redirect and
// callback, user lookups, login status, and the admin endpoints for
// login history and cache eviction. Core results are mapped to JSON
// envelopes here; no business logic lives in the handlers.
package api
