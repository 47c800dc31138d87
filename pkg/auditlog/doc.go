// Package auditlog records one append-only LoginAttempt per login and
// serves the login-history query endpoints.
//
// Client addresses are attributed through proxy headers in priority
// order (X-Forwarded-For, X-Real-IP, CF-Connecting-IP, then the socket
// peer). Audit writes are best-effort and never fail the login.
package auditlog
