package auditlog

import "time"

// MethodGoogleOAuth2 tags attempts produced by the Google OIDC flow.
const MethodGoogleOAuth2 = "GOOGLE_OAUTH2"

// LoginAttempt is one immutable audit record of a login outcome.
// UserID is nil when resolution failed before a user existed. Records
// are written exactly once and never mutated.
type LoginAttempt struct {
	ID           int64     `json:"id"`
	UserID       *int64    `json:"user_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	ClientIP     string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Method       string    `json:"method"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
