package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidIdentity indicates the token payload carried no usable
	// subject claim. Not retryable against the same payload contents.
	ErrInvalidIdentity = errors.New("subject claim is missing or empty")

	// ErrResolutionFailed indicates both resolution attempts were
	// exhausted and the login must be rejected.
	ErrResolutionFailed = errors.New("identity resolution failed")
)

// resolveAttempts is the number of passes over the token payload before
// resolution is abandoned: the primary extraction plus one fallback.
const resolveAttempts = 2

// Claims is the normalized identity produced from a completed OIDC
// handshake. Subject is the provider-unique user id ("sub"); every other
// field is optional.
type Claims struct {
	Subject     string
	Email       string
	DisplayName string
	PictureURL  string
	Locale      string
}

// Resolver turns the raw string-keyed claim map of an ID token into a
// validated Claims value.
//
// The claims are read from the already-exchanged token payload without a
// further network round-trip. Upstream signature verification may have
// been skipped (see oauthflow); the fallback pass re-derives from the
// same payload to cover transient extraction errors, not a different
// data source.
type Resolver struct {
	logger *logrus.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{logger: logger}
}

// Resolve extracts and validates claims, retrying once on failure.
// An empty or missing subject on the final attempt fails the resolution
// with ErrResolutionFailed.
func (r *Resolver) Resolve(raw map[string]interface{}) (Claims, error) {
	var lastErr error
	for attempt := 1; attempt <= resolveAttempts; attempt++ {
		claims, err := extract(raw)
		if err == nil {
			if attempt > 1 {
				r.logger.WithField("attempt", attempt).Info("identity resolved on fallback attempt")
			}
			return claims, nil
		}
		lastErr = err
		r.logger.WithError(err).WithField("attempt", attempt).Warn("identity extraction failed")
	}
	return Claims{}, fmt.Errorf("%w after %d attempts: %v", ErrResolutionFailed, resolveAttempts, lastErr)
}

// extract performs a single extraction pass over the claim map.
func extract(raw map[string]interface{}) (Claims, error) {
	if raw == nil {
		return Claims{}, fmt.Errorf("%w: no claims present", ErrInvalidIdentity)
	}

	subject := getString(raw, "sub")
	if strings.TrimSpace(subject) == "" {
		return Claims{}, ErrInvalidIdentity
	}

	return Claims{
		Subject:     subject,
		Email:       getString(raw, "email"),
		DisplayName: getString(raw, "name"),
		PictureURL:  getString(raw, "picture"),
		Locale:      getString(raw, "locale"),
	}, nil
}

// getString returns the claim under key if it is a string, else "".
func getString(claims map[string]interface{}, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}
