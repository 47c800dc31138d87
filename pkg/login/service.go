package login

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/amorlabs/amorauth/pkg/auditlog"
	"github.com/amorlabs/amorauth/pkg/directory"
	"github.com/amorlabs/amorauth/pkg/identity"
	"github.com/amorlabs/amorauth/pkg/observability"
)

// FailureReason classifies why a login was rejected.
type FailureReason string

const (
	ReasonIdentity FailureReason = "identity_resolution_failed"
	ReasonStorage  FailureReason = "storage_error"
)

// Result is the outcome of a completed login. Exactly two variants
// exist: succeeded (User set) or failed (Reason and Detail set). The
// HTTP layer maps these to JSON responses.
type Result struct {
	User   *directory.User
	Reason FailureReason
	Detail string
}

// Succeeded reports whether the login completed.
func (r Result) Succeeded() bool { return r.User != nil }

func failed(reason FailureReason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

// IdentityResolver normalizes raw handshake claims.
type IdentityResolver interface {
	Resolve(raw map[string]interface{}) (identity.Claims, error)
}

// UserDirectory upserts resolved identities.
type UserDirectory interface {
	Upsert(ctx context.Context, claims identity.Claims) (*directory.User, error)
}

// AttemptRecorder appends audit records; implementations must be
// best-effort and never fail the caller.
type AttemptRecorder interface {
	Record(ctx context.Context, user *directory.User, meta auditlog.RequestMeta, success bool, errorMessage string)
}

// Service sequences identity resolution, the user directory upsert, and
// audit recording into one login completion. The three steps are not
// atomic; the flow guarantees that every path ends in either a recorded
// failure or a recorded success, and no error escapes past this
// boundary.
type Service struct {
	resolver IdentityResolver
	users    UserDirectory
	audit    AttemptRecorder
	logger   *logrus.Logger
	metrics  *observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches login outcome counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the login orchestrator.
func NewService(resolver IdentityResolver, users UserDirectory, audit AttemptRecorder, logger *logrus.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Service{
		resolver: resolver,
		users:    users,
		audit:    audit,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CompleteLogin finishes a login from the raw claims of a completed
// handshake. Identity and storage failures terminate the login with a
// failed Result and a success=false audit record; only a fully
// persisted user produces a success=true record.
func (s *Service) CompleteLogin(ctx context.Context, raw map[string]interface{}, meta auditlog.RequestMeta) Result {
	claims, err := s.resolver.Resolve(raw)
	if err != nil {
		s.logger.WithError(err).Warn("login rejected: identity resolution failed")
		s.audit.Record(ctx, nil, meta, false, err.Error())
		s.countLogin("failure")
		return failed(ReasonIdentity, err.Error())
	}

	user, err := s.users.Upsert(ctx, claims)
	if err != nil {
		s.logger.WithError(err).WithField("google_id", claims.Subject).Error("login rejected: user upsert failed")
		s.audit.Record(ctx, nil, meta, false, err.Error())
		s.countLogin("failure")
		return failed(ReasonStorage, err.Error())
	}

	s.audit.Record(ctx, user, meta, true, "")
	s.countLogin("success")

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("login completed")

	return Result{User: user}
}

func (s *Service) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}
