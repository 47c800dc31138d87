package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amorlabs/amorauth/pkg/directory"
	"github.com/amorlabs/amorauth/pkg/observability"
)

const (
	defaultHistoryLimit = 10
	defaultRecentLimit  = 20
)

// Recorder appends one LoginAttempt per login to PostgreSQL and serves
// the audit query endpoints. Writes are best-effort: a failed insert is
// logged and suppressed so it can never fail the login itself.
type Recorder struct {
	db      *sql.DB
	logger  *logrus.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMetrics attaches the audit failure counter.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder and ensures the login_logs table exists.
func NewRecorder(db *sql.DB, logger *logrus.Logger, opts ...Option) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	r := &Recorder{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure login_logs table: %w", err)
	}

	return r, nil
}

// ensureTable creates the login_logs table if it doesn't exist.
func (r *Recorder) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS login_logs (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT,
		login_time TIMESTAMP WITH TIME ZONE NOT NULL,
		ip_address VARCHAR(45),
		user_agent TEXT,
		login_type VARCHAR(50) NOT NULL,
		success BOOLEAN NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_login_logs_user_id ON login_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_login_logs_login_time ON login_logs(login_time DESC);
	`

	_, err := r.db.Exec(query)
	return err
}

// Record appends one attempt. user may be nil when resolution failed
// before a user existed. Insert failures are swallowed here, never
// propagated.
func (r *Recorder) Record(ctx context.Context, user *directory.User, meta RequestMeta, success bool, errorMessage string) {
	var userID *int64
	if user != nil {
		userID = &user.ID
	}

	attempt := LoginAttempt{
		UserID:       userID,
		Timestamp:    r.now(),
		ClientIP:     meta.ClientIP(),
		UserAgent:    meta.UserAgent,
		Method:       MethodGoogleOAuth2,
		Success:      success,
		ErrorMessage: errorMessage,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO login_logs (user_id, login_time, ip_address, user_agent, login_type, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, attempt.UserID, attempt.Timestamp, attempt.ClientIP, attempt.UserAgent,
		attempt.Method, attempt.Success, nullable(attempt.ErrorMessage)).Scan(&attempt.ID)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"success": success,
		}).Error("failed to record login attempt")
		if r.metrics != nil {
			r.metrics.AuditWriteFailuresTotal.Inc()
		}
		return
	}

	r.logger.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"user_id":    userID,
		"success":    success,
		"ip":         attempt.ClientIP,
	}).Info("login attempt recorded")
}

const attemptColumns = `id, user_id, login_time, ip_address, user_agent, login_type, success, error_message`

// History returns the most recent attempts for a user, newest first.
// A non-positive limit falls back to the default of 10.
func (r *Recorder) History(ctx context.Context, userID int64, limit int) ([]*LoginAttempt, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return r.query(ctx, `
		SELECT `+attemptColumns+` FROM login_logs
		WHERE user_id = $1
		ORDER BY login_time DESC
		LIMIT $2
	`, userID, limit)
}

// Recent returns the most recent attempts across all users, newest
// first. A non-positive limit falls back to the default of 20.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]*LoginAttempt, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return r.query(ctx, `
		SELECT `+attemptColumns+` FROM login_logs
		ORDER BY login_time DESC
		LIMIT $1
	`, limit)
}

// Count returns the number of attempts recorded for a user.
func (r *Recorder) Count(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_logs WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return count, nil
}

// LatestByUser returns the newest attempt for a user, or nil when none
// has been recorded.
func (r *Recorder) LatestByUser(ctx context.Context, userID int64) (*LoginAttempt, error) {
	attempts, err := r.History(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, nil
	}
	return attempts[0], nil
}

// Purge deletes attempts older than the retention window and returns how
// many rows were removed. Run from the scheduled retention job.
func (r *Recorder) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := r.now().Add(-retention)
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM login_logs WHERE login_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge login attempts: %w", err)
	}
	return result.RowsAffected()
}

func (r *Recorder) query(ctx context.Context, query string, args ...interface{}) ([]*LoginAttempt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*LoginAttempt
	for rows.Next() {
		attempt := &LoginAttempt{}
		var userID sql.NullInt64
		var ipAddress, userAgent, errorMessage sql.NullString

		err := rows.Scan(&attempt.ID, &userID, &attempt.Timestamp, &ipAddress,
			&userAgent, &attempt.Method, &attempt.Success, &errorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}

		if userID.Valid {
			attempt.UserID = &userID.Int64
		}
		attempt.ClientIP = ipAddress.String
		attempt.UserAgent = userAgent.String
		attempt.ErrorMessage = errorMessage.String

		attempts = append(attempts, attempt)
	}

	return attempts, rows.Err()
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
