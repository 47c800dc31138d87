package auditlog

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amorlabs/amorauth/pkg/directory"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRecorder(t *testing.T, opts ...Option) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS login_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	recorder, err := NewRecorder(db, quietLogger(), opts...)
	require.NoError(t, err)

	return recorder, mock
}

func attemptRows(attempts ...*LoginAttempt) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "login_time", "ip_address", "user_agent",
		"login_type", "success", "error_message",
	})
	for _, a := range attempts {
		var userID interface{}
		if a.UserID != nil {
			userID = *a.UserID
		}
		rows.AddRow(a.ID, userID, a.Timestamp, a.ClientIP, a.UserAgent,
			a.Method, a.Success, a.ErrorMessage)
	}
	return rows
}

func TestNewRecorder(t *testing.T) {
	t.Run("nil db rejected", func(t *testing.T) {
		_, err := NewRecorder(nil, quietLogger())
		assert.Error(t, err)
	})

	t.Run("ensure table failure propagates", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS login_logs").
			WillReturnError(errors.New("permission denied"))

		_, err = NewRecorder(db, quietLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ensure login_logs table")
	})
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC)
	meta := RequestMeta{
		ForwardedFor: "203.0.113.5, 10.0.0.1",
		UserAgent:    "Mozilla/5.0",
		RemoteAddr:   "10.0.0.1:443",
	}

	t.Run("successful login for a user", func(t *testing.T) {
		recorder, mock := newTestRecorder(t, WithClock(func() time.Time { return fixed }))
		user := &directory.User{ID: 7, Email: "alice@example.com"}

		mock.ExpectQuery("INSERT INTO login_logs").
			WithArgs(user.ID, fixed, "203.0.113.5", "Mozilla/5.0",
				MethodGoogleOAuth2, true, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

		recorder.Record(ctx, user, meta, true, "")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed login without a user has null user_id", func(t *testing.T) {
		recorder, mock := newTestRecorder(t, WithClock(func() time.Time { return fixed }))

		mock.ExpectQuery("INSERT INTO login_logs").
			WithArgs(nil, fixed, "203.0.113.5", "Mozilla/5.0",
				MethodGoogleOAuth2, false, "identity resolution failed").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

		recorder.Record(ctx, nil, meta, false, "identity resolution failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure is swallowed", func(t *testing.T) {
		recorder, mock := newTestRecorder(t)

		mock.ExpectQuery("INSERT INTO login_logs").
			WillReturnError(errors.New("connection refused"))

		// Must not panic or surface the error.
		recorder.Record(ctx, nil, meta, false, "boom")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("returns attempts newest first", func(t *testing.T) {
		recorder, mock := newTestRecorder(t)
		userID := int64(7)
		newest := &LoginAttempt{
			ID: 2, UserID: &userID, Timestamp: time.Now().UTC(),
			ClientIP: "203.0.113.5", Method: MethodGoogleOAuth2, Success: true,
		}
		older := &LoginAttempt{
			ID: 1, UserID: &userID, Timestamp: time.Now().UTC().Add(-time.Hour),
			ClientIP: "203.0.113.5", Method: MethodGoogleOAuth2, Success: false,
			ErrorMessage: "identity resolution failed",
		}

		mock.ExpectQuery("SELECT .+ FROM login_logs").
			WithArgs(userID, 5).
			WillReturnRows(attemptRows(newest, older))

		attempts, err := recorder.History(ctx, userID, 5)
		require.NoError(t, err)
		require.Len(t, attempts, 2)
		assert.Equal(t, int64(2), attempts[0].ID)
		assert.True(t, attempts[0].Success)
		assert.Equal(t, "identity resolution failed", attempts[1].ErrorMessage)
	})

	t.Run("non-positive limit uses default of 10", func(t *testing.T) {
		recorder, mock := newTestRecorder(t)

		mock.ExpectQuery("SELECT .+ FROM login_logs").
			WithArgs(int64(7), 10).
			WillReturnRows(attemptRows())

		_, err := recorder.History(ctx, 7, 0)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure propagates", func(t *testing.T) {
		recorder, mock := newTestRecorder(t)

		mock.ExpectQuery("SELECT .+ FROM login_logs").
			WillReturnError(errors.New("connection refused"))

		_, err := recorder.History(ctx, 7, 5)
		assert.Error(t, err)
	})
}

func TestRecent(t *testing.T) {
	ctx := context.Background()

	t.Run("non-positive limit uses default of 20", func(t *testing.T) {
		recorder, mock := newTestRecorder(t)

		mock.ExpectQuery("SELECT .+ FROM login_logs").
			WithArgs(20).
			WillReturnRows(attemptRows())

		_, err := recorder.Recent(ctx, -1)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null user_id scans to nil", func(t *testing.T) {
		recorder, mock := newTestRecorder(t)
		anon := &LoginAttempt{
			ID: 3, Timestamp: time.Now().UTC(), ClientIP: "203.0.113.5",
			Method: MethodGoogleOAuth2, Success: false,
		}

		mock.ExpectQuery("SELECT .+ FROM login_logs").
			WithArgs(20).
			WillReturnRows(attemptRows(anon))

		attempts, err := recorder.Recent(ctx, 0)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Nil(t, attempts[0].UserID)
	})
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	recorder, mock := newTestRecorder(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := recorder.Count(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestLatestByUser(t *testing.T) {
	ctx := context.Background()

	t.Run("returns newest attempt", func(t *testing.T) {
		recorder, mock := newTestRecorder(t)
		userID := int64(7)
		attempt := &LoginAttempt{
			ID: 5, UserID: &userID, Timestamp: time.Now().UTC(),
			ClientIP: "203.0.113.5", Method: MethodGoogleOAuth2, Success: true,
		}

		mock.ExpectQuery("SELECT .+ FROM login_logs").
			WithArgs(userID, 1).
			WillReturnRows(attemptRows(attempt))

		got, err := recorder.LatestByUser(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(5), got.ID)
	})

	t.Run("nil when no attempts", func(t *testing.T) {
		recorder, mock := newTestRecorder(t)

		mock.ExpectQuery("SELECT .+ FROM login_logs").
			WithArgs(int64(7), 1).
			WillReturnRows(attemptRows())

		got, err := recorder.LatestByUser(ctx, 7)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 8, 15, 0, 30, 0, 0, time.UTC)
	recorder, mock := newTestRecorder(t, WithClock(func() time.Time { return fixed }))

	retention := 90 * 24 * time.Hour
	mock.ExpectExec("DELETE FROM login_logs").
		WithArgs(fixed.Add(-retention)).
		WillReturnResult(sqlmock.NewResult(0, 123))

	purged, err := recorder.Purge(ctx, retention)
	require.NoError(t, err)
	assert.Equal(t, int64(123), purged)
}
