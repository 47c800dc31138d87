package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned by lookups when no user exists under the key.
var ErrNotFound = errors.New("user not found")

// StorageError wraps a backing-store failure with the operation that
// produced it. Constraint violations and connectivity failures both
// surface through this type; IsUniqueViolation distinguishes the
// insert-race case.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("user storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (two logins racing to insert the same external id).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Store is the relational backing store for users.
type Store interface {
	// FindByID looks a user up by internal id, or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*User, error)

	// FindByExternalID looks a user up by provider subject, or ErrNotFound.
	FindByExternalID(ctx context.Context, externalID string) (*User, error)

	// FindByEmail looks a user up by email, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Insert persists a new user and assigns its ID.
	Insert(ctx context.Context, user *User) (*User, error)

	// Update persists the mutable profile fields of an existing user.
	Update(ctx context.Context, user *User) error
}

// PostgresStore implements Store against PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store and ensures the users table exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	store := &PostgresStore{db: db}

	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure users table: %w", err)
	}

	return store, nil
}

// ensureTable creates the users table if it doesn't exist.
func (s *PostgresStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		google_id VARCHAR(255) NOT NULL UNIQUE,
		email VARCHAR(255),
		name VARCHAR(255),
		picture TEXT,
		locale VARCHAR(35),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`

	_, err := s.db.Exec(query)
	return err
}

const userColumns = `id, google_id, email, name, picture, locale, created_at, updated_at`

// FindByID looks a user up by internal id.
func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.findOne(ctx, "find by id",
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByExternalID looks a user up by provider subject.
func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	return s.findOne(ctx, "find by google id",
		`SELECT `+userColumns+` FROM users WHERE google_id = $1`, externalID)
}

// FindByEmail looks a user up by email.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, "find by email",
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) findOne(ctx context.Context, op, query string, arg interface{}) (*User, error) {
	user := &User{}
	var picture, locale sql.NullString

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.ExternalID, &user.Email, &user.DisplayName,
		&picture, &locale, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}

	user.PictureURL = picture.String
	user.Locale = locale.String
	return user, nil
}

// Insert persists a new user, assigning its ID.
func (s *PostgresStore) Insert(ctx context.Context, user *User) (*User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (google_id, email, name, picture, locale, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, user.ExternalID, user.Email, user.DisplayName, user.PictureURL,
		user.Locale, user.CreatedAt, user.UpdatedAt).Scan(&user.ID)
	if err != nil {
		return nil, &StorageError{Op: "insert", Err: err}
	}
	return user, nil
}

// Update persists the mutable profile fields. google_id, created_at and
// id are never touched.
func (s *PostgresStore) Update(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = $1, name = $2, picture = $3, locale = $4, updated_at = $5
		WHERE id = $6
	`, user.Email, user.DisplayName, user.PictureURL, user.Locale,
		user.UpdatedAt, user.ID)
	if err != nil {
		return &StorageError{Op: "update", Err: err}
	}
	return nil
}
