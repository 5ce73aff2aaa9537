// Package sqlite implements the storage contracts on an embedded SQLite
// database. It backs local development, the adduser CLI and the tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"household-expenses/internal/models"
	"household-expenses/internal/storage"
)

var _ storage.Store = (*DB)(nil)

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}

	// Every connection to ":memory:" is a separate database.
	if isMemory(path) {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Ping checks the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func newID() string { return uuid.NewString() }

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// CreateUser creates a new user. The name must be unique.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now()
	u.ID = newID()
	u.CreatedAt = now.UTC().Truncate(time.Millisecond)
	u.UpdatedAt = u.CreatedAt

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, password_hash, relation, is_admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.PasswordHash, u.Relation, u.IsAdmin, millis(u.CreatedAt), millis(u.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %q: %w", u.Name, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByName retrieves a user by exact name.
func (db *DB) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, password_hash, relation, is_admin, created_at, updated_at
		 FROM users WHERE name = ?`,
		name,
	)

	var (
		u                    models.User
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Name, &u.PasswordHash, &u.Relation, &u.IsAdmin, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

// UserExists reports whether a user with this exact name exists.
func (db *DB) UserExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateSession stores a new session.
func (db *DB) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		s.Token, s.UserID, millis(s.ExpiresAt), millis(s.LastActivity),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns the live session for token along with its user.
func (db *DB) GetSession(ctx context.Context, token string, now time.Time) (*models.Session, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT s.token, u.id, u.name, u.relation, u.is_admin, s.expires_at, s.last_activity
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, millis(now))

	var (
		s                       models.Session
		expiresAt, lastActivity int64
	)
	err := row.Scan(&s.Token, &s.User.ID, &s.User.Name, &s.User.Relation, &s.User.IsAdmin, &expiresAt, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.UserID = s.User.ID
	s.ExpiresAt = fromMillis(expiresAt)
	s.LastActivity = fromMillis(lastActivity)
	return &s, nil
}

// TouchSession updates last_activity and expires_at for a session.
func (db *DB) TouchSession(ctx context.Context, token string, lastActivity, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		millis(lastActivity), millis(expiresAt), token,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all sessions that expired at or before now.
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", millis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
