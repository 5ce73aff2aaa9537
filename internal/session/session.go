// Package session issues, validates and destroys server-side sessions
// referenced by an opaque cookie value.
package session

import (
	"context"
	"errors"
	"time"

	"household-expenses/internal/apperr"
	"household-expenses/internal/auth"
	"household-expenses/internal/logging"
	"household-expenses/internal/models"
	"household-expenses/internal/storage"
)

// Duration is the sliding lifetime of a session (30 days).
const Duration = 30 * 24 * time.Hour

// Manager owns the session lifecycle on top of a SessionStore.
type Manager struct {
	store storage.SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a Manager with the default 30-day rolling lifetime.
func NewManager(store storage.SessionStore) *Manager {
	return &Manager{store: store, ttl: Duration, now: time.Now}
}

// TTL is the lifetime granted on start and on every validation.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Start issues a fresh session for user. Any session bound to prevToken is
// removed first so a pre-set cookie value can never be promoted.
func (m *Manager) Start(ctx context.Context, prevToken string, user models.SessionUser) (*models.Session, error) {
	if prevToken != "" {
		if err := m.store.DeleteSession(ctx, prevToken); err != nil {
			return nil, apperr.Session("failed to drop previous session", err)
		}
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, apperr.Session("failed to generate session token", err)
	}

	now := m.now()
	sess := &models.Session{
		Token:        token,
		UserID:       user.ID,
		User:         user,
		ExpiresAt:    now.Add(m.ttl),
		LastActivity: now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, apperr.Session("failed to save session", err)
	}
	return sess, nil
}

// Validate resolves token to a live session and slides its expiry. Any
// failure, including store errors, reports ok == false.
func (m *Manager) Validate(ctx context.Context, token string) (*models.Session, bool) {
	if !auth.ValidSessionToken(token) {
		return nil, false
	}

	now := m.now()
	sess, err := m.store.GetSession(ctx, token, now)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logging.FromContext(ctx).
				WithField(logging.FieldComponent, logging.ComponentSession).
				WithError(err).
				Error("session lookup failed")
		}
		return nil, false
	}

	expiresAt := now.Add(m.ttl)
	if err := m.store.TouchSession(ctx, token, now, expiresAt); err != nil {
		// The session is still valid until its old expiry.
		logging.FromContext(ctx).
			WithField(logging.FieldComponent, logging.ComponentSession).
			WithError(err).
			Warn("failed to extend session")
		return sess, true
	}
	sess.ExpiresAt = expiresAt
	sess.LastActivity = now
	return sess, true
}

// Destroy removes the session. Unknown tokens are not an error.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.DeleteSession(ctx, token); err != nil {
		return apperr.Session("failed to delete session", err)
	}
	return nil
}

// Cleanup removes sessions that expired before now.
func (m *Manager) Cleanup(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, apperr.Session("failed to delete expired sessions", err)
	}
	return n, nil
}
