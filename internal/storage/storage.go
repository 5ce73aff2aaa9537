// Package storage declares the persistence contracts the services depend on.
// Implementations live in the sqlite and mongo subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"household-expenses/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// UserStore persists user identities.
type UserStore interface {
	// CreateUser fills in u.ID and timestamps. Returns ErrDuplicate when
	// the name is taken.
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	UserExists(ctx context.Context, name string) (bool, error)
	UserCount(ctx context.Context) (int, error)
}

// ExpenseStore persists expense records.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e *models.Expense) error
	// ListExpenses returns matching expenses ordered by date descending.
	ListExpenses(ctx context.Context, f models.ExpenseFilter) ([]models.Expense, error)
	SumExpensesSince(ctx context.Context, since time.Time) (float64, error)
	DeleteExpense(ctx context.Context, id string) error
	// ResetExpenseData removes every expense and the configuration document.
	// Users and sessions are kept.
	ResetExpenseData(ctx context.Context) error
}

// ConfigStore persists the single configuration document.
type ConfigStore interface {
	GetOrCreateConfig(ctx context.Context, now time.Time) (*models.Config, error)
	UpsertConfig(ctx context.Context, patch models.ConfigPatch, updatedBy string, now time.Time) (*models.Config, error)
}

// SessionStore persists server-side sessions keyed by token.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	// GetSession returns ErrNotFound for unknown or expired tokens.
	GetSession(ctx context.Context, token string, now time.Time) (*models.Session, error)
	TouchSession(ctx context.Context, token string, lastActivity, expiresAt time.Time) error
	// DeleteSession succeeds when the session is already gone.
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Store bundles every capability a backend provides.
type Store interface {
	UserStore
	ExpenseStore
	ConfigStore
	SessionStore
	Ping(ctx context.Context) error
	Close() error
}
