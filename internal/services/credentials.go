// Package services holds the business rules between the HTTP layer and the
// stores: input validation, error translation and event publishing.
package services

import (
	"context"
	"errors"
	"strings"

	"household-expenses/internal/apperr"
	"household-expenses/internal/auth"
	"household-expenses/internal/models"
	"household-expenses/internal/storage"
)

const invalidCredentials = "Invalid credentials."

// CredentialService registers and authenticates users.
type CredentialService struct {
	users storage.UserStore
}

func NewCredentialService(users storage.UserStore) *CredentialService {
	return &CredentialService{users: users}
}

// Register creates a non-admin user.
func (s *CredentialService) Register(ctx context.Context, name, password, relation string) (models.UserSummary, error) {
	return s.create(ctx, name, password, relation, false)
}

// CreateAdmin creates a user with the admin flag set. Admins cannot be
// created over HTTP.
func (s *CredentialService) CreateAdmin(ctx context.Context, name, password, relation string) (models.UserSummary, error) {
	return s.create(ctx, name, password, relation, true)
}

func (s *CredentialService) create(ctx context.Context, name, password, relation string, admin bool) (models.UserSummary, error) {
	name = strings.TrimSpace(name)
	relation = strings.TrimSpace(relation)
	if name == "" || strings.TrimSpace(password) == "" || relation == "" {
		return models.UserSummary{}, apperr.Validation("Name, password and relation are required.")
	}
	if len(password) > auth.MaxPasswordBytes {
		return models.UserSummary{}, apperr.Validation("Password must be at most 72 bytes.")
	}

	exists, err := s.users.UserExists(ctx, name)
	if err != nil {
		return models.UserSummary{}, apperr.Internal("failed to check user", err)
	}
	if exists {
		return models.UserSummary{}, apperr.Conflict("User already exists.")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.UserSummary{}, apperr.Internal("failed to hash password", err)
	}

	u := &models.User{Name: name, PasswordHash: hash, Relation: relation, IsAdmin: admin}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return models.UserSummary{}, apperr.Conflict("User already exists.")
		}
		return models.UserSummary{}, apperr.Internal("failed to create user", err)
	}
	return u.Summary(), nil
}

// Authenticate checks name and password. Unknown names and wrong passwords
// produce the same error and take comparable time.
func (s *CredentialService) Authenticate(ctx context.Context, name, password string) (models.UserSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return models.UserSummary{}, apperr.Validation("Name and password are required.")
	}

	u, err := s.users.GetUserByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		auth.BurnPasswordCheck(password)
		return models.UserSummary{}, apperr.Auth(invalidCredentials)
	}
	if err != nil {
		return models.UserSummary{}, apperr.Internal("failed to load user", err)
	}

	if !auth.CheckPassword(password, u.PasswordHash) {
		return models.UserSummary{}, apperr.Auth(invalidCredentials)
	}
	return u.Summary(), nil
}
