package services

import (
	"context"
	"strings"
	"time"

	"household-expenses/internal/apperr"
	"household-expenses/internal/models"
	"household-expenses/internal/storage"
)

// DefaultActor stamps config updates that carry no user name.
const DefaultActor = "api"

// ConfigService manages the single configuration document.
type ConfigService struct {
	store storage.ConfigStore
	now   func() time.Time
}

func NewConfigService(store storage.ConfigStore) *ConfigService {
	return &ConfigService{store: store, now: time.Now}
}

// GetOrCreate returns the config, creating the empty default on first use.
func (s *ConfigService) GetOrCreate(ctx context.Context) (*models.Config, error) {
	cfg, err := s.store.GetOrCreateConfig(ctx, s.now())
	if err != nil {
		return nil, apperr.Internal("failed to load config", err)
	}
	return cfg, nil
}

// Upsert overwrites the fields present in patch.
func (s *ConfigService) Upsert(ctx context.Context, patch models.ConfigPatch, updatedBy string) (*models.Config, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	if strings.TrimSpace(updatedBy) == "" {
		updatedBy = DefaultActor
	}

	cfg, err := s.store.UpsertConfig(ctx, patch, updatedBy, s.now())
	if err != nil {
		return nil, apperr.Internal("failed to update config", err)
	}
	return cfg, nil
}

func validatePatch(patch models.ConfigPatch) error {
	if patch.Subcategories != nil {
		for category := range *patch.Subcategories {
			if strings.TrimSpace(category) == "" {
				return apperr.Validation("Subcategory keys must be non-empty category names.")
			}
		}
	}
	return nil
}
