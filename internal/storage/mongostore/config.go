package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"household-expenses/internal/models"
)

type configDoc struct {
	ID            string              `bson:"_id"`
	Categories    []string            `bson:"categories"`
	Subcategories map[string][]string `bson:"subcategories"`
	Modes         []string            `bson:"modes"`
	UpdatedBy     string              `bson:"updatedBy"`
	CreatedAt     time.Time           `bson:"createdAt"`
	UpdatedAt     time.Time           `bson:"updatedAt"`
}

func (d *configDoc) model() *models.Config {
	cfg := &models.Config{
		ID:            d.ID,
		Categories:    d.Categories,
		Subcategories: d.Subcategories,
		Modes:         d.Modes,
		UpdatedBy:     d.UpdatedBy,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	cfg.Normalize()
	return cfg
}

var upsertAfter = options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

// GetOrCreateConfig atomically finds the config document or inserts the
// empty default.
func (s *Store) GetOrCreateConfig(ctx context.Context, now time.Time) (*models.Config, error) {
	now = now.UTC().Truncate(time.Millisecond)
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "categories", Value: []string{}},
		{Key: "subcategories", Value: map[string][]string{}},
		{Key: "modes", Value: []string{}},
		{Key: "updatedBy", Value: ""},
		{Key: "createdAt", Value: now},
		{Key: "updatedAt", Value: now},
	}}}

	var doc configDoc
	err := s.config.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: configID}}, update, upsertAfter).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("mongo couldn't FindOneAndUpdate in GetOrCreateConfig: %w", err)
	}
	return doc.model(), nil
}

// UpsertConfig sets the provided fields, creating the document with empty
// defaults for the rest when it does not exist yet.
func (s *Store) UpsertConfig(ctx context.Context, patch models.ConfigPatch, updatedBy string, now time.Time) (*models.Config, error) {
	now = now.UTC().Truncate(time.Millisecond)
	set := bson.D{
		{Key: "updatedBy", Value: updatedBy},
		{Key: "updatedAt", Value: now},
	}
	onInsert := bson.D{{Key: "createdAt", Value: now}}

	if patch.Categories != nil {
		set = append(set, bson.E{Key: "categories", Value: nonNil(*patch.Categories)})
	} else {
		onInsert = append(onInsert, bson.E{Key: "categories", Value: []string{}})
	}
	if patch.Subcategories != nil {
		subs := *patch.Subcategories
		if subs == nil {
			subs = map[string][]string{}
		}
		set = append(set, bson.E{Key: "subcategories", Value: subs})
	} else {
		onInsert = append(onInsert, bson.E{Key: "subcategories", Value: map[string][]string{}})
	}
	if patch.Modes != nil {
		set = append(set, bson.E{Key: "modes", Value: nonNil(*patch.Modes)})
	} else {
		onInsert = append(onInsert, bson.E{Key: "modes", Value: []string{}})
	}

	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: onInsert},
	}

	var doc configDoc
	err := s.config.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: configID}}, update, upsertAfter).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("mongo couldn't FindOneAndUpdate in UpsertConfig: %w", err)
	}
	return doc.model(), nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
