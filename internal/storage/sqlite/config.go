package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"household-expenses/internal/models"
)

// The config table holds at most one row, pinned to id 1 by a CHECK
// constraint.
const configRowID = 1

// GetOrCreateConfig returns the config row, inserting the empty default
// first if none exists.
func (db *DB) GetOrCreateConfig(ctx context.Context, now time.Time) (*models.Config, error) {
	if err := ensureConfig(ctx, db.conn, now); err != nil {
		return nil, err
	}
	return loadConfig(ctx, db.conn)
}

// UpsertConfig overwrites the provided fields, creating the row if needed.
func (db *DB) UpsertConfig(ctx context.Context, patch models.ConfigPatch, updatedBy string, now time.Time) (*models.Config, error) {
	categories, err := jsonOrNil(patch.Categories)
	if err != nil {
		return nil, err
	}
	subcategories, err := jsonOrNil(patch.Subcategories)
	if err != nil {
		return nil, err
	}
	modes, err := jsonOrNil(patch.Modes)
	if err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin config upsert: %w", err)
	}
	defer tx.Rollback()

	if err := ensureConfig(ctx, tx, now); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE config SET
			categories = COALESCE(?, categories),
			subcategories = COALESCE(?, subcategories),
			modes = COALESCE(?, modes),
			updated_by = ?,
			updated_at = ?
		WHERE id = ?`,
		categories, subcategories, modes, updatedBy, millis(now), configRowID,
	)
	if err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}

	cfg, err := loadConfig(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit config upsert: %w", err)
	}
	return cfg, nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensureConfig(ctx context.Context, q execQuerier, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO config (id, public_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		configRowID, newID(), millis(now), millis(now),
	)
	if err != nil {
		return fmt.Errorf("create default config: %w", err)
	}
	return nil
}

func loadConfig(ctx context.Context, q execQuerier) (*models.Config, error) {
	var (
		cfg                              models.Config
		categories, subcategories, modes string
		createdAt, updatedAt             int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT public_id, categories, subcategories, modes, updated_by, created_at, updated_at
		 FROM config WHERE id = ?`,
		configRowID,
	).Scan(&cfg.ID, &categories, &subcategories, &modes, &cfg.UpdatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := json.Unmarshal([]byte(categories), &cfg.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if err := json.Unmarshal([]byte(subcategories), &cfg.Subcategories); err != nil {
		return nil, fmt.Errorf("decode subcategories: %w", err)
	}
	if err := json.Unmarshal([]byte(modes), &cfg.Modes); err != nil {
		return nil, fmt.Errorf("decode modes: %w", err)
	}
	cfg.CreatedAt = fromMillis(createdAt)
	cfg.UpdatedAt = fromMillis(updatedAt)
	cfg.Normalize()
	return &cfg, nil
}

// jsonOrNil encodes v when set. A nil result leaves the column untouched.
func jsonOrNil[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(*v)
	if err != nil {
		return nil, fmt.Errorf("encode config field: %w", err)
	}
	return string(b), nil
}
