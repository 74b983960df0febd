package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/woozymasta/masterlist/internal/auth"
	"github.com/woozymasta/masterlist/internal/models"
)

const apiKeyColumns = `k.id, k.game_id, g.app_id, k.name, k.key, k.secret, k.is_active, k.last_used_at, k.created_at`

func scanAPIKey(s scanner) (models.APIKey, error) {
	var (
		k    models.APIKey
		used sql.NullTime
	)
	if err := s.Scan(&k.ID, &k.GameID, &k.AppID, &k.Name, &k.Key, &k.Secret, &k.IsActive, &used, &k.CreatedAt); err != nil {
		return models.APIKey{}, err
	}
	if used.Valid {
		t := used.Time
		k.LastUsedAt = &t
	}
	return k, nil
}

// CreateAPIKey generates a key pair for a game. The secret is only ever returned here.
func (r *Repository) CreateAPIKey(ctx context.Context, gameID int64, name string) (models.APIKey, error) {
	if len(name) > 255 {
		return models.APIKey{}, models.FieldError("name", "The name may not be greater than 255 characters.")
	}

	g, ok, err := r.GetGame(ctx, gameID)
	if err != nil {
		return models.APIKey{}, err
	}
	if !ok {
		return models.APIKey{}, fmt.Errorf("%w: game %d", models.ErrNotFound, gameID)
	}

	key, secret, err := auth.GenerateKeyPair()
	if err != nil {
		return models.APIKey{}, err
	}

	k := models.APIKey{
		ID:        uuid.NewString(),
		GameID:    g.ID,
		AppID:     g.AppID,
		Name:      name,
		Key:       key,
		Secret:    secret,
		IsActive:  true,
		CreatedAt: r.now(),
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, game_id, name, key, secret, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.GameID, k.Name, k.Key, k.Secret, k.IsActive, k.CreatedAt,
	)
	if err != nil {
		return models.APIKey{}, fmt.Errorf("insert api key: %w", err)
	}
	return k, nil
}

// RevokeAPIKey deactivates a key of a game.
func (r *Repository) RevokeAPIKey(ctx context.Context, gameID int64, keyID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE api_keys SET is_active = 0 WHERE id = ? AND game_id = ?`, keyID, gameID)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", keyID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: api key %s", models.ErrNotFound, keyID)
	}
	return nil
}

// ListAPIKeys returns the keys of a game, newest first.
func (r *Repository) ListAPIKeys(ctx context.Context, gameID int64) ([]models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys k JOIN games g ON g.id = k.game_id
		WHERE k.game_id = ?
		ORDER BY k.created_at DESC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// FindActiveAPIKey returns an active key by its public part.
func (r *Repository) FindActiveAPIKey(ctx context.Context, key string) (models.APIKey, bool, error) {
	k, err := scanAPIKey(r.db.QueryRowContext(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys k JOIN games g ON g.id = k.game_id
		WHERE k.key = ? AND k.is_active = 1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return models.APIKey{}, false, nil
	}
	if err != nil {
		return models.APIKey{}, false, fmt.Errorf("find api key: %w", err)
	}
	return k, true, nil
}

// TouchAPIKey records the last use of a key.
func (r *Repository) TouchAPIKey(ctx context.Context, keyID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at.UTC(), keyID)
	return err
}
