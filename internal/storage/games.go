package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/woozymasta/masterlist/internal/models"
)

// Memory limit bounds of a game, in MB.
const (
	MinMemoryLimitMB = 1
	MaxMemoryLimitMB = 10
)

const gameColumns = `id, app_id, name, description, is_active, memory_limit_mb, created_at, updated_at`

func scanGame(s scanner) (models.Game, error) {
	var g models.Game
	err := s.Scan(&g.ID, &g.AppID, &g.Name, &g.Description, &g.IsActive, &g.MemoryLimitMB, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func validateGame(in models.GameInput, create bool) error {
	errs := models.ValidationErrors{}

	if create && in.AppID == nil {
		errs.Add("app_id", "The app_id field is required.")
	}
	if in.AppID != nil && *in.AppID < 1 {
		errs.Add("app_id", "The app_id must be at least 1.")
	}
	if create && in.Name == nil {
		errs.Add("name", "The name field is required.")
	}
	if in.Name != nil {
		switch {
		case *in.Name == "":
			errs.Add("name", "The name field is required.")
		case len(*in.Name) > 255:
			errs.Add("name", "The name may not be greater than 255 characters.")
		}
	}
	if in.Description != nil && len(*in.Description) > 1000 {
		errs.Add("description", "The description may not be greater than 1000 characters.")
	}
	if in.MemoryLimitMB != nil && (*in.MemoryLimitMB < MinMemoryLimitMB || *in.MemoryLimitMB > MaxMemoryLimitMB) {
		errs.Add("memory_limit_mb", fmt.Sprintf("The memory_limit_mb must be between %d and %d.", MinMemoryLimitMB, MaxMemoryLimitMB))
	}

	return errs.Err()
}

// CreateGame inserts a game. Missing optional fields default to active with a 1 MB limit.
func (r *Repository) CreateGame(ctx context.Context, in models.GameInput) (models.Game, error) {
	if err := validateGame(in, true); err != nil {
		return models.Game{}, err
	}

	g := models.Game{
		AppID:         *in.AppID,
		Name:          *in.Name,
		IsActive:      true,
		MemoryLimitMB: MinMemoryLimitMB,
	}
	if in.Description != nil {
		g.Description = *in.Description
	}
	if in.IsActive != nil {
		g.IsActive = *in.IsActive
	}
	if in.MemoryLimitMB != nil {
		g.MemoryLimitMB = *in.MemoryLimitMB
	}
	g.CreatedAt = r.now()
	g.UpdatedAt = g.CreatedAt

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO games (app_id, name, description, is_active, memory_limit_mb, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.AppID, g.Name, g.Description, g.IsActive, g.MemoryLimitMB, g.CreatedAt, g.UpdatedAt,
	)
	if isUnique(err) {
		return models.Game{}, fmt.Errorf("%w: game with app_id %d", models.ErrConflict, g.AppID)
	}
	if err != nil {
		return models.Game{}, fmt.Errorf("insert game: %w", err)
	}

	if g.ID, err = res.LastInsertId(); err != nil {
		return models.Game{}, err
	}
	return g, nil
}

// UpdateGame applies the non nil fields of in to a game and returns the previous and new state.
func (r *Repository) UpdateGame(ctx context.Context, id int64, in models.GameInput) (prev, next models.Game, err error) {
	if err := validateGame(in, false); err != nil {
		return models.Game{}, models.Game{}, err
	}

	prev, ok, err := r.GetGame(ctx, id)
	if err != nil {
		return models.Game{}, models.Game{}, err
	}
	if !ok {
		return models.Game{}, models.Game{}, fmt.Errorf("%w: game %d", models.ErrNotFound, id)
	}

	next = prev
	if in.AppID != nil {
		next.AppID = *in.AppID
	}
	if in.Name != nil {
		next.Name = *in.Name
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}
	if in.MemoryLimitMB != nil {
		next.MemoryLimitMB = *in.MemoryLimitMB
	}
	next.UpdatedAt = r.now()

	_, err = r.db.ExecContext(ctx, `
		UPDATE games SET app_id = ?, name = ?, description = ?, is_active = ?, memory_limit_mb = ?, updated_at = ?
		WHERE id = ?`,
		next.AppID, next.Name, next.Description, next.IsActive, next.MemoryLimitMB, next.UpdatedAt, id,
	)
	if isUnique(err) {
		return models.Game{}, models.Game{}, fmt.Errorf("%w: game with app_id %d", models.ErrConflict, next.AppID)
	}
	if err != nil {
		return models.Game{}, models.Game{}, fmt.Errorf("update game %d: %w", id, err)
	}

	return prev, next, nil
}

// DeleteGame removes a game with its instances and keys, returning what was deleted.
func (r *Repository) DeleteGame(ctx context.Context, id int64) (models.Game, error) {
	g, ok, err := r.GetGame(ctx, id)
	if err != nil {
		return models.Game{}, err
	}
	if !ok {
		return models.Game{}, fmt.Errorf("%w: game %d", models.ErrNotFound, id)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id); err != nil {
		return models.Game{}, fmt.Errorf("delete game %d: %w", id, err)
	}
	return g, nil
}

// GetGame returns a game by its catalog id.
func (r *Repository) GetGame(ctx context.Context, id int64) (models.Game, bool, error) {
	return r.getGame(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id)
}

// GetGameByAppID returns a game by its public app id.
func (r *Repository) GetGameByAppID(ctx context.Context, appID int64) (models.Game, bool, error) {
	return r.getGame(ctx, `SELECT `+gameColumns+` FROM games WHERE app_id = ?`, appID)
}

func (r *Repository) getGame(ctx context.Context, query string, arg any) (models.Game, bool, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Game{}, false, nil
	}
	if err != nil {
		return models.Game{}, false, fmt.Errorf("get game: %w", err)
	}
	return g, true, nil
}

// ListGames returns every game ordered by name.
func (r *Repository) ListGames(ctx context.Context) ([]models.Game, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+gameColumns+` FROM games ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer func() { _ = rows.Close() }()

	games := []models.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// ResolveTenant maps a public app id onto its registry tenant.
func (r *Repository) ResolveTenant(ctx context.Context, appID int64) (models.Tenant, bool, error) {
	g, ok, err := r.GetGameByAppID(ctx, appID)
	if err != nil || !ok {
		return models.Tenant{}, ok, err
	}
	return g.Tenant(), true, nil
}

// Tenants returns the registry view of every game.
func (r *Repository) Tenants(ctx context.Context) ([]models.Tenant, error) {
	games, err := r.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Tenant, 0, len(games))
	for _, g := range games {
		out = append(out, g.Tenant())
	}
	return out, nil
}
