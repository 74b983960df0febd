package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/woozymasta/masterlist/internal/models"
	"github.com/woozymasta/masterlist/internal/schema"
)

const instanceColumns = `id, game_id, name, description, schema, is_active, created_at, updated_at`

func scanInstance(s scanner) (models.Instance, error) {
	var (
		in  models.Instance
		raw string
	)
	if err := s.Scan(&in.ID, &in.GameID, &in.Name, &in.Description, &raw, &in.IsActive, &in.CreatedAt, &in.UpdatedAt); err != nil {
		return models.Instance{}, err
	}
	if err := json.Unmarshal([]byte(raw), &in.Schema); err != nil {
		return models.Instance{}, fmt.Errorf("decode schema of instance %d: %w", in.ID, err)
	}
	if in.Schema == nil {
		in.Schema = []models.SchemaField{}
	}
	return in, nil
}

func validateInstance(in models.InstanceInput, create bool) error {
	errs := models.ValidationErrors{}

	if create && in.GameID == nil {
		errs.Add("game_id", "The game_id field is required.")
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
	if in.Schema != nil {
		if _, err := schema.Compile(*in.Schema); err != nil {
			var verr models.ValidationErrors
			if !errors.As(err, &verr) {
				return err
			}
			for f, msg := range verr {
				errs.Add(f, msg)
			}
		}
	}

	return errs.Err()
}

func encodeSchema(fields []models.SchemaField) (string, error) {
	if fields == nil {
		fields = []models.SchemaField{}
	}
	b, err := json.Marshal(fields)
	return string(b), err
}

// CreateInstance inserts an instance for an existing game.
func (r *Repository) CreateInstance(ctx context.Context, in models.InstanceInput) (models.Instance, error) {
	if err := validateInstance(in, true); err != nil {
		return models.Instance{}, err
	}

	inst := models.Instance{
		GameID:   *in.GameID,
		Name:     *in.Name,
		IsActive: true,
		Schema:   []models.SchemaField{},
	}
	if in.Description != nil {
		inst.Description = *in.Description
	}
	if in.IsActive != nil {
		inst.IsActive = *in.IsActive
	}
	if in.Schema != nil {
		inst.Schema = *in.Schema
	}
	inst.CreatedAt = r.now()
	inst.UpdatedAt = inst.CreatedAt

	raw, err := encodeSchema(inst.Schema)
	if err != nil {
		return models.Instance{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO instances (game_id, name, description, schema, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inst.GameID, inst.Name, inst.Description, raw, inst.IsActive, inst.CreatedAt, inst.UpdatedAt,
	)
	switch {
	case isUnique(err):
		return models.Instance{}, fmt.Errorf("%w: instance %q", models.ErrConflict, inst.Name)
	case isForeignKey(err):
		return models.Instance{}, models.FieldError("game_id", "The selected game_id is invalid.")
	case err != nil:
		return models.Instance{}, fmt.Errorf("insert instance: %w", err)
	}

	if inst.ID, err = res.LastInsertId(); err != nil {
		return models.Instance{}, err
	}
	return inst, nil
}

// UpdateInstance applies the non nil fields of in to an instance.
func (r *Repository) UpdateInstance(ctx context.Context, id int64, in models.InstanceInput) (models.Instance, error) {
	if err := validateInstance(in, false); err != nil {
		return models.Instance{}, err
	}

	inst, ok, err := r.GetInstance(ctx, id)
	if err != nil {
		return models.Instance{}, err
	}
	if !ok {
		return models.Instance{}, fmt.Errorf("%w: instance %d", models.ErrNotFound, id)
	}

	if in.GameID != nil {
		inst.GameID = *in.GameID
	}
	if in.Name != nil {
		inst.Name = *in.Name
	}
	if in.Description != nil {
		inst.Description = *in.Description
	}
	if in.IsActive != nil {
		inst.IsActive = *in.IsActive
	}
	if in.Schema != nil {
		inst.Schema = *in.Schema
	}
	inst.UpdatedAt = r.now()

	raw, err := encodeSchema(inst.Schema)
	if err != nil {
		return models.Instance{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE instances SET game_id = ?, name = ?, description = ?, schema = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		inst.GameID, inst.Name, inst.Description, raw, inst.IsActive, inst.UpdatedAt, id,
	)
	switch {
	case isUnique(err):
		return models.Instance{}, fmt.Errorf("%w: instance %q", models.ErrConflict, inst.Name)
	case isForeignKey(err):
		return models.Instance{}, models.FieldError("game_id", "The selected game_id is invalid.")
	case err != nil:
		return models.Instance{}, fmt.Errorf("update instance %d: %w", id, err)
	}

	return inst, nil
}

// ReplaceSchema swaps the schema of an instance.
func (r *Repository) ReplaceSchema(ctx context.Context, id int64, fields []models.SchemaField) (models.Instance, error) {
	return r.UpdateInstance(ctx, id, models.InstanceInput{Schema: &fields})
}

// DeleteInstance removes an instance.
func (r *Repository) DeleteInstance(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete instance %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: instance %d", models.ErrNotFound, id)
	}
	return nil
}

// GetInstance returns an instance by id.
func (r *Repository) GetInstance(ctx context.Context, id int64) (models.Instance, bool, error) {
	inst, err := scanInstance(r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Instance{}, false, nil
	}
	if err != nil {
		return models.Instance{}, false, fmt.Errorf("get instance %d: %w", id, err)
	}
	return inst, true, nil
}

// ListInstances returns the instances of a game, or of every game when gameID is 0.
func (r *Repository) ListInstances(ctx context.Context, gameID int64) ([]models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances`
	var args []any
	if gameID != 0 {
		query += ` WHERE game_id = ?`
		args = append(args, gameID)
	}
	query += ` ORDER BY game_id, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// InstanceSchema returns the schema of an active instance of the game with the given app id.
func (r *Repository) InstanceSchema(ctx context.Context, appID int64, name string) ([]models.SchemaField, bool, error) {
	inst, err := scanInstance(r.db.QueryRowContext(ctx, `
		SELECT i.id, i.game_id, i.name, i.description, i.schema, i.is_active, i.created_at, i.updated_at
		FROM instances i JOIN games g ON g.id = i.game_id
		WHERE g.app_id = ? AND i.name = ? AND i.is_active = 1`, appID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("instance schema %q: %w", name, err)
	}
	return inst.Schema, true, nil
}
