// Package maintenance runs the periodic registry jobs and the one-shot CLI tasks.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/masterlist/internal/config"
	"github.com/woozymasta/masterlist/internal/models"
	"github.com/woozymasta/masterlist/internal/setup"
	"github.com/woozymasta/masterlist/internal/storage"
)

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(ctx context.Context, cfg *config.Config, repo *storage.Repository, state *setup.State, out io.Writer) (bool, error) {
	ran := false

	if cfg.Tasks.SetupReset {
		ran = true
		if err := state.Reset(); err != nil {
			return true, err
		}
		log.Info().Str("path", state.Path()).Msg("Setup state reset")
	}

	if cfg.Tasks.CreateGame != "" {
		ran = true
		if err := createGame(ctx, repo, cfg.Tasks.CreateGame, out); err != nil {
			return true, err
		}
	}

	return ran, nil
}

// createGame creates (or reuses) a game and prints a fresh API key pair for it.
func createGame(ctx context.Context, repo *storage.Repository, spec string, out io.Writer) error {
	appID, name, err := config.ParseGameSpec(spec)
	if err != nil {
		return err
	}

	g, err := repo.CreateGame(ctx, models.GameInput{AppID: &appID, Name: &name})
	switch {
	case errors.Is(err, models.ErrConflict):
		existing, ok, lookupErr := repo.GetGameByAppID(ctx, appID)
		if lookupErr != nil {
			return lookupErr
		}
		if !ok {
			return err
		}
		g = existing
		log.Info().Int64("game_id", appID).Msg("Game exists, issuing a new key")
	case err != nil:
		return err
	default:
		log.Info().Int64("game_id", appID).Str("name", name).Msg("Game created")
	}

	key, err := repo.CreateAPIKey(ctx, g.ID, "bootstrap")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "game:   %d (%s)\nkey:    %s\nsecret: %s\n", g.AppID, g.Name, key.Key, key.Secret)
	return err
}
