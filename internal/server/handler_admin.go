package server

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/masterlist/internal/models"
	"github.com/woozymasta/masterlist/internal/registry"
	"github.com/woozymasta/masterlist/internal/schema"
)

// gameByPath loads the catalog game named by the {id} path value.
func (s *Server) gameByPath(w http.ResponseWriter, r *http.Request) (models.Game, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return models.Game{}, false
	}

	g, found, err := s.catalog.GetGame(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return models.Game{}, false
	}
	if !found {
		writeError(w, r, fmt.Errorf("%w: game %d", models.ErrNotFound, id))
		return models.Game{}, false
	}
	return g, true
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.catalog.ListGames(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if games == nil {
		games = []models.Game{}
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var in models.GameInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	g, err := s.catalog.CreateGame(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Int64("game_id", g.AppID).Str("name", g.Name).Msg("Game created")
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	if g, ok := s.gameByPath(w, r); ok {
		writeJSON(w, http.StatusOK, g)
	}
}

// handleUpdateGame updates a game. Moving a game to another app id drops the
// namespace of the old one.
func (s *Server) handleUpdateGame(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var in models.GameInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	prev, next, err := s.catalog.UpdateGame(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if prev.AppID != next.AppID {
		if err := s.registry.ClearTenant(r.Context(), prev.AppID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if prev.IsActive != next.IsActive {
		log.Info().Int64("game_id", next.AppID).Bool("active", next.IsActive).Msg("Game activation changed")
	}

	writeJSON(w, http.StatusOK, next)
}

// handleDeleteGame removes a game with its instances and keys and clears its namespace.
func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	g, err := s.catalog.DeleteGame(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.registry.ClearTenant(r.Context(), g.AppID); err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Int64("game_id", g.AppID).Msg("Game deleted")
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", Message: "Game deleted"})
}

func (s *Server) handleGameStats(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameByPath(w, r)
	if !ok {
		return
	}

	stats, err := s.registry.GameStats(r.Context(), g.AppID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleCurrentStats returns the cached current stats of a game.
func (s *Server) handleCurrentStats(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameByPath(w, r)
	if !ok {
		return
	}

	stats, err := s.registry.CurrentStats(r.Context(), g.AppID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleHourlyStats returns the trailing hourly history of a game, oldest first.
// Query params: ?hours=24 (1..168)
func (s *Server) handleHourlyStats(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameByPath(w, r)
	if !ok {
		return
	}

	hours, err := queryInt(r, "hours", registry.DefaultHistoryHours)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hours < 1 || hours > registry.MaxHistoryHours {
		writeError(w, r, models.FieldError("hours",
			fmt.Sprintf("The hours must be between 1 and %d.", registry.MaxHistoryHours)))
		return
	}

	hourly, err := s.registry.HourlyStats(r.Context(), g.AppID, hours)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hourly)
}

// handleGameServers pages through the servers alive under the read threshold.
// Query params: ?page=1&per_page=50
func (s *Server) handleGameServers(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameByPath(w, r)
	if !ok {
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "per_page", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.registry.Servers(r.Context(), g.AppID, page, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// createdKey is the one response that ever carries a key secret.
type createdKey struct {
	Secret string `json:"secret"`
	models.APIKey
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameByPath(w, r)
	if !ok {
		return
	}

	keys, err := s.catalog.ListAPIKeys(r.Context(), g.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var in struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &in) {
		return
	}

	k, err := s.catalog.CreateAPIKey(r.Context(), id, in.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Int64("game_id", k.AppID).Str("key_id", k.ID).Msg("API key created")
	writeJSON(w, http.StatusCreated, createdKey{APIKey: k, Secret: k.Secret})
}

func (s *Server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	keyID := r.PathValue("keyId")

	if err := s.catalog.RevokeAPIKey(r.Context(), id, keyID); err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Int64("game", id).Str("key_id", keyID).Msg("API key revoked")
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", Message: "API key revoked"})
}

// handleListInstances lists instances, optionally of one catalog game.
// Query params: ?game_id=1
func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	gameID, err := queryInt(r, "game_id", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := s.catalog.ListInstances(r.Context(), int64(gameID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Instance{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var in models.InstanceInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	inst, err := s.catalog.CreateInstance(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

// instanceByPath loads the instance named by the {id} path value.
func (s *Server) instanceByPath(w http.ResponseWriter, r *http.Request) (models.Instance, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return models.Instance{}, false
	}

	inst, found, err := s.catalog.GetInstance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return models.Instance{}, false
	}
	if !found {
		writeError(w, r, fmt.Errorf("%w: instance %d", models.ErrNotFound, id))
		return models.Instance{}, false
	}
	return inst, true
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	if inst, ok := s.instanceByPath(w, r); ok {
		writeJSON(w, http.StatusOK, inst)
	}
}

func (s *Server) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var in models.InstanceInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	inst, err := s.catalog.UpdateInstance(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := s.catalog.DeleteInstance(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", Message: "Instance deleted"})
}

// handleReplaceSchema swaps the whole schema of an instance.
// Body: {"schema": [{"name": "mods", "type": "array", "required": true}]}
func (s *Server) handleReplaceSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var in struct {
		Schema []models.SchemaField `json:"schema"`
	}
	if !s.decodeJSON(w, r, &in) {
		return
	}

	inst, err := s.catalog.ReplaceSchema(r.Context(), id, in.Schema)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// handleValidateMetadata checks a metadata payload against the schema of an instance
// without storing anything.
// Body: {"metadata": {...}}
func (s *Server) handleValidateMetadata(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceByPath(w, r)
	if !ok {
		return
	}

	var in struct {
		Metadata map[string]any `json:"metadata"`
	}
	if !s.decodeJSON(w, r, &in) {
		return
	}

	sc, err := schema.Compile(inst.Schema)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sc.Validate(in.Metadata); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}
