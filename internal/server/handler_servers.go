package server

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/masterlist/internal/models"
	"github.com/woozymasta/masterlist/internal/registry"
)

// registerRequest is a full server record plus the optional instance whose schema
// validates the metadata.
type registerRequest struct {
	Instance string `json:"instance,omitempty"`
	models.ServerRecord
}

// serverList is the client listing response.
type serverList struct {
	Servers []models.ServerRecord `json:"servers"`
	Count   int                   `json:"count"`
}

// handleListServers returns the online servers of a game matching the query filter.
func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	f, err := registry.ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	recs, err := s.registry.List(r.Context(), gameIDFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, serverList{Servers: recs, Count: len(recs)})
}

// handleGetServer returns a single server of a game.
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("serverId")

	rec, ok, err := s.registry.Get(r.Context(), gameIDFrom(r.Context()), serverID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %s", models.ErrServerNotFound, serverID))
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleRegister stores the full record of the signing key's game.
// A missing address defaults to the caller and a missing region to its GeoIP country.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	key := apiKeyFrom(r.Context())

	var req registerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	rec := req.ServerRecord
	if rec.Address == "" {
		rec.Address = GetRealIP(r, s.trustProxy)
	}
	if rec.Region == "" {
		rec.Region = s.geoip.Region(rec.Address)
	}

	stored, err := s.registry.Register(r.Context(), key.AppID, rec, req.Instance)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().
		Int64("game_id", key.AppID).
		Str("server_id", stored.ServerID).
		Str("address", stored.Address).
		Int("port", stored.Port).
		Msg("Server registered")

	writeJSON(w, http.StatusCreated, stored)
}

// handleHeartbeat merges a state update into the record of the signing key's game.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	key := apiKeyFrom(r.Context())

	var hb models.Heartbeat
	if !s.decodeJSON(w, r, &hb) {
		return
	}

	rec, err := s.registry.Heartbeat(r.Context(), key.AppID, hb)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Trace().Int64("game_id", key.AppID).Str("server_id", rec.ServerID).Msg("Heartbeat accepted")
	writeJSON(w, http.StatusOK, rec)
}

// handleUnregister removes a server of the signing key's game.
func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	key := apiKeyFrom(r.Context())
	serverID := r.PathValue("serverId")

	if err := s.registry.Unregister(r.Context(), key.AppID, serverID); err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Int64("game_id", key.AppID).Str("server_id", serverID).Msg("Server unregistered")
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", Message: "Server unregistered"})
}
