package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/woozymasta/masterlist/internal/game"
	"github.com/woozymasta/masterlist/internal/models"
	"github.com/woozymasta/masterlist/internal/vars"
)

// handleHealth reports whether the catalog answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Ping(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

// handleVersion returns the build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}

// handleSetupStatus tells whether the admin routes are open yet.
func (s *Server) handleSetupStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"complete": s.setup == nil || s.setup.IsComplete()})
}

// handleSetupComplete marks the initial setup as done. Repeating it is harmless.
func (s *Server) handleSetupComplete(w http.ResponseWriter, r *http.Request) {
	if s.setup != nil {
		if err := s.setup.MarkComplete(); err != nil {
			writeError(w, r, fmt.Errorf("mark setup complete: %w", err))
			return
		}
	}
	log.Info().Msg("Setup completed")
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", Message: "Setup complete"})
}

// partial lists the per game failures of a result that still covers the other games.
type partial struct {
	Failed []string `json:"failed,omitempty"`
}

func failures(route string, err error) partial {
	if err == nil {
		return partial{}
	}
	errs := multierr.Errors(err)
	p := partial{Failed: make([]string, 0, len(errs))}
	for _, e := range errs {
		p.Failed = append(p.Failed, e.Error())
	}
	log.Warn().Err(err).Str("route", route).Int("failed", len(errs)).Msg("Partial result served")
	return p
}

// handleMonitoring returns the per game overview across the whole catalog.
// Games whose records could not be read are listed under "failed".
func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	overview, err := s.registry.Overview(r.Context())
	if err != nil && overview.Games == nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		models.Overview
		partial
	}{overview, failures("monitoring", err)})
}

// handleDashboard returns the overview and the summed hourly history of active games.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.registry.Dashboard(r.Context())
	if err != nil && dash.Overview.Games == nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		models.Dashboard
		partial
	}{dash, failures("dashboard", err)})
}

// sweepResult reports the evictions of one maintenance sweep.
type sweepResult struct {
	Removed map[int64]int `json:"removed"`
	partial
	Total int `json:"total"`
}

// handleSweep runs a stale sweep now. Games that failed are reported next to the
// evictions of the healthy ones.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	removed, err := s.registry.Sweep(r.Context())
	if err != nil && removed == nil {
		writeError(w, r, err)
		return
	}

	res := sweepResult{Removed: removed, partial: failures("sweep", err)}
	for _, n := range removed {
		res.Total += n
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSnapshot records the hourly snapshot of every active game now.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.SnapshotHourly(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok", Message: "Hourly snapshot recorded"})
}

// handleProbe performs a live A2S query against a registered server.
// It acts as a proxy to compare the reported and the real server state.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	g, ok := s.gameByPath(w, r)
	if !ok {
		return
	}
	serverID := r.PathValue("serverId")

	rec, found, err := s.registry.Store().Get(r.Context(), g.AppID, serverID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, fmt.Errorf("%w: %s", models.ErrServerNotFound, serverID))
		return
	}

	probe, err := game.ProbeRecord(rec, s.a2sOptions)
	if err != nil {
		if errors.Is(err, game.ErrUnprobeable) {
			writeError(w, r, models.FieldError("address", err.Error()))
			return
		}
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, probe)
}
