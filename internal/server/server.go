// Package server implements the HTTP server, middleware, and request handlers for the application.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/masterlist/internal/auth"
	"github.com/woozymasta/masterlist/internal/config"
	"github.com/woozymasta/masterlist/internal/geoip"
	"github.com/woozymasta/masterlist/internal/metrics"
	"github.com/woozymasta/masterlist/internal/registry"
	"github.com/woozymasta/masterlist/internal/setup"
	"github.com/woozymasta/masterlist/internal/storage"
)

// Route classes of the public rate limiter.
const (
	ClassAPI    = "api"
	ClassServer = "server"
)

const (
	// touchTimeout bounds one API key usage write.
	touchTimeout = 5 * time.Second

	defaultMaxBody = 64 << 10
)

// New creates a new Server instance over the registry, the catalog and the optional GeoIP provider.
func New(
	reg *registry.Registry,
	catalog *storage.Repository,
	geo *geoip.Provider,
	state *setup.State,
	cfg *config.Config,
) *Server {
	workers := cfg.Server.Workers
	if workers < 1 {
		workers = 1
	}
	queue := cfg.Server.QueueSize
	if queue < 1 {
		queue = 1
	}
	maxBody := cfg.Server.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	return &Server{
		registry:   reg,
		catalog:    catalog,
		geoip:      geo,
		setup:      state,
		verifier:   auth.NewVerifier(catalog, cfg.Auth.HMACTolerance, reg.Options().Now),
		a2sOptions: cfg.A2S,
		authToken:  cfg.Server.AuthToken,
		maxBody:    maxBody,
		trustProxy: cfg.Server.TrustProxy,
		workers:    workers,
		limiters: map[string]*ipLimiter{
			ClassAPI:    newIPLimiter(cfg.RateLimit.APICount, cfg.RateLimit.Window),
			ClassServer: newIPLimiter(cfg.RateLimit.ServerCount, cfg.RateLimit.Window),
		},

		touches:  make(chan touchJob, queue),
		shutdown: make(chan struct{}),
	}
}

// StartWorkers initializes the background worker pool recording API key usage
// and the rate limiter cleanup routine.
func (s *Server) StartWorkers() {
	for range s.workers {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go s.gcLimiters()
}

// StopWorkers gracefully stops the background workers and drains the usage queue.
func (s *Server) StopWorkers() {
	s.stopOnce.Do(func() {
		s.queueMu.Lock()
		close(s.shutdown)
		close(s.touches)
		s.queueMu.Unlock()
		s.wg.Wait()
	})
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	// lifecycle
	mux.HandleFunc("GET /api/v1/healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/v1/setup/status", s.handleSetupStatus)
	mux.Handle("POST /api/v1/setup/complete", s.AdminAuthMiddleware(http.HandlerFunc(s.handleSetupComplete)))

	// clients
	client := func(h http.HandlerFunc) http.Handler {
		return s.RateLimitMiddleware(ClassAPI, s.GameScopeMiddleware(h))
	}
	mux.Handle("GET /api/v1/games/{gameId}/servers", client(s.handleListServers))
	mux.Handle("GET /api/v1/games/{gameId}/servers/{serverId}", client(s.handleGetServer))

	// game servers
	signed := func(h http.HandlerFunc) http.Handler {
		return s.RateLimitMiddleware(ClassServer, s.HMACMiddleware(h))
	}
	mux.Handle("POST /api/v1/servers/register", signed(s.handleRegister))
	mux.Handle("POST /api/v1/servers/heartbeat", signed(s.handleHeartbeat))
	mux.Handle("DELETE /api/v1/servers/{serverId}", signed(s.handleUnregister))

	// administration
	admin := func(h http.HandlerFunc) http.Handler {
		return s.AdminAuthMiddleware(s.SetupMiddleware(h))
	}
	mux.Handle("GET /api/v1/admin/monitoring", admin(s.handleMonitoring))
	mux.Handle("GET /api/v1/admin/dashboard", admin(s.handleDashboard))

	mux.Handle("GET /api/v1/admin/games", admin(s.handleListGames))
	mux.Handle("POST /api/v1/admin/games", admin(s.handleCreateGame))
	mux.Handle("GET /api/v1/admin/games/{id}", admin(s.handleGetGame))
	mux.Handle("PUT /api/v1/admin/games/{id}", admin(s.handleUpdateGame))
	mux.Handle("DELETE /api/v1/admin/games/{id}", admin(s.handleDeleteGame))
	mux.Handle("GET /api/v1/admin/games/{id}/stats", admin(s.handleGameStats))
	mux.Handle("GET /api/v1/admin/games/{id}/stats/current", admin(s.handleCurrentStats))
	mux.Handle("GET /api/v1/admin/games/{id}/stats/hourly", admin(s.handleHourlyStats))
	mux.Handle("GET /api/v1/admin/games/{id}/servers", admin(s.handleGameServers))
	mux.Handle("GET /api/v1/admin/games/{id}/servers/{serverId}/probe", admin(s.handleProbe))
	mux.Handle("GET /api/v1/admin/games/{id}/api-keys", admin(s.handleListAPIKeys))
	mux.Handle("POST /api/v1/admin/games/{id}/api-keys", admin(s.handleCreateAPIKey))
	mux.Handle("DELETE /api/v1/admin/games/{id}/api-keys/{keyId}", admin(s.handleRevokeAPIKey))

	mux.Handle("GET /api/v1/admin/instances", admin(s.handleListInstances))
	mux.Handle("POST /api/v1/admin/instances", admin(s.handleCreateInstance))
	mux.Handle("GET /api/v1/admin/instances/{id}", admin(s.handleGetInstance))
	mux.Handle("PUT /api/v1/admin/instances/{id}", admin(s.handleUpdateInstance))
	mux.Handle("DELETE /api/v1/admin/instances/{id}", admin(s.handleDeleteInstance))
	mux.Handle("PUT /api/v1/admin/instances/{id}/schema", admin(s.handleReplaceSchema))
	mux.Handle("POST /api/v1/admin/instances/{id}/validate", admin(s.handleValidateMetadata))

	mux.Handle("POST /api/v1/admin/maintenance/sweep", admin(s.handleSweep))
	mux.Handle("POST /api/v1/admin/maintenance/snapshot", admin(s.handleSnapshot))

	return s.MetricsMiddleware(s.LoggingMiddleware(mux))
}

// worker writes API key usage timestamps until the queue is closed.
func (s *Server) worker() {
	defer s.wg.Done()

	for job := range s.touches {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		if err := s.catalog.TouchAPIKey(ctx, job.KeyID, job.At); err != nil {
			log.Warn().Err(err).Str("key_id", job.KeyID).Msg("Failed to record API key usage")
		}
		cancel()
	}
}

// enqueueTouch hands a usage update to the worker pool and drops it when the queue is full.
func (s *Server) enqueueTouch(job touchJob) {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()

	select {
	case <-s.shutdown:
		return
	default:
	}

	select {
	case s.touches <- job:
	default:
		log.Warn().Str("key_id", job.KeyID).Msg("Usage queue full, API key touch dropped")
	}
}

// gcLimiters periodically drops per IP limiters of clients that went quiet.
func (s *Server) gcLimiters() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			now := time.Now()
			for _, l := range s.limiters {
				l.gc(now, 10*time.Minute)
			}
		}
	}
}
