// main is the entry point of the Masterlist application.
// It initializes the configuration, logger, catalog, registry, GeoIP provider, and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/masterlist/internal/config"
	"github.com/woozymasta/masterlist/internal/fake"
	"github.com/woozymasta/masterlist/internal/geoip"
	"github.com/woozymasta/masterlist/internal/logger"
	"github.com/woozymasta/masterlist/internal/maintenance"
	"github.com/woozymasta/masterlist/internal/metrics"
	"github.com/woozymasta/masterlist/internal/registry"
	"github.com/woozymasta/masterlist/internal/server"
	"github.com/woozymasta/masterlist/internal/setup"
	"github.com/woozymasta/masterlist/internal/storage"
)

func main() {
	cfg := config.Parse()

	logCloser := logger.Setup(cfg.Logger)
	defer func() { _ = logCloser.Close() }()
	log.Info().Msg("Starting masterlist service...")

	metrics.MustInit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Catalog
	catalog, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	state, err := setup.Load(cfg.Server.SetupFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load setup state")
	}

	// one-shot maintenance tasks
	if ran, err := maintenance.Run(ctx, cfg, catalog, state, os.Stdout); ran {
		if err != nil {
			log.Fatal().Err(err).Msg("Maintenance task failed")
		}
		return
	}

	// GeoIP region fallback
	geoProvider := openGeoIP(ctx, cfg.GeoIP)
	defer func() {
		if err := geoProvider.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing GeoIP provider")
		}
	}()

	// Registry
	opts := cfg.Registry.Options()
	opts.Schemas = catalog
	reg := registry.New(registry.NewMemoryStore(opts.Now), catalog, opts)

	// synthetic load
	if cfg.Simulate.Enabled() || cfg.Stress.Enabled() {
		sim := fake.NewSimulator(reg, catalog, uint64(time.Now().UnixNano()))
		seed(ctx, sim, cfg)
		if cfg.Simulate.Keepalive > 0 {
			go sim.Keepalive(ctx, cfg.Simulate.Keepalive)
		}
	}

	sched := maintenance.NewScheduler(reg, cfg.Registry.SweepInterval, cfg.Registry.SnapshotInterval)
	sched.Start(ctx)

	// Init server
	srvHandler := server.New(reg, catalog, geoProvider, state, cfg)

	// Background queue
	srvHandler.StartWorkers()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srvHandler.Run(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Bool("setup_complete", state.IsComplete()).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sched.Stop()

	// Stop workers (wait queue done)
	srvHandler.StopWorkers()

	log.Info().Msg("Server exited")
}

// openGeoIP prepares the optional GeoIP database. Any failure disables the region fallback.
func openGeoIP(ctx context.Context, cfg config.GeoIP) *geoip.Provider {
	if cfg.Path == "" {
		log.Info().Msg("GeoIP region fallback disabled")
		return nil
	}

	log.Info().Msg("Checking GeoIP database...")
	if err := geoip.EnsureDB(ctx, cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	provider, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, region fallback disabled")
		return nil
	}
	return provider
}

// seed runs the simulation and stress options against the fresh registry.
func seed(ctx context.Context, sim *fake.Simulator, cfg *config.Config) {
	if cfg.Stress.Enabled() {
		rep, err := sim.Stress(ctx, cfg.Stress)
		if err != nil {
			log.Error().Err(err).Msg("Stress run failed")
		} else {
			log.Info().
				Int("games", len(rep.Games)).
				Int("servers", rep.Servers).
				Str("used", rep.Memory.UsedFormatted).
				Float64("usage_percent", rep.Memory.UsagePercent).
				Msg("Stress run complete")
		}
	}

	if cfg.Simulate.Enabled() {
		rep, err := sim.Simulate(ctx, cfg.Simulate)
		if err != nil {
			log.Error().Err(err).Msg("Simulation failed")
			return
		}
		log.Info().Int("games", rep.Games).Int("servers", rep.Servers).Int("hours", rep.Hours).Msg("Simulation complete")
	}
}
