package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/masterlist/internal/registry"
)

// Scheduler runs the stale sweep and the hourly snapshot on their own tickers.
// A failing run is logged and retried on the next tick.
type Scheduler struct {
	reg           *registry.Registry
	cancel        context.CancelFunc
	sweepEvery    time.Duration
	snapshotEvery time.Duration
	wg            sync.WaitGroup
}

// NewScheduler creates a scheduler. Non positive intervals disable the job.
func NewScheduler(reg *registry.Registry, sweepEvery, snapshotEvery time.Duration) *Scheduler {
	return &Scheduler{reg: reg, sweepEvery: sweepEvery, snapshotEvery: snapshotEvery}
}

// Start launches the jobs. The current hour is snapshotted right away.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.sweepEvery > 0 {
		s.wg.Add(1)
		go s.loop(ctx, s.sweepEvery, s.Sweep)
	}
	if s.snapshotEvery > 0 {
		s.Snapshot(ctx)
		s.wg.Add(1)
		go s.loop(ctx, s.snapshotEvery, s.Snapshot)
	}
}

// Stop cancels the jobs and waits for a running one to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, job func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// Sweep evicts stale servers of every active game once.
func (s *Scheduler) Sweep(ctx context.Context) {
	removed, err := s.reg.Sweep(ctx)

	total := 0
	for _, n := range removed {
		total += n
	}
	if err != nil {
		log.Error().Err(err).Int("removed", total).Msg("Stale sweep finished with errors")
		return
	}
	if total > 0 {
		log.Info().Int("removed", total).Int("games", len(removed)).Msg("Stale servers removed")
	}
}

// Snapshot records the hourly bucket of every active game once.
func (s *Scheduler) Snapshot(ctx context.Context) {
	if err := s.reg.SnapshotHourly(ctx); err != nil {
		log.Error().Err(err).Msg("Hourly snapshot finished with errors")
		return
	}
	log.Debug().Msg("Hourly snapshot recorded")
}
