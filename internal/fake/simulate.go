// Package fake provides synthetic game servers and history for exercising dashboards
// and the registry under load.
package fake

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/masterlist/internal/config"
	"github.com/woozymasta/masterlist/internal/models"
	"github.com/woozymasta/masterlist/internal/registry"
	"github.com/woozymasta/masterlist/internal/storage"
)

var (
	regions = []string{"us-east", "us-west", "eu-west", "eu-central", "asia-pacific", "oceania", "south-america"}
	maps    = []string{"map_alpha", "map_bravo", "map_charlie", "map_delta", "arena_01", "arena_02", "ctf_main", "deathmatch_01"}
)

const simSlots = 32

// Simulator registers synthetic servers through the registry, so they pass the same
// validation, liveness and stats paths as real ones.
type Simulator struct {
	reg     *registry.Registry
	catalog *storage.Repository
	rnd     *rand.Rand
	servers map[int64][]string
	mu      sync.Mutex
}

// NewSimulator creates a simulator with a seeded random source.
func NewSimulator(reg *registry.Registry, catalog *storage.Repository, seed uint64) *Simulator {
	return &Simulator{
		reg:     reg,
		catalog: catalog,
		rnd:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		servers: make(map[int64][]string),
	}
}

func (s *Simulator) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.IntN(n)
}

// between returns a random int in [lo, hi].
func (s *Simulator) between(lo, hi int) int {
	return lo + s.intn(hi-lo+1)
}

func pick[T any](s *Simulator, list []T) T {
	return list[s.intn(len(list))]
}

// Report counts what a simulation run produced.
type Report struct {
	Games   int `json:"games"`
	Servers int `json:"servers"`
	Hours   int `json:"hours"`
}

// Simulate seeds the registry for one game or every active game.
func (s *Simulator) Simulate(ctx context.Context, opts config.Simulate) (Report, error) {
	targets, err := s.targets(ctx, opts.Game)
	if err != nil {
		return Report{}, err
	}
	if len(targets) == 0 {
		log.Warn().Msg("No active games found, create a game first")
		return Report{}, nil
	}

	var rep Report
	for _, t := range targets {
		if opts.Clear {
			if err := s.reg.ClearTenant(ctx, t.ID); err != nil {
				return rep, err
			}
			s.mu.Lock()
			delete(s.servers, t.ID)
			s.mu.Unlock()
		}

		n, err := s.registerServers(ctx, t.ID, opts.Servers, nil)
		rep.Servers += n
		if err != nil {
			return rep, err
		}

		if opts.History {
			rep.Hours += s.history(t.ID)
		}
		rep.Games++

		log.Info().Int64("game_id", t.ID).Str("name", t.Name).Int("servers", n).Msg("Game simulated")
	}

	return rep, nil
}

func (s *Simulator) targets(ctx context.Context, appID int64) ([]models.Tenant, error) {
	if appID != 0 {
		t, ok, err := s.catalog.ResolveTenant(ctx, appID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d", models.ErrTenantUnknown, appID)
		}
		return []models.Tenant{t}, nil
	}

	all, err := s.catalog.Tenants(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

// registerServers registers count servers. Each record comes from build when set.
func (s *Simulator) registerServers(ctx context.Context, appID int64, count int, build func(int) models.ServerRecord) (int, error) {
	if build == nil {
		build = s.server
	}

	ids := make([]string, 0, count)
	for i := range count {
		rec, err := s.reg.Register(ctx, appID, build(i), "")
		if err != nil {
			s.remember(appID, ids)
			return len(ids), fmt.Errorf("register simulated server: %w", err)
		}
		ids = append(ids, rec.ServerID)
	}

	s.remember(appID, ids)
	return len(ids), nil
}

func (s *Simulator) remember(appID int64, ids []string) {
	s.mu.Lock()
	s.servers[appID] = append(s.servers[appID], ids...)
	s.mu.Unlock()
}

func (s *Simulator) server(i int) models.ServerRecord {
	players := s.between(0, simSlots)
	peak := s.between(players, simSlots)
	ping := s.between(10, 150)

	return models.ServerRecord{
		ServerID:       uuid.NewString(),
		Name:           fmt.Sprintf("Server #%d - %s", i+1, pick(s, regions)),
		Map:            pick(s, maps),
		Region:         pick(s, regions),
		Address:        fmt.Sprintf("192.168.%d.%d", s.between(1, 254), s.between(1, 254)),
		Port:           7777 + i%50000,
		MaxPlayers:     simSlots,
		CurrentPlayers: players,
		PeakPlayers:    &peak,
		Ping:           &ping,
		Type:           models.TypeDedicated,
		Status:         models.StatusOnline,
	}
}

// history fills the trailing 24 hourly buckets with an evening peaked day.
func (s *Simulator) history(appID int64) int {
	now := s.reg.Options().Now().UTC()

	for i := registry.DefaultHistoryHours - 1; i >= 0; i-- {
		at := now.Add(-time.Duration(i) * time.Hour)

		var servers, players int
		switch h := at.Hour(); {
		case h >= 18 && h <= 22:
			servers, players = s.between(8, 15), s.between(50, 150)
		case h >= 12 && h <= 17:
			servers, players = s.between(5, 10), s.between(30, 80)
		case h <= 6:
			servers, players = s.between(1, 4), s.between(5, 25)
		default:
			servers, players = s.between(3, 7), s.between(15, 50)
		}

		s.reg.Stats().PutHourlyBucket(appID, models.HourlyBucket{
			Key:           registry.HourKey(at),
			ActiveServers: max(1, servers+s.between(-2, 2)),
			PeakPlayers:   max(1, players+s.between(-10, 20)),
			RecordedAt:    at,
		})
	}

	return registry.DefaultHistoryHours
}

// Heartbeat sends one random heartbeat to every simulated server and forgets the
// ones the registry no longer knows.
func (s *Simulator) Heartbeat(ctx context.Context) (int, error) {
	s.mu.Lock()
	snapshot := make(map[int64][]string, len(s.servers))
	for id, ids := range s.servers {
		snapshot[id] = append([]string(nil), ids...)
	}
	s.mu.Unlock()

	sent := 0
	for appID, ids := range snapshot {
		alive := ids[:0]
		for _, id := range ids {
			_, err := s.reg.Heartbeat(ctx, appID, models.Heartbeat{
				ServerID:       id,
				CurrentPlayers: s.between(0, simSlots),
				Status:         models.StatusOnline,
			})
			switch {
			case errors.Is(err, models.ErrServerNotFound),
				errors.Is(err, models.ErrTenantUnknown),
				errors.Is(err, models.ErrTenantInactive):
				continue
			case err != nil:
				return sent, err
			}
			alive = append(alive, id)
			sent++
		}

		s.mu.Lock()
		s.servers[appID] = alive
		s.mu.Unlock()
	}

	return sent, nil
}

// Keepalive heartbeats the simulated servers every interval until ctx is done.
func (s *Simulator) Keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Heartbeat(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Simulated heartbeat round failed")
				continue
			}
			log.Trace().Int("servers", n).Msg("Simulated heartbeats sent")
		}
	}
}
