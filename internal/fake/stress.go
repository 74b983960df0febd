package fake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/masterlist/internal/config"
	"github.com/woozymasta/masterlist/internal/models"
)

var gameNames = []string{
	"Stellar Conquest", "Neon Warfare", "Cyber Hunters", "Phantom Brigade", "Iron Legion",
	"Shadow Protocol", "Arctic Storm", "Desert Strike", "Ocean Fury", "Mountain Siege",
}

const (
	letters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	stressSlots = 64
	fillBatch   = 100
	// recordOverhead mirrors the per entry estimate of the fill loop.
	recordOverhead = 50
)

// StressReport summarizes a stress run.
type StressReport struct {
	Games        []models.Game       `json:"games,omitempty"`
	Memory       models.MemoryReport `json:"memory"`
	FillGame     int64               `json:"fill_game,omitempty"`
	Servers      int                 `json:"servers"`
	WrittenBytes int64               `json:"written_bytes"`
}

// Stress creates random games and fills one namespace up to a target size.
func (s *Simulator) Stress(ctx context.Context, opts config.Stress) (StressReport, error) {
	var rep StressReport

	for range opts.Games {
		g, err := s.randomGame(ctx)
		if err != nil {
			return rep, err
		}
		n, err := s.registerServers(ctx, g.AppID, s.between(2, 8), nil)
		rep.Servers += n
		if err != nil {
			return rep, err
		}
		rep.Games = append(rep.Games, g)
		log.Info().Int64("game_id", g.AppID).Str("name", g.Name).Int("servers", n).Msg("Stress game created")
	}

	if opts.FillMB > 0 {
		if err := s.fill(ctx, opts, &rep); err != nil {
			return rep, err
		}
	}

	return rep, nil
}

func (s *Simulator) randomGame(ctx context.Context) (models.Game, error) {
	for {
		appID := int64(s.between(100000, 9999999))
		name := fmt.Sprintf("%s %d", pick(s, gameNames), s.between(1, 99))
		limit := s.between(1, 10)
		active := true

		g, err := s.catalog.CreateGame(ctx, models.GameInput{
			AppID:         &appID,
			Name:          &name,
			MemoryLimitMB: &limit,
			IsActive:      &active,
		})
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return g, err
	}
}

func (s *Simulator) fill(ctx context.Context, opts config.Stress, rep *StressReport) error {
	targets, err := s.targets(ctx, opts.FillGame)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: no active game to fill", models.ErrNotFound)
	}
	t := targets[0]
	rep.FillGame = t.ID

	if err := s.reg.ClearTenant(ctx, t.ID); err != nil {
		return err
	}

	target := int64(opts.FillMB) * humanize.MiByte
	log.Info().
		Int64("game_id", t.ID).
		Str("target", humanize.IBytes(uint64(target))).
		Msg("Filling game namespace")

	for rep.WrittenBytes < target {
		written := int64(0)
		n, err := s.registerServers(ctx, t.ID, fillBatch, func(i int) models.ServerRecord {
			rec := s.largeServer(rep.Servers + i)
			if b, err := json.Marshal(rec); err == nil {
				written += int64(len(b)+len(rec.ServerID)) + recordOverhead
			}
			return rec
		})
		rep.Servers += n
		rep.WrittenBytes += written
		if err != nil {
			return err
		}

		log.Debug().
			Int("servers", rep.Servers).
			Str("written", humanize.IBytes(uint64(rep.WrittenBytes))).
			Msg("Fill progress")
	}

	rep.Memory, err = s.reg.MemoryReport(ctx, t)
	if err != nil {
		return err
	}

	log.Info().
		Int64("game_id", t.ID).
		Int("servers", rep.Servers).
		Str("written", humanize.IBytes(uint64(rep.WrittenBytes))).
		Str("used", rep.Memory.UsedFormatted).
		Str("limit", rep.Memory.LimitFormatted).
		Float64("usage_percent", rep.Memory.UsagePercent).
		Msg("Fill complete")

	return nil
}

func (s *Simulator) randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[s.intn(len(letters))]
	}
	return string(b)
}

func (s *Simulator) largeServer(i int) models.ServerRecord {
	players := s.between(0, stressSlots)
	peak := s.between(players, stressSlots)

	roster := make([]any, 0, min(players, 10))
	for range min(players, 10) {
		roster = append(roster, map[string]any{
			"id":    uuid.NewString(),
			"name":  "Player_" + s.randomString(8),
			"score": s.between(0, 10000),
			"ping":  s.between(10, 150),
			"team":  s.between(0, 1),
		})
	}

	mods := make([]any, 0, 5)
	for range s.between(0, 5) {
		mods = append(mods, map[string]any{
			"id":      s.between(100000, 999999),
			"name":    "Mod_" + s.randomString(10),
			"version": fmt.Sprintf("%d.%d.%d", s.between(1, 5), s.between(0, 9), s.between(0, 9)),
		})
	}

	return models.ServerRecord{
		ServerID:       uuid.NewString(),
		Name:           fmt.Sprintf("Stress Test Server #%d - %s", i, pick(s, regions)),
		Map:            pick(s, maps),
		Region:         pick(s, regions),
		Address:        fmt.Sprintf("%d.%d.%d.%d", s.between(1, 255), s.between(0, 255), s.between(0, 255), s.between(1, 254)),
		Port:           s.between(7777, 27999),
		MaxPlayers:     stressSlots,
		CurrentPlayers: players,
		PeakPlayers:    &peak,
		Type:           models.TypeDedicated,
		Status:         models.StatusOnline,
		Metadata: map[string]any{
			"blob": s.randomString(200),
			"settings": map[string]any{
				"game_mode":          pick(s, []string{"deathmatch", "capture_flag", "domination", "survival"}),
				"difficulty":         pick(s, []string{"easy", "normal", "hard", "nightmare"}),
				"allow_spectators":   s.intn(2) == 1,
				"max_ping":           s.between(50, 200),
				"min_level":          s.between(0, 50),
				"password_protected": s.intn(2) == 1,
				"anti_cheat_enabled": true,
				"voice_chat":         s.intn(2) == 1,
			},
			"players":     roster,
			"mods":        mods,
			"tags":        []any{"competitive", "casual", "ranked", "custom", "event"},
			"description": s.randomString(300),
		},
	}
}
