// Package registry is the in-memory game server registry: tenant isolated record storage,
// heartbeat liveness with sweep eviction, client side filtering and stats aggregation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/woozymasta/masterlist/internal/metrics"
	"github.com/woozymasta/masterlist/internal/models"
	"github.com/woozymasta/masterlist/internal/schema"
)

// Options tune the registry. Zero durations fall back to DefaultOptions.
type Options struct {
	// Clock used for heartbeats, liveness and stats. Defaults to time.Now.
	Now func() time.Time
	// Optional instance schema source used to validate registration metadata.
	Schemas SchemaLookup

	// Silence tolerated by listing, monitoring and dashboard views.
	ReadThreshold time.Duration
	// Silence after which the sweep evicts a record.
	SweepThreshold time.Duration
	// Lifetime of cached current stats.
	StatsCacheTTL time.Duration
	// Lifetime of an hourly bucket after its last write.
	HourlyRetention time.Duration
	// Deadline applied to every store call and to each tenant in background jobs.
	OpTimeout time.Duration
}

// DefaultOptions returns the default thresholds.
func DefaultOptions() Options {
	return Options{
		Now:             time.Now,
		ReadThreshold:   300 * time.Second,
		SweepThreshold:  90 * time.Second,
		StatsCacheTTL:   60 * time.Second,
		HourlyRetention: 24 * time.Hour,
		OpTimeout:       2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.ReadThreshold <= 0 {
		o.ReadThreshold = d.ReadThreshold
	}
	if o.SweepThreshold <= 0 {
		o.SweepThreshold = d.SweepThreshold
	}
	if o.StatsCacheTTL <= 0 {
		o.StatsCacheTTL = d.StatsCacheTTL
	}
	if o.HourlyRetention <= 0 {
		o.HourlyRetention = d.HourlyRetention
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = d.OpTimeout
	}
	return o
}

// Registry wires the store, liveness engine and stats aggregator behind the tenant gate.
type Registry struct {
	store   Store
	tenants TenantResolver
	live    *Liveness
	stats   *Aggregator
	opts    Options
}

// New creates a registry over store, gating every tenant through tenants.
func New(store Store, tenants TenantResolver, opts Options) *Registry {
	opts = opts.withDefaults()
	live := NewLiveness(store, opts.Now, opts.ReadThreshold, opts.SweepThreshold)

	return &Registry{
		store:   store,
		tenants: tenants,
		live:    live,
		stats:   NewAggregator(store, live, opts.Now, opts.StatsCacheTTL, opts.HourlyRetention),
		opts:    opts,
	}
}

// Store returns the underlying record store.
func (r *Registry) Store() Store { return r.store }

// Stats returns the stats aggregator.
func (r *Registry) Stats() *Aggregator { return r.stats }

// Liveness returns the liveness engine.
func (r *Registry) Liveness() *Liveness { return r.live }

// Options returns the effective options.
func (r *Registry) Options() Options { return r.opts }

func (r *Registry) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opts.OpTimeout)
}

// Register validates and stores a full server record, replacing any previous one.
// When instance is set, metadata is checked against that instance's schema.
func (r *Registry) Register(ctx context.Context, tenantID int64, rec models.ServerRecord, instance string) (models.ServerRecord, error) {
	if _, err := r.gate(ctx, tenantID); err != nil {
		metrics.Registrations.WithLabelValues("rejected").Inc()
		return models.ServerRecord{}, err
	}

	if rec.Status == 0 {
		rec.Status = models.StatusOnline
	}
	if err := validateRecord(rec); err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return models.ServerRecord{}, err
	}
	if err := r.validateMetadata(ctx, tenantID, instance, rec.Metadata); err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return models.ServerRecord{}, err
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	rec.TenantID = tenantID
	rec.LastHeartbeat = time.Time{}
	rec.Metadata = models.CloneMetadata(rec.Metadata)

	applied, err := r.store.Upsert(ctx, tenantID, rec)
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return models.ServerRecord{}, fmt.Errorf("register %s: %w", rec.ServerID, err)
	}
	if !applied {
		metrics.Registrations.WithLabelValues("conflict").Inc()
		return models.ServerRecord{}, fmt.Errorf("%w: newer heartbeat stored for %s", models.ErrConflict, rec.ServerID)
	}

	stored, ok, err := r.store.Get(ctx, tenantID, rec.ServerID)
	if err != nil {
		return models.ServerRecord{}, fmt.Errorf("register %s: %w", rec.ServerID, err)
	}
	if !ok {
		// evicted between the write and the read
		return models.ServerRecord{}, fmt.Errorf("%w: %s", models.ErrServerNotFound, rec.ServerID)
	}

	metrics.Registrations.WithLabelValues("ok").Inc()
	log.Debug().Int64("game_id", tenantID).Str("server_id", rec.ServerID).Msg("server registered")
	return stored, nil
}

// Heartbeat merges a state update into an existing record and advances its liveness.
// Status and player count are always replaced, map, ping and peak only when set,
// metadata keys are merged. Unknown servers yield models.ErrServerNotFound.
func (r *Registry) Heartbeat(ctx context.Context, tenantID int64, hb models.Heartbeat) (models.ServerRecord, error) {
	if _, err := r.gate(ctx, tenantID); err != nil {
		metrics.Heartbeats.WithLabelValues("rejected").Inc()
		return models.ServerRecord{}, err
	}

	if hb.Status == 0 {
		hb.Status = models.StatusOnline
	}
	if err := validateHeartbeat(hb); err != nil {
		metrics.Heartbeats.WithLabelValues("invalid").Inc()
		return models.ServerRecord{}, err
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	rec, err := r.store.Update(ctx, tenantID, hb.ServerID, func(rec *models.ServerRecord) error {
		rec.Status = hb.Status
		rec.CurrentPlayers = hb.CurrentPlayers
		if hb.Map != nil {
			rec.Map = *hb.Map
		}
		if hb.Ping != nil {
			p := *hb.Ping
			rec.Ping = &p
		}
		if hb.PeakPlayers != nil {
			p := *hb.PeakPlayers
			rec.PeakPlayers = &p
		}
		if len(hb.Metadata) > 0 {
			rec.Metadata = models.MergeMetadata(rec.Metadata, hb.Metadata)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrServerNotFound) {
			metrics.Heartbeats.WithLabelValues("not_found").Inc()
		} else {
			metrics.Heartbeats.WithLabelValues("error").Inc()
		}
		return models.ServerRecord{}, err
	}

	metrics.Heartbeats.WithLabelValues("ok").Inc()
	return rec, nil
}

// Unregister removes a server. Unknown servers yield models.ErrServerNotFound.
func (r *Registry) Unregister(ctx context.Context, tenantID int64, serverID string) error {
	if _, err := r.gate(ctx, tenantID); err != nil {
		return err
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	ok, err := r.store.Remove(ctx, tenantID, serverID)
	if err != nil {
		return fmt.Errorf("unregister %s: %w", serverID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrServerNotFound, serverID)
	}

	log.Debug().Int64("game_id", tenantID).Str("server_id", serverID).Msg("server unregistered")
	return nil
}

// Get returns one server of an active tenant. Absence is reported with ok=false.
func (r *Registry) Get(ctx context.Context, tenantID int64, serverID string) (models.ServerRecord, bool, error) {
	if _, err := r.gate(ctx, tenantID); err != nil {
		return models.ServerRecord{}, false, err
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	return r.store.Get(ctx, tenantID, serverID)
}

// List returns the client visible servers of an active tenant matching f.
// Only online servers are listed. Order is unspecified.
func (r *Registry) List(ctx context.Context, tenantID int64, f Filter) ([]models.ServerRecord, error) {
	if _, err := r.gate(ctx, tenantID); err != nil {
		return nil, err
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	recs, err := r.store.Scan(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list game %d: %w", tenantID, err)
	}
	return Apply(recs, f), nil
}

// Servers returns one page of the servers alive under the read threshold, regardless of status.
// Inactive tenants are included so operators can inspect them.
func (r *Registry) Servers(ctx context.Context, tenantID int64, page, perPage int) (models.Page, error) {
	if _, err := r.lookup(ctx, tenantID); err != nil {
		return models.Page{}, err
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	recs, err := r.store.Scan(ctx, tenantID)
	if err != nil {
		return models.Page{}, fmt.Errorf("servers of game %d: %w", tenantID, err)
	}
	return Paginate(r.live.FilterReadAlive(recs), page, perPage), nil
}

// CurrentStats returns the cached or freshly computed stats of a tenant.
func (r *Registry) CurrentStats(ctx context.Context, tenantID int64) (models.CurrentStats, error) {
	if _, err := r.lookup(ctx, tenantID); err != nil {
		return models.CurrentStats{}, err
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	return r.stats.CurrentStats(ctx, tenantID)
}

// HourlyStats returns the trailing hourly history of a tenant, oldest first.
func (r *Registry) HourlyStats(ctx context.Context, tenantID int64, hours int) ([]models.HourlyStat, error) {
	if _, err := r.lookup(ctx, tenantID); err != nil {
		return nil, err
	}
	return r.stats.HourlyStats(tenantID, hours), nil
}

// GameStats bundles current stats, the 24 hour history and the memory report of a tenant.
func (r *Registry) GameStats(ctx context.Context, tenantID int64) (models.GameStats, error) {
	t, err := r.lookup(ctx, tenantID)
	if err != nil {
		return models.GameStats{}, err
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	current, err := r.stats.CurrentStats(ctx, tenantID)
	if err != nil {
		return models.GameStats{}, err
	}
	mem, err := r.MemoryReport(ctx, t)
	if err != nil {
		return models.GameStats{}, err
	}

	hourly := r.stats.HourlyStats(tenantID, DefaultHistoryHours)
	out := models.GameStats{
		Game:    t,
		Current: current,
		Hourly:  hourly,
		Memory:  mem,
	}
	for _, h := range hourly {
		out.PeakPlayers24h = max(out.PeakPlayers24h, h.PeakPlayers)
		out.PeakServers24h = max(out.PeakServers24h, h.ActiveServers)
	}
	return out, nil
}

// Overview summarizes every tenant known to the resolver. A tenant whose store call fails
// is reported with zero counts and its error is returned combined with the others.
func (r *Registry) Overview(ctx context.Context) (models.Overview, error) {
	tenants, err := r.tenants.Tenants(ctx)
	if err != nil {
		return models.Overview{}, fmt.Errorf("list games: %w", err)
	}

	out := models.Overview{Games: make([]models.TenantOverview, 0, len(tenants))}
	var errs error
	for _, t := range tenants {
		row := models.TenantOverview{AppID: t.ID, Name: t.Name, IsActive: t.Active}

		tctx, cancel := r.deadline(ctx)
		recs, err := r.store.Scan(tctx, t.ID)
		cancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("game %d: %w", t.ID, err))
		} else {
			for _, rec := range r.live.FilterReadAlive(recs) {
				row.ServerCount++
				row.TotalPlayers += rec.CurrentPlayers
			}
		}

		out.TotalGames++
		if t.Active {
			out.ActiveGames++
		}
		out.TotalServers += row.ServerCount
		out.TotalPlayers += row.TotalPlayers
		out.Games = append(out.Games, row)
	}

	sort.Slice(out.Games, func(i, j int) bool { return out.Games[i].AppID < out.Games[j].AppID })
	return out, errs
}

// Dashboard is the overview plus the summed hourly history of every active tenant.
func (r *Registry) Dashboard(ctx context.Context) (models.Dashboard, error) {
	ov, err := r.Overview(ctx)
	if err != nil && len(ov.Games) == 0 {
		return models.Dashboard{}, err
	}

	hourly := emptyHours(r.opts.Now(), DefaultHistoryHours)
	for _, g := range ov.Games {
		if !g.IsActive {
			continue
		}
		for i, h := range r.stats.HourlyStats(g.AppID, DefaultHistoryHours) {
			hourly[i].ActiveServers += h.ActiveServers
			hourly[i].PeakPlayers += h.PeakPlayers
		}
	}

	return models.Dashboard{Overview: ov, Hourly: hourly}, err
}

// Sweep evicts stale records of every active tenant and returns the removals per tenant.
// Tenants are processed independently; failures are combined and do not stop the others.
func (r *Registry) Sweep(ctx context.Context) (map[int64]int, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	tenants, err := r.tenants.Tenants(ctx)
	if err != nil {
		metrics.SweepErrors.Inc()
		return nil, fmt.Errorf("list games: %w", err)
	}

	removed := make(map[int64]int)
	var errs error
	for _, t := range tenants {
		if !t.Active {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		tctx, cancel := r.deadline(ctx)
		n, err := r.live.SweepTenant(tctx, t.ID)
		cancel()

		if n > 0 {
			removed[t.ID] = n
			metrics.SweepEvictions.Add(float64(n))
			log.Info().Int64("game_id", t.ID).Int("removed", n).Msg("stale servers evicted")
		}
		if err != nil {
			metrics.SweepErrors.Inc()
			log.Error().Err(err).Int64("game_id", t.ID).Msg("sweep failed")
			errs = multierr.Append(errs, fmt.Errorf("sweep game %d: %w", t.ID, err))
		}
	}

	return removed, errs
}

// SnapshotHourly folds the current state of every active tenant into its hourly bucket.
// Calling it more than once within an hour is safe.
func (r *Registry) SnapshotHourly(ctx context.Context) error {
	tenants, err := r.tenants.Tenants(ctx)
	if err != nil {
		metrics.SnapshotErrors.Inc()
		return fmt.Errorf("list games: %w", err)
	}

	var errs error
	for _, t := range tenants {
		if !t.Active {
			continue
		}

		tctx, cancel := r.deadline(ctx)
		b, err := r.stats.RecordHourlySnapshot(tctx, t.ID)
		cancel()

		if err != nil {
			metrics.SnapshotErrors.Inc()
			log.Error().Err(err).Int64("game_id", t.ID).Msg("hourly snapshot failed")
			errs = multierr.Append(errs, fmt.Errorf("snapshot game %d: %w", t.ID, err))
			continue
		}
		log.Debug().
			Int64("game_id", t.ID).
			Str("hour", b.Key).
			Int("active_servers", b.ActiveServers).
			Int("peak_players", b.PeakPlayers).
			Msg("hourly snapshot recorded")
	}

	return errs
}

// ClearTenant drops every record and derived value of a tenant.
func (r *Registry) ClearTenant(ctx context.Context, tenantID int64) error {
	ctx, cancel := r.deadline(ctx)
	defer cancel()

	if err := r.store.ClearTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("clear game %d: %w", tenantID, err)
	}
	log.Info().Int64("game_id", tenantID).Str("namespace", Namespace(tenantID)).Msg("namespace cleared")
	return nil
}

func (r *Registry) validateMetadata(ctx context.Context, tenantID int64, instance string, data map[string]any) error {
	if instance == "" || r.opts.Schemas == nil {
		return nil
	}

	defs, ok, err := r.opts.Schemas.InstanceSchema(ctx, tenantID, instance)
	if err != nil {
		return fmt.Errorf("instance %q: %w", instance, err)
	}
	if !ok {
		return models.FieldError("instance", "The selected instance is invalid.")
	}

	s, err := schema.Compile(defs)
	if err != nil {
		return fmt.Errorf("instance %q: %w", instance, err)
	}
	return s.Validate(data)
}

const (
	maxServerIDLen = 64
	maxNameLen     = 255
	maxMapLen      = 255
	maxRegionLen   = 64
	maxSlots       = 1000
)

func validateRecord(rec models.ServerRecord) error {
	errs := models.ValidationErrors{}

	switch {
	case rec.ServerID == "":
		errs.Add("server_id", "The server_id field is required.")
	case len(rec.ServerID) > maxServerIDLen:
		errs.Add("server_id", fmt.Sprintf("The server_id may not be greater than %d characters.", maxServerIDLen))
	}
	switch {
	case rec.Name == "":
		errs.Add("name", "The name field is required.")
	case len(rec.Name) > maxNameLen:
		errs.Add("name", fmt.Sprintf("The name may not be greater than %d characters.", maxNameLen))
	}
	if _, err := netip.ParseAddr(rec.Address); err != nil {
		errs.Add("address", "The address must be a valid IP address.")
	}
	if rec.Port < 1 || rec.Port > 65535 {
		errs.Add("port", "The port must be between 1 and 65535.")
	}
	if !rec.Type.Valid() {
		errs.Add("server_type", "The server_type must be one of listen, dedicated.")
	}
	if !rec.Status.Valid() {
		errs.Add("status", "The selected status is invalid.")
	}
	if rec.MaxPlayers < 1 || rec.MaxPlayers > maxSlots {
		errs.Add("max_players", fmt.Sprintf("The max_players must be between 1 and %d.", maxSlots))
	}
	if rec.CurrentPlayers < 0 {
		errs.Add("current_players", "The current_players must be at least 0.")
	}
	if rec.PeakPlayers != nil && *rec.PeakPlayers < 0 {
		errs.Add("peak_players", "The peak_players must be at least 0.")
	}
	if len(rec.Map) > maxMapLen {
		errs.Add("map", fmt.Sprintf("The map may not be greater than %d characters.", maxMapLen))
	}
	if len(rec.Region) > maxRegionLen {
		errs.Add("region", fmt.Sprintf("The region may not be greater than %d characters.", maxRegionLen))
	}
	if rec.Ping != nil && *rec.Ping < 0 {
		errs.Add("ping", "The ping must be at least 0.")
	}

	return errs.Err()
}

func validateHeartbeat(hb models.Heartbeat) error {
	errs := models.ValidationErrors{}

	if hb.ServerID == "" {
		errs.Add("server_id", "The server_id field is required.")
	}
	if !hb.Status.Valid() {
		errs.Add("status", "The selected status is invalid.")
	}
	if hb.CurrentPlayers < 0 {
		errs.Add("current_players", "The current_players must be at least 0.")
	}
	if hb.PeakPlayers != nil && *hb.PeakPlayers < 0 {
		errs.Add("peak_players", "The peak_players must be at least 0.")
	}
	if hb.Map != nil && len(*hb.Map) > maxMapLen {
		errs.Add("map", fmt.Sprintf("The map may not be greater than %d characters.", maxMapLen))
	}
	if hb.Ping != nil && *hb.Ping < 0 {
		errs.Add("ping", "The ping must be at least 0.")
	}

	return errs.Err()
}
