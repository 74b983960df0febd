package registry

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/woozymasta/masterlist/internal/metrics"
	"github.com/woozymasta/masterlist/internal/models"
)

// HourKeyLayout formats hourly bucket keys (YYYY-MM-DD-HH, UTC).
const HourKeyLayout = "2006-01-02-15"

// History window bounds of HourlyStats. hours <= 0 means DefaultHistoryHours and
// larger windows are cut to MaxHistoryHours.
const (
	DefaultHistoryHours = 24
	MaxHistoryHours     = 7 * 24
)

// bucketSize approximates the bytes held by one hourly bucket.
const bucketSize = 96

type tenantStats struct {
	expires time.Time
	cached  *models.CurrentStats
	hourly  map[string]models.HourlyBucket
	gen     uint64
	mu      sync.Mutex
}

// Aggregator keeps the current stats cache and the hourly history of each tenant.
// It subscribes to store mutations and drops a tenant's cache on every change.
type Aggregator struct {
	store    Store
	live     *Liveness
	now      func() time.Time
	tenants  map[int64]*tenantStats
	cacheTTL time.Duration
	retain   time.Duration
	mu       sync.RWMutex
}

// NewAggregator creates an aggregator and registers its invalidation observer on the store.
func NewAggregator(store Store, live *Liveness, now func() time.Time, cacheTTL, retain time.Duration) *Aggregator {
	a := &Aggregator{
		store:    store,
		live:     live,
		now:      now,
		cacheTTL: cacheTTL,
		retain:   retain,
		tenants:  make(map[int64]*tenantStats),
	}
	store.Subscribe(a.observe)
	return a
}

func (a *Aggregator) observe(tenantID int64, kind MutationKind) {
	if kind == MutationClear {
		a.Forget(tenantID)
		return
	}
	a.Invalidate(tenantID)
}

func (a *Aggregator) tenant(tenantID int64) *tenantStats {
	a.mu.RLock()
	ts := a.tenants[tenantID]
	a.mu.RUnlock()
	if ts != nil {
		return ts
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ts = a.tenants[tenantID]; ts == nil {
		ts = &tenantStats{hourly: make(map[string]models.HourlyBucket)}
		a.tenants[tenantID] = ts
	}
	return ts
}

// Invalidate drops the cached current stats of a tenant.
func (a *Aggregator) Invalidate(tenantID int64) {
	ts := a.tenant(tenantID)
	ts.mu.Lock()
	ts.gen++
	ts.cached = nil
	ts.mu.Unlock()
}

// Forget drops every derived value of a tenant: cache and hourly history.
func (a *Aggregator) Forget(tenantID int64) {
	a.mu.Lock()
	ts := a.tenants[tenantID]
	delete(a.tenants, tenantID)
	a.mu.Unlock()

	if ts != nil {
		// bump the generation so an in-flight computation does not repopulate
		ts.mu.Lock()
		ts.gen++
		ts.cached = nil
		ts.mu.Unlock()
	}
}

// CurrentStats returns the cached stats of a tenant or recomputes them.
// A value computed while a mutation happened is returned but not cached.
func (a *Aggregator) CurrentStats(ctx context.Context, tenantID int64) (models.CurrentStats, error) {
	ts := a.tenant(tenantID)

	ts.mu.Lock()
	if ts.cached != nil && a.now().Before(ts.expires) {
		out := *ts.cached
		ts.mu.Unlock()
		return out, nil
	}
	gen := ts.gen
	ts.mu.Unlock()

	stats, err := a.Compute(ctx, tenantID)
	if err != nil {
		return models.CurrentStats{}, err
	}

	ts.mu.Lock()
	if ts.gen == gen {
		ts.cached = &stats
		ts.expires = a.now().Add(a.cacheTTL)
	}
	ts.mu.Unlock()

	return stats, nil
}

// Compute scans the tenant and sums its live records without touching the cache.
// Peak players take the record's reported peak when present, else its player count.
func (a *Aggregator) Compute(ctx context.Context, tenantID int64) (models.CurrentStats, error) {
	recs, err := a.store.Scan(ctx, tenantID)
	if err != nil {
		return models.CurrentStats{}, err
	}

	var out models.CurrentStats
	for _, rec := range a.live.FilterReadAlive(recs) {
		out.ActiveServers++
		out.CurrentPlayers += rec.CurrentPlayers

		peak := rec.CurrentPlayers
		if rec.PeakPlayers != nil {
			peak = *rec.PeakPlayers
		}
		out.PeakPlayers = max(out.PeakPlayers, peak)
	}

	metrics.ServersActive.WithLabelValues(strconv.FormatInt(tenantID, 10)).Set(float64(out.ActiveServers))
	return out, nil
}

// RecordHourlySnapshot folds the tenant's current state into the bucket of the current hour.
// Active servers are overwritten, peak players only grow within the hour.
func (a *Aggregator) RecordHourlySnapshot(ctx context.Context, tenantID int64) (models.HourlyBucket, error) {
	stats, err := a.Compute(ctx, tenantID)
	if err != nil {
		return models.HourlyBucket{}, err
	}

	now := a.now()
	key := HourKey(now)
	ts := a.tenant(tenantID)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	a.pruneLocked(ts, now)
	prev := ts.hourly[key]
	b := models.HourlyBucket{
		Key:           key,
		ActiveServers: stats.ActiveServers,
		PeakPlayers:   max(prev.PeakPlayers, stats.CurrentPlayers),
		RecordedAt:    now,
		ExpiresAt:     now.Add(a.retain),
	}
	ts.hourly[key] = b

	return b, nil
}

// PutHourlyBucket stores a bucket as is, expiring it after the retention window.
func (a *Aggregator) PutHourlyBucket(tenantID int64, b models.HourlyBucket) {
	if b.ExpiresAt.IsZero() {
		b.ExpiresAt = a.now().Add(a.retain)
	}
	ts := a.tenant(tenantID)
	ts.mu.Lock()
	ts.hourly[b.Key] = b
	ts.mu.Unlock()
}

// HourlyStats returns one entry per hour of the trailing window, oldest first.
// Missing or expired hours are reported as zero.
func (a *Aggregator) HourlyStats(tenantID int64, hours int) []models.HourlyStat {
	if hours <= 0 {
		hours = DefaultHistoryHours
	}
	hours = min(hours, MaxHistoryHours)

	now := a.now()
	ts := a.tenant(tenantID)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	a.pruneLocked(ts, now)

	out := emptyHours(now, hours)
	for i := range out {
		b := ts.hourly[HourKey(out[i].Timestamp)]
		out[i].ActiveServers = b.ActiveServers
		out[i].PeakPlayers = b.PeakPlayers
	}
	return out
}

// emptyHours returns the zero valued trailing window ending with the hour of now.
func emptyHours(now time.Time, hours int) []models.HourlyStat {
	out := make([]models.HourlyStat, 0, hours)
	for i := hours - 1; i >= 0; i-- {
		at := now.Add(-time.Duration(i) * time.Hour).UTC().Truncate(time.Hour)
		out = append(out, models.HourlyStat{Hour: at.Format("15:00"), Timestamp: at})
	}
	return out
}

// Usage approximates the bytes held for the tenant's hourly history.
func (a *Aggregator) Usage(tenantID int64) int64 {
	ts := a.tenant(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return int64(len(ts.hourly)) * bucketSize
}

func (a *Aggregator) pruneLocked(ts *tenantStats, now time.Time) {
	for k, b := range ts.hourly {
		if !now.Before(b.ExpiresAt) {
			delete(ts.hourly, k)
		}
	}
}

// HourKey returns the bucket key of the hour containing t.
func HourKey(t time.Time) string {
	return t.UTC().Format(HourKeyLayout)
}
