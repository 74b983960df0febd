package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/masterlist/internal/models"
)

type schemas map[string][]models.SchemaField

func (s schemas) InstanceSchema(_ context.Context, _ int64, name string) ([]models.SchemaField, bool, error) {
	defs, ok := s[name]
	return defs, ok, nil
}

func newRegistry(t *testing.T) (*Registry, *clock, *tenants) {
	t.Helper()
	clk := newClock()
	ts := newTenants(
		models.Tenant{ID: 42, Name: "Arena", Active: true, MemoryLimitMB: 1},
		models.Tenant{ID: 7, Name: "Retired", Active: false, MemoryLimitMB: 2},
		models.Tenant{ID: 9, Name: "Racing", Active: true, MemoryLimitMB: 1},
	)
	opts := DefaultOptions()
	opts.Now = clk.Now
	opts.Schemas = schemas{
		"ranked": {{Name: "season", Type: "integer", Required: true}},
	}
	return New(NewMemoryStore(clk.Now), ts, opts), clk, ts
}

func TestRegisteredServerMatchesRegionAndCapacityFilter(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	rec := record("S1", 10, 32)
	_, err := r.Register(ctx, 42, rec, "")
	require.NoError(t, err)

	got, err := r.List(ctx, 42, Filter{Region: "us-east", NotFull: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, ids(got))

	got, err = r.List(ctx, 42, Filter{Region: "eu-west"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHeartbeatUnknownServerCreatesNothing(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Heartbeat(ctx, 42, models.Heartbeat{ServerID: "ghost", CurrentPlayers: 1})
	require.ErrorIs(t, err, models.ErrServerNotFound)

	_, ok, err := r.Get(ctx, 42, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepEvictsSilentServerAndStatsFollow(t *testing.T) {
	r, clk, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, 42, record("S1", 4, 16), "")
	require.NoError(t, err)
	st, err := r.CurrentStats(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ActiveServers)

	clk.Advance(r.Options().SweepThreshold + time.Second)
	removed, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{42: 1}, removed)

	st, err = r.CurrentStats(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, st.ActiveServers)
}

func TestConcurrentHeartbeatsKeepLatestWrite(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()
	_, err := r.Register(ctx, 42, record("S1", 0, 16), "")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []models.ServerRecord
	)
	for _, players := range []int{5, 8} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := r.Heartbeat(ctx, 42, models.Heartbeat{ServerID: "S1", CurrentPlayers: players, Ping: intp(players)})
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, rec)
			mu.Unlock()
		}()
	}
	wg.Wait()

	final, ok, err := r.Get(ctx, 42, "S1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, []int{5, 8}, final.CurrentPlayers)
	require.NotNil(t, final.Ping)
	assert.Equal(t, final.CurrentPlayers, *final.Ping, "fields come from a single write")
}

func TestHeartbeatMerge(t *testing.T) {
	r, clk, _ := newRegistry(t)
	ctx := context.Background()

	rec := record("S1", 1, 16)
	rec.Map = "de_dust2"
	rec.Ping = intp(30)
	rec.Metadata = map[string]any{"mode": "ctf", "round": 1}
	_, err := r.Register(ctx, 42, rec, "")
	require.NoError(t, err)

	clk.Advance(30 * time.Second)
	mp := "de_nuke"
	got, err := r.Heartbeat(ctx, 42, models.Heartbeat{
		ServerID:       "S1",
		CurrentPlayers: 6,
		Status:         models.StatusFull,
		Map:            &mp,
		Metadata:       map[string]any{"round": 2},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusFull, got.Status)
	assert.Equal(t, 6, got.CurrentPlayers)
	assert.Equal(t, "de_nuke", got.Map)
	assert.Equal(t, 30, *got.Ping)
	assert.Equal(t, map[string]any{"mode": "ctf", "round": 2}, got.Metadata)
	assert.Equal(t, "Server S1", got.Name)
	assert.Equal(t, clk.Now(), got.LastHeartbeat)
}

func TestTenantGate(t *testing.T) {
	r, _, ts := newRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, 1000, record("S1", 0, 10), "")
	require.ErrorIs(t, err, models.ErrTenantUnknown)

	_, err = r.Register(ctx, 7, record("S1", 0, 10), "")
	require.ErrorIs(t, err, models.ErrTenantInactive)
	assert.False(t, errors.Is(err, models.ErrTenantUnknown))

	_, err = r.List(ctx, 7, Filter{})
	require.ErrorIs(t, err, models.ErrTenantInactive)

	_, err = r.Heartbeat(ctx, 1000, models.Heartbeat{ServerID: "S1"})
	require.ErrorIs(t, err, models.ErrTenantUnknown)

	// admin views still see inactive games
	_, err = r.Servers(ctx, 7, 1, 10)
	require.NoError(t, err)

	ts.err = errors.New("catalog down")
	_, err = r.List(ctx, 42, Filter{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrTenantUnknown))
}

func TestRegisterValidation(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	bad := record("", -1, 0)
	bad.Address = "not-an-ip"
	bad.Port = 70000
	bad.Type = 0
	_, err := r.Register(ctx, 42, bad, "")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	var verr models.ValidationErrors
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"server_id", "address", "port", "server_type", "max_players", "current_players"} {
		assert.Contains(t, verr, field)
	}

	recs, err := r.Store().Scan(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, recs, "invalid input never reaches the store")
}

func TestRegisterInstanceSchema(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	rec := record("S1", 0, 10)
	_, err := r.Register(ctx, 42, rec, "ranked")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	rec.Metadata = map[string]any{"season": "x"}
	_, err = r.Register(ctx, 42, rec, "ranked")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	rec.Metadata = map[string]any{"season": float64(3)}
	_, err = r.Register(ctx, 42, rec, "ranked")
	require.NoError(t, err)

	_, err = r.Register(ctx, 42, rec, "casual")
	var verr models.ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr, "instance")
}

func TestUnregister(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	require.ErrorIs(t, r.Unregister(ctx, 42, "S1"), models.ErrServerNotFound)

	_, err := r.Register(ctx, 42, record("S1", 0, 10), "")
	require.NoError(t, err)
	require.NoError(t, r.Unregister(ctx, 42, "S1"))

	_, ok, err := r.Get(ctx, 42, "S1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServersUsesReadThreshold(t *testing.T) {
	r, clk, _ := newRegistry(t)
	ctx := context.Background()

	offline := record("off", 0, 10)
	offline.Status = models.StatusOffline
	_, err := r.Register(ctx, 42, offline, "")
	require.NoError(t, err)

	clk.Advance(4 * time.Minute)
	_, err = r.Register(ctx, 42, record("on", 0, 10), "")
	require.NoError(t, err)

	page, err := r.Servers(ctx, 42, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"off", "on"}, ids(page.Items), "status does not gate monitoring")

	clk.Advance(2 * time.Minute)
	page, err = r.Servers(ctx, 42, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"on"}, ids(page.Items))
}

func TestSweepIsolatesTenants(t *testing.T) {
	clk := newClock()
	base := NewMemoryStore(clk.Now)
	store := &failingStore{MemoryStore: base, fail: 42}
	ts := newTenants(
		models.Tenant{ID: 42, Active: true},
		models.Tenant{ID: 9, Active: true},
	)
	opts := DefaultOptions()
	opts.Now = clk.Now
	r := New(store, ts, opts)
	ctx := context.Background()

	_, err := r.Register(ctx, 42, record("a", 0, 10), "")
	require.NoError(t, err)
	_, err = r.Register(ctx, 9, record("b", 0, 10), "")
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	removed, err := r.Sweep(ctx)
	require.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Equal(t, map[int64]int{9: 1}, removed)

	require.ErrorIs(t, r.SnapshotHourly(ctx), models.ErrStoreUnavailable)
	hist, err := r.HourlyStats(ctx, 9, 1)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestOverviewAndGameStats(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, 42, record("a", 3, 10), "")
	require.NoError(t, err)
	_, err = r.Register(ctx, 42, record("b", 4, 10), "")
	require.NoError(t, err)
	_, err = r.Register(ctx, 9, record("c", 1, 10), "")
	require.NoError(t, err)
	require.NoError(t, r.SnapshotHourly(ctx))

	ov, err := r.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ov.TotalGames)
	assert.Equal(t, 2, ov.ActiveGames)
	assert.Equal(t, 3, ov.TotalServers)
	assert.Equal(t, 8, ov.TotalPlayers)
	require.Len(t, ov.Games, 3)
	assert.Equal(t, int64(7), ov.Games[0].AppID)

	gs, err := r.GameStats(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, gs.Current.ActiveServers)
	assert.Equal(t, 7, gs.PeakPlayers24h)
	assert.Len(t, gs.Hourly, DefaultHistoryHours)
	assert.Equal(t, int64(1<<20), gs.Memory.LimitBytes)
	assert.Positive(t, gs.Memory.UsedBytes)
	assert.Equal(t, "1.0 MiB", gs.Memory.LimitFormatted)

	dash, err := r.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, dash.Hourly[len(dash.Hourly)-1].PeakPlayers)

	_, err = r.GameStats(ctx, 1000)
	require.ErrorIs(t, err, models.ErrTenantUnknown)
}

func TestClearTenant(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, 42, record("a", 3, 10), "")
	require.NoError(t, err)
	require.NoError(t, r.SnapshotHourly(ctx))
	require.NoError(t, r.ClearTenant(ctx, 42))

	got, err := r.List(ctx, 42, Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	for _, h := range r.Stats().HourlyStats(42, 24) {
		assert.Zero(t, h.PeakPlayers)
	}
	assert.Equal(t, "game:42", Namespace(42))
}

// failingStore reports the store as unavailable for one tenant's scans.
type failingStore struct {
	*MemoryStore
	fail int64
}

func (f *failingStore) Liveness(ctx context.Context, tenantID int64) (map[string]time.Time, error) {
	if tenantID == f.fail {
		return nil, models.ErrStoreUnavailable
	}
	return f.MemoryStore.Liveness(ctx, tenantID)
}

func (f *failingStore) Scan(ctx context.Context, tenantID int64) ([]models.ServerRecord, error) {
	if tenantID == f.fail {
		return nil, models.ErrStoreUnavailable
	}
	return f.MemoryStore.Scan(ctx, tenantID)
}
