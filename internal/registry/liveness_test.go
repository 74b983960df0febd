package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlive(t *testing.T) {
	now := time.Now()
	assert.True(t, Alive(now.Add(-89*time.Second), now, 90*time.Second))
	assert.False(t, Alive(now.Add(-90*time.Second), now, 90*time.Second))
	assert.False(t, Alive(now.Add(-91*time.Second), now, 90*time.Second))
}

func TestSweepTenantThresholdBoundary(t *testing.T) {
	clk := newClock()
	s := NewMemoryStore(clk.Now)
	l := NewLiveness(s, clk.Now, 300*time.Second, 90*time.Second)
	ctx := context.Background()

	stale := record("stale", 0, 10)
	stale.LastHeartbeat = clk.Now().Add(-91 * time.Second)
	fresh := record("fresh", 0, 10)
	fresh.LastHeartbeat = clk.Now().Add(-89 * time.Second)
	_, err := s.Upsert(ctx, 1, stale)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, 1, fresh)
	require.NoError(t, err)

	removed, err := l.SweepTenant(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	recs, err := s.Scan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids(recs))
}

func TestSweepTenantKeepsRevivedServer(t *testing.T) {
	clk := newClock()
	s := NewMemoryStore(clk.Now)
	l := NewLiveness(s, clk.Now, 300*time.Second, 90*time.Second)
	ctx := context.Background()

	_, err := s.Upsert(ctx, 1, record("s1", 0, 10))
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	// a heartbeat that lands after the snapshot moves the mark past the cutoff
	cutoff := clk.Now().Add(-90 * time.Second)
	rec := record("s1", 1, 10)
	rec.LastHeartbeat = clk.Now()
	_, err = s.Upsert(ctx, 1, rec)
	require.NoError(t, err)

	ok, err := s.RemoveIfStale(ctx, 1, "s1", cutoff)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := l.SweepTenant(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestReadThresholdIsIndependent(t *testing.T) {
	clk := newClock()
	s := NewMemoryStore(clk.Now)
	l := NewLiveness(s, clk.Now, 300*time.Second, 90*time.Second)
	ctx := context.Background()

	_, err := s.Upsert(ctx, 1, record("s1", 0, 10))
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	recs, err := s.Scan(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, l.FilterReadAlive(recs), 1, "still visible to reads")

	removed, err := l.SweepTenant(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "but past the sweep threshold")
}
