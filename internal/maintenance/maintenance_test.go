package maintenance

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/masterlist/internal/config"
	"github.com/woozymasta/masterlist/internal/models"
	"github.com/woozymasta/masterlist/internal/registry"
	"github.com/woozymasta/masterlist/internal/setup"
	"github.com/woozymasta/masterlist/internal/storage"
)

type clock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.New(filepath.Join(t.TempDir(), "masterlist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRunNoTasks(t *testing.T) {
	state, err := setup.Load("")
	require.NoError(t, err)

	ran, err := Run(context.Background(), &config.Config{}, newRepo(t), state, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestRunSetupReset(t *testing.T) {
	flag := filepath.Join(t.TempDir(), "setup.flag")
	require.NoError(t, os.WriteFile(flag, []byte("done\n"), 0o644))

	state, err := setup.Load(flag)
	require.NoError(t, err)
	require.True(t, state.IsComplete())

	cfg := &config.Config{Tasks: config.Tasks{SetupReset: true}}
	ran, err := Run(context.Background(), cfg, newRepo(t), state, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, state.IsComplete())

	_, err = os.Stat(flag)
	assert.True(t, os.IsNotExist(err))
}

func TestRunCreateGame(t *testing.T) {
	repo := newRepo(t)
	state, err := setup.Load("")
	require.NoError(t, err)
	cfg := &config.Config{Tasks: config.Tasks{CreateGame: "730:Counter Strike"}}

	var out bytes.Buffer
	ran, err := Run(context.Background(), cfg, repo, state, &out)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Contains(t, out.String(), "key:    ms_")
	assert.Contains(t, out.String(), "730 (Counter Strike)")

	// a second run reuses the game and issues another key
	out.Reset()
	_, err = Run(context.Background(), cfg, repo, state, &out)
	require.NoError(t, err)

	g, ok, err := repo.GetGameByAppID(context.Background(), 730)
	require.NoError(t, err)
	require.True(t, ok)
	keys, err := repo.ListAPIKeys(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	cfg.Tasks.CreateGame = "bogus"
	_, err = Run(context.Background(), cfg, repo, state, &out)
	assert.Error(t, err)
}

func TestSchedulerSweepsAndSnapshots(t *testing.T) {
	repo := newRepo(t)
	appID, name := int64(730), "CS"
	_, err := repo.CreateGame(context.Background(), models.GameInput{AppID: &appID, Name: &name})
	require.NoError(t, err)

	clk := &clock{now: time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)}
	reg := registry.New(registry.NewMemoryStore(clk.Now), repo, registry.Options{Now: clk.Now})

	_, err = reg.Register(context.Background(), appID, models.ServerRecord{
		ServerID:       "old",
		Name:           "Old",
		Address:        "192.0.2.1",
		Port:           27015,
		MaxPlayers:     10,
		CurrentPlayers: 4,
		Type:           models.TypeDedicated,
	}, "")
	require.NoError(t, err)

	sched := NewScheduler(reg, 10*time.Millisecond, time.Hour)
	sched.Start(context.Background())
	defer sched.Stop()

	// the start snapshot saw the live server
	hourly, err := reg.HourlyStats(context.Background(), appID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, hourly[0].ActiveServers)
	assert.Equal(t, 4, hourly[0].PeakPlayers)

	clk.Advance(2 * time.Minute)

	require.Eventually(t, func() bool {
		_, ok, err := reg.Store().Get(context.Background(), appID, "old")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)

	sched.Stop()
	sched.Stop()
}
