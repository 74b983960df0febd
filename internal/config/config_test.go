package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := ParseArgs([]string{"--auth-token", "secret"})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 300*time.Second, cfg.Registry.StaleThreshold)
	assert.Equal(t, 90*time.Second, cfg.Registry.SweepThreshold)
	assert.Equal(t, time.Minute, cfg.Registry.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Registry.SnapshotInterval)
	assert.Equal(t, 300*time.Second, cfg.Auth.HMACTolerance)
	assert.Equal(t, 60, cfg.RateLimit.APICount)
	assert.Equal(t, 120, cfg.RateLimit.ServerCount)
	assert.Empty(t, cfg.GeoIP.Path)
	assert.False(t, cfg.Simulate.Enabled())
	assert.False(t, cfg.Stress.Enabled())

	opts := cfg.Registry.Options()
	assert.Equal(t, 300*time.Second, opts.ReadThreshold)
	assert.Equal(t, 2*time.Second, opts.OpTimeout)
	assert.NotNil(t, opts.Now)
}

func TestNamespacedFlags(t *testing.T) {
	cfg, err := ParseArgs([]string{
		"--registry-sweep-threshold", "45s",
		"--rate-limit-api", "10",
		"--sim-servers", "5",
		"--stress-fill-mb", "3",
		"--create-game", "730:Counter Strike",
	})
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Registry.SweepThreshold)
	assert.Equal(t, 10, cfg.RateLimit.APICount)
	assert.True(t, cfg.Simulate.Enabled())
	assert.True(t, cfg.Stress.Enabled())
}

func TestEnvironment(t *testing.T) {
	t.Setenv("MASTERLIST_REGISTRY_STALE_THRESHOLD", "2m")
	t.Setenv("MASTERLIST_AUTH_TOKEN", "from-env")

	cfg, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Registry.StaleThreshold)
	assert.Equal(t, "from-env", cfg.Server.AuthToken)
}

func TestParseGameSpec(t *testing.T) {
	id, name, err := ParseGameSpec("730: Counter Strike ")
	require.NoError(t, err)
	assert.Equal(t, int64(730), id)
	assert.Equal(t, "Counter Strike", name)

	for _, bad := range []string{"730", "x:Name", "0:Name", "12:"} {
		_, _, err := ParseGameSpec(bad)
		assert.Error(t, err, bad)
	}

	_, err = ParseArgs([]string{"--create-game", "nope"})
	assert.Error(t, err)
}
