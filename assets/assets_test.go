package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, "0001_games.sql", migrations[0].Version)
	assert.Equal(t, "0002_instances.sql", migrations[1].Version)
	assert.Equal(t, "0003_api_keys.sql", migrations[2].Version)
	for _, m := range migrations {
		assert.Contains(t, m.SQL, "CREATE TABLE", m.Version)
	}
}
