package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStatusTable(t *testing.T) {
	statuses := ServerStatuses()
	require.Len(t, statuses, int(statusEnd)-1)

	for _, s := range statuses {
		assert.True(t, s.Valid())
		assert.NotEmpty(t, statusTable[s].name, "status %d has no table entry", s)

		parsed, err := ParseServerStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	assert.True(t, StatusOnline.IsAvailable())
	for _, s := range []ServerStatus{StatusOffline, StatusStarting, StatusFull, 0} {
		assert.False(t, s.IsAvailable(), s.String())
	}

	assert.False(t, ServerStatus(0).Valid())
	assert.Equal(t, "Unknown", ServerStatus(99).Label())
	_, err := ParseServerStatus("sleeping")
	assert.Error(t, err)
}

func TestServerTypeTable(t *testing.T) {
	types := ServerTypes()
	require.Equal(t, []ServerType{TypeListen, TypeDedicated}, types)

	for _, ty := range types {
		parsed, err := ParseServerType(ty.String())
		require.NoError(t, err)
		assert.Equal(t, ty, parsed)
		assert.NotEqual(t, "Unknown", ty.Label())
	}

	assert.Equal(t, "type(7)", ServerType(7).String())
}

func TestEnumJSON(t *testing.T) {
	var v struct {
		Status ServerStatus `json:"status"`
		Type   ServerType   `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status": "full", "type": "listen"}`), &v))
	assert.Equal(t, StatusFull, v.Status)
	assert.Equal(t, TypeListen, v.Type)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "full", "type": "listen"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"status": "gone"}`), &v))

	v.Status = 0
	_, err = json.Marshal(v)
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	ping := 30
	rec := ServerRecord{
		ServerID: "a",
		Ping:     &ping,
		Metadata: map[string]any{
			"mods":     []any{"x", map[string]any{"id": 1}},
			"settings": map[string]any{"pvp": true},
		},
	}

	c := rec.Clone()
	*c.Ping = 99
	c.Metadata["mods"].([]any)[0] = "changed"
	c.Metadata["mods"].([]any)[1].(map[string]any)["id"] = 2
	c.Metadata["settings"].(map[string]any)["pvp"] = false

	assert.Equal(t, 30, *rec.Ping)
	assert.Equal(t, "x", rec.Metadata["mods"].([]any)[0])
	assert.Equal(t, 1, rec.Metadata["mods"].([]any)[1].(map[string]any)["id"])
	assert.Equal(t, true, rec.Metadata["settings"].(map[string]any)["pvp"])

	assert.NotNil(t, ServerRecord{}.Clone().Metadata)
}

func TestMergeMetadata(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2}
	merged := MergeMetadata(base, map[string]any{"b": 3, "c": 4})

	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, base)
}

func TestIsFull(t *testing.T) {
	assert.True(t, ServerRecord{CurrentPlayers: 10, MaxPlayers: 10}.IsFull())
	assert.False(t, ServerRecord{CurrentPlayers: 9, MaxPlayers: 10}.IsFull())
}

func TestValidationErrors(t *testing.T) {
	errs := ValidationErrors{}
	assert.NoError(t, errs.Err())

	errs.Add("port", "bad port")
	errs.Add("port", "ignored")
	errs.Add("address", "bad address")

	err := errs.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, "invalid input: address: bad address; port: bad port", err.Error())

	var fields ValidationErrors
	require.ErrorAs(t, FieldError("name", "required"), &fields)
	assert.Equal(t, "required", fields["name"])
}

func TestGameTenant(t *testing.T) {
	g := Game{ID: 3, AppID: 730, Name: "CS", IsActive: true, MemoryLimitMB: 4}
	assert.Equal(t, Tenant{ID: 730, Name: "CS", Active: true, MemoryLimitMB: 4}, g.Tenant())
}
