package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/masterlist/internal/models"
)

func TestFieldVariants(t *testing.T) {
	tests := []struct {
		kind string
		ok   []any
		bad  []any
	}{
		{"string", []any{"", "x"}, []any{1, true, nil}},
		{"integer", []any{1, int64(2), float64(3), "42", json.Number("7")}, []any{1.5, "4.2", "-1", "", true}},
		{"float", []any{1, 1.5, "2.5", json.Number("3.1")}, []any{"abc", true, []any{}}},
		{"boolean", []any{true, false, 0, 1, float64(1), "0", "1", "true", "false"}, []any{2, "yes", nil}},
		{"array", []any{[]any{}, map[string]any{}, []string{"a"}}, []any{"a", 1}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s, err := Compile([]models.SchemaField{{Name: "f", Type: tt.kind}})
			require.NoError(t, err)
			require.Len(t, s.Fields(), 1)
			f := s.Fields()[0]
			assert.Equal(t, tt.kind, f.Spec().Type)

			for _, v := range tt.ok {
				assert.True(t, f.Validate(v), "%#v", v)
			}
			for _, v := range tt.bad {
				assert.False(t, f.Validate(v), "%#v", v)
			}
		})
	}
}

func TestCompileRejectsBadDefinitions(t *testing.T) {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}

	_, err := Compile([]models.SchemaField{
		{Name: "", Type: "string"},
		{Name: string(long), Type: "string"},
		{Name: "dup", Type: "string"},
		{Name: "dup", Type: "integer"},
		{Name: "x", Type: "date"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	var fields models.ValidationErrors
	require.ErrorAs(t, err, &fields)
	assert.Contains(t, fields, "schema.0.name")
	assert.Contains(t, fields, "schema.1.name")
	assert.Contains(t, fields, "schema.3.name")
	assert.Contains(t, fields, "schema.4.type")
}

func TestValidate(t *testing.T) {
	s, err := Compile([]models.SchemaField{
		{Name: "mods", Type: "array", Required: true},
		{Name: "slots", Type: "integer"},
		{Name: "pvp", Type: "boolean"},
	})
	require.NoError(t, err)

	assert.NoError(t, s.Validate(map[string]any{"mods": []any{}, "extra": "ignored"}))
	assert.NoError(t, s.Validate(map[string]any{"mods": []any{}, "slots": "60", "pvp": "1"}))

	err = s.Validate(map[string]any{"slots": "sixty", "pvp": nil})
	var fields models.ValidationErrors
	require.ErrorAs(t, err, &fields)
	assert.Equal(t, "The mods field is required.", fields["mods"])
	assert.Equal(t, "The slots field must be of type integer.", fields["slots"])
	assert.NotContains(t, fields, "pvp")

	empty, err := Compile(nil)
	require.NoError(t, err)
	assert.NoError(t, empty.Validate(nil))
}
