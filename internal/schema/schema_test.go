package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "digest"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "digest": {"type": "string", "pattern": "^[a-f0-9]{64}$"}
  }
}`

func TestValidateJSON(t *testing.T) {
	s := NewLazy("test.schema.json", []byte(testSchema))

	result, err := s.ValidateJSON([]byte(`{"name":"pinactlite","digest":"` + sixtyFourHex + `"}`))
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = s.ValidateJSON([]byte(`{"name":"","digest":"xyz"}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Issues)
	assert.Contains(t, result.Summary(), "/digest")
	assert.Contains(t, result.Summary(), "/name")
}

func TestValidateJSON_Malformed(t *testing.T) {
	s := NewLazy("test.schema.json", []byte(testSchema))
	_, err := s.ValidateJSON([]byte("{not json"))
	assert.Error(t, err)
}

func TestValidateValue(t *testing.T) {
	s := NewLazy("test.schema.json", []byte(testSchema))
	result, err := s.ValidateValue(map[string]any{"name": "pre-push"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "required", result.Issues[0].Keyword)
}

func TestBadSchema(t *testing.T) {
	s := NewLazy("bad.schema.json", []byte(`{"type": 12}`))
	_, err := s.ValidateJSON([]byte(`{}`))
	assert.Error(t, err)
}

const sixtyFourHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
