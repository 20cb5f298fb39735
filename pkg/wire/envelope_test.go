package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeMarshalUnmarshalRoundTrip(t *testing.T) {
	req := NewRequestEnvelope("select", map[string]any{"table_name": "files"}, "req-1")
	data, err := Marshal(req)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "select", got.Method)
	assert.Equal(t, "req-1", got.ID)
	assert.Equal(t, "files", got.Params["table_name"])
	assert.False(t, got.IsError())
}

func TestEnvelopeErrorShape(t *testing.T) {
	resp := NewErrorEnvelope("req-2", 1002, "validation failed", map[string]any{"field": "table_name"})
	data, err := Marshal(resp)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.True(t, got.IsError())
	assert.Equal(t, 1002, got.Error.Code)
	assert.Equal(t, "validation failed", got.Error.Message)
	assert.Equal(t, "table_name", got.Error.Data["field"])
}

func TestEnvelopeSuccessShape(t *testing.T) {
	resp := NewResultEnvelope("req-3", map[string]any{"success": true, "data": []any{map[string]any{"id": float64(1)}}})
	data, err := Marshal(resp)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.False(t, got.IsError())
	assert.Equal(t, true, got.Result["success"])
}
