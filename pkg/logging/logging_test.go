package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesComponentTaggedJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "queue", InfoLevel)
	l.Info("enqueued request", "request_id", "req-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "queue", line["component"])
	assert.Equal(t, "enqueued request", line["message"])
	assert.Equal(t, "req-1", line["request_id"])
}

func TestLoggerRespectsMinimumLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "driver", WarnLevel)
	l.Debug("should not appear")
	l.Info("also should not appear")
	assert.Empty(t, buf.Bytes())

	l.Warn("should appear")
	assert.NotEmpty(t, buf.Bytes())
}

func TestWithAttachesField(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "server", InfoLevel).With("request_id", "req-9")
	l.Info("dispatching")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-9", line["request_id"])
}
