package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriter(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	ctx := WithRequestID(context.Background(), "req-1")
	l.WithContext(ctx).With("entity", "route").Info("saved", "id", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "saved", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "route", entry["entity"])
	assert.Equal(t, float64(7), entry["id"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriter(Config{Level: "warn"}, &buf)
	require.NoError(t, err)
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestInvalidConfig(t *testing.T) {
	_, err := NewWriter(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
	_, err = NewWriter(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNopAndRequestID(t *testing.T) {
	l := Nop()
	l.Error("ignored")
	assert.Same(t, l, l.WithContext(context.Background()))
	assert.Empty(t, RequestID(context.Background()))
	assert.NoError(t, Sync(l))
}
