package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/config"
)

func TestJSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &config.Config{AppEnv: "production", LogLevel: "info"})
	logger.Info("lookup failed", "component", "routing_store", "key", "promo")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "lookup failed", line["msg"])
	assert.Equal(t, "routing_store", line["component"])
	assert.Equal(t, "promo", line["key"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &config.Config{LogLevel: "warn"})
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
