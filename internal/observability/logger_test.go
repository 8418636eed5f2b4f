package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("elevation lookup failed", "row", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "elevation lookup failed", entry["msg"])
	assert.Equal(t, float64(3), entry["row"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "text")

	logger.Debug("visible", "stage", "derive")
	assert.Contains(t, buf.String(), "msg=visible")
	assert.Contains(t, buf.String(), "stage=derive")
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	m1 := NewMetricsForTesting()
	m2 := NewMetricsForTesting()
	m1.RecordsLoaded.Add(3)
	assert.NotSame(t, m1.RecordsLoaded, m2.RecordsLoaded)
}
