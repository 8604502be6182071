package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apothic-AI/bufo/internal/common/config"
	"github.com/Apothic-AI/bufo/internal/common/logger"
)

func sinkIn(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "telemetry.jsonl")
}

func TestCaptureDisabledWritesNothing(t *testing.T) {
	sink := sinkIn(t)
	tel, err := New(config.TelemetryConfig{AllowCollect: false}, sink, logger.Default())
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	tel.Capture(Event{Name: "prompt_sent"})

	_, err = os.Stat(sink)
	assert.True(t, os.IsNotExist(err))
}

func TestCaptureAppendsEvents(t *testing.T) {
	sink := sinkIn(t)
	tel, err := New(config.TelemetryConfig{AllowCollect: true}, sink, logger.Default())
	require.NoError(t, err)
	require.True(t, tel.Enabled())

	tel.Capture(Event{Name: "prompt_sent", Properties: map[string]interface{}{"agent": "mock"}})
	tel.Capture(Event{Name: "session_created"})

	f, err := os.Open(sink)
	require.NoError(t, err)
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &payload))

		names = append(names, payload["name"].(string))
		assert.Equal(t, tel.DistinctID(), payload["distinct_id"])
		assert.NotEmpty(t, payload["ts"])

		props, ok := payload["properties"].(map[string]interface{})
		require.True(t, ok)
		assert.NotEmpty(t, props["platform"])
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"prompt_sent", "session_created"}, names)
}

func TestCaptureMergesProperties(t *testing.T) {
	sink := sinkIn(t)
	tel, err := New(config.TelemetryConfig{AllowCollect: true}, sink, logger.Default())
	require.NoError(t, err)

	tel.Capture(Event{Name: "shell_command", Properties: map[string]interface{}{"risk": "dangerous"}})

	data, err := os.ReadFile(sink)
	require.NoError(t, err)

	var payload struct {
		Properties map[string]interface{} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "dangerous", payload.Properties["risk"])
	assert.NotEmpty(t, payload.Properties["platform"])
}

func TestDistinctIDStableAcrossInstances(t *testing.T) {
	sink := sinkIn(t)

	first, err := New(config.TelemetryConfig{}, sink, logger.Default())
	require.NoError(t, err)
	second, err := New(config.TelemetryConfig{}, sink, logger.Default())
	require.NoError(t, err)

	require.NotEmpty(t, first.DistinctID())
	assert.Equal(t, first.DistinctID(), second.DistinctID())
}
