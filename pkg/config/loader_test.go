package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o644))
}

func TestInitialize_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, "continue", cfg.ResumePrompt)
	assert.Equal(t, 5000, cfg.CheckIntervalMS)
	assert.Equal(t, 10, cfg.PostResetDelaySec)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, []int{10, 20, 40, 60}, cfg.RetryBackoffSec)
	assert.True(t, cfg.TranscriptPollingEnabled)
	assert.False(t, cfg.ServerEnabled)
}

func TestInitialize_PartialOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `{"resume_prompt": "keep going", "max_retries": 2}`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, "keep going", cfg.ResumePrompt)
	assert.Equal(t, 2, cfg.MaxRetries)
	// Untouched keys keep defaults.
	assert.Equal(t, 5000, cfg.CheckIntervalMS)
	assert.Equal(t, []int{10, 20, 40, 60}, cfg.RetryBackoffSec)
}

func TestInitialize_ExplicitFalseOverridesDefaultTrue(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `{"transcript_polling_enabled": false, "metrics_enabled": false}`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.False(t, cfg.TranscriptPollingEnabled)
	assert.False(t, cfg.MetricsEnabled)
	// Unmentioned flags keep their defaults.
	assert.True(t, cfg.DesktopNotificationsEnabled)
}

func TestInitialize_UnknownKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `{"future_key": {"nested": true}, "check_interval_ms": 1000}`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.CheckIntervalMS)
}

func TestInitialize_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `{ not json`)

	_, err := Initialize(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidJSON)

	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestInitialize_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"zero check interval", `{"check_interval_ms": -5}`, "check_interval_ms"},
		{"negative backoff entry", `{"retry_backoff_sec": [-5]}`, "retry_backoff_sec"},
		{"negative retries", `{"max_retries": -1}`, "max_retries"},
		{"non-loopback server", `{"server_enabled": true, "server_addr": "0.0.0.0:7865"}`, "server_addr"},
		{"slack without channel", `{"slack_enabled": true}`, "slack_channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfigFile(t, dir, tt.content)

			_, err := Initialize(dir)
			require.Error(t, err)

			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.field, valErr.Field)
		})
	}
}

func TestSet_UpdatesSingleKey(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Set(dir, "check_interval_ms", "2500")
	require.NoError(t, err)
	assert.Equal(t, 2500, cfg.CheckIntervalMS)

	// Document on disk holds only the touched key.
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	doc := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(2500), doc["check_interval_ms"])
	assert.NotContains(t, doc, "resume_prompt")
}

func TestSet_PreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `{"future_key": 42}`)

	_, err := Set(dir, "resume_prompt", "resume")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	doc := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(42), doc["future_key"])
	assert.Equal(t, "resume", doc["resume_prompt"])
}

func TestSet_ParsesTypedValues(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Set(dir, "retry_backoff_sec", "5, 15, 30")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 15, 30}, cfg.RetryBackoffSec)

	cfg, err = Set(dir, "transcript_polling_enabled", "false")
	require.NoError(t, err)
	assert.False(t, cfg.TranscriptPollingEnabled)

	cfg, err = Set(dir, "trigger_phrases", "usage limit reached, quota exhausted")
	require.NoError(t, err)
	assert.Equal(t, []string{"usage limit reached", "quota exhausted"}, cfg.TriggerPhrases)
}

func TestSet_RejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()

	_, err := Set(dir, "no_such_key", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestSet_RejectsMalformedValue(t *testing.T) {
	dir := t.TempDir()

	_, err := Set(dir, "check_interval_ms", "soon")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ResumePrompt = "carry on"
	cfg.ServerEnabled = true
	cfg.ServerAddr = "localhost:9911"

	require.NoError(t, Save(dir, cfg))

	loaded, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
