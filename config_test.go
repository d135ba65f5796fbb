package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsFallsBackToEmbedded(t *testing.T) {
	settings, err := loadSettings(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, ":8080", settings.Server.Address)
	assert.Equal(t, 30*time.Second, settings.Fetch.Timeout)
	assert.Equal(t, 20000, settings.Fetch.ContentLimit)
	assert.Equal(t, 15000, settings.Limits.Transcript)
	assert.Equal(t, 15000, settings.Limits.AuditDeck)
	assert.Equal(t, 8000, settings.Limits.Website)
	assert.Equal(t, 2000, settings.Limits.Social)
	assert.Equal(t, "whisper-1", settings.Transcription.Model)
	assert.NotEmpty(t, settings.Agents.Strategist.Model)
	assert.Positive(t, settings.Agents.Strategist.MaxTokens)
}

func TestLoadSettingsBackfillsPartialFile(t *testing.T) {
	path := writeTempFile(t, "strategy-writer.yaml", `
server:
  address: "127.0.0.1:9000"
fetch:
  timeout: 5s
limits:
  website: 100
agents:
  strategist:
    temperature: 0.2
`)

	settings, err := loadSettings(path)

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", settings.Server.Address)
	assert.Equal(t, 5*time.Second, settings.Fetch.Timeout)
	assert.Equal(t, 100, settings.Limits.Website)
	assert.InDelta(t, 0.2, settings.Agents.Strategist.Temperature, 1e-9)

	defaults := defaultSettings()
	assert.Equal(t, defaults.Limits.Transcript, settings.Limits.Transcript)
	assert.Equal(t, defaults.Fetch.UserAgent, settings.Fetch.UserAgent)
	assert.Equal(t, defaults.Recording.APIBaseURL, settings.Recording.APIBaseURL)
	assert.Equal(t, defaults.Agents.Strategist.Model, settings.Agents.Strategist.Model)
	assert.Equal(t, defaults.Server.MaxUploadMB, settings.Server.MaxUploadMB)
}

func TestLoadSettingsRejectsInvalidYAML(t *testing.T) {
	path := writeTempFile(t, "strategy-writer.yaml", "server: [unclosed")

	_, err := loadSettings(path)

	assert.Error(t, err)
}

func TestConfigPromptOverrides(t *testing.T) {
	system := writeTempFile(t, "system.md", "Custom system prompt")
	missing := filepath.Join(t.TempDir(), "missing.md")
	settingsPath := filepath.Join(t.TempDir(), "none.yaml")

	cfg, err := NewConfig(&ConfigOverrides{
		SettingsPath:     &settingsPath,
		SystemPromptPath: &system,
		UserPromptPath:   &missing,
	})

	require.NoError(t, err)
	assert.Equal(t, "Custom system prompt", cfg.GetSystemPrompt())
	assert.Equal(t, defaultStrategyUserPrompt, cfg.GetUserPrompt())
}

func TestEnsureConfigExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")

	written, err := ensureConfigExists(dir)

	require.NoError(t, err)
	assert.Len(t, written, 3)
	data, err := os.ReadFile(filepath.Join(dir, defaultSettingsPath))
	require.NoError(t, err)
	assert.Equal(t, defaultSettingsYAML, data)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "strategy-user-prompt.md"), []byte("edited"), 0644))
	require.NoError(t, os.Remove(filepath.Join(dir, "strategy-system-prompt.md")))

	written, err = ensureConfigExists(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "strategy-system-prompt.md")}, written)
	edited, err := os.ReadFile(filepath.Join(dir, "strategy-user-prompt.md"))
	require.NoError(t, err)
	assert.Equal(t, "edited", string(edited))
}
