package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultSettingsPath = "strategy-writer.yaml"

// ConfigOverrides allows overriding embedded defaults with file paths
type ConfigOverrides struct {
	SettingsPath     *string
	SystemPromptPath *string
	UserPromptPath   *string
}

// Embedded configuration files
//
//go:embed config/settings.yaml
var defaultSettingsYAML []byte

//go:embed config/strategy-system-prompt.md
var defaultStrategySystemPrompt string

//go:embed config/strategy-user-prompt.md
var defaultStrategyUserPrompt string

// Settings represents the YAML configuration structure
type Settings struct {
	Server struct {
		Address     string   `yaml:"address"`
		CORSOrigins []string `yaml:"cors_origins"`
		MaxUploadMB int64    `yaml:"max_upload_mb"`
	} `yaml:"server"`
	Fetch struct {
		Timeout      time.Duration `yaml:"timeout"`
		ContentLimit int           `yaml:"content_limit"`
		MaxRedirects int           `yaml:"max_redirects"`
		UserAgent    string        `yaml:"user_agent"`
	} `yaml:"fetch"`
	Recording struct {
		APIBaseURL string        `yaml:"api_base_url"`
		Timeout    time.Duration `yaml:"timeout"`
		ListLimit  int           `yaml:"list_limit"`
	} `yaml:"recording"`
	Transcription struct {
		Model   string        `yaml:"model"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"transcription"`
	Agents struct {
		Strategist struct {
			Model       string        `yaml:"model"`
			MaxTokens   int           `yaml:"max_tokens"`
			Temperature float64       `yaml:"temperature"`
			Timeout     time.Duration `yaml:"timeout"`
		} `yaml:"strategist"`
	} `yaml:"agents"`
	Limits FieldLimits `yaml:"limits"`
	Log    struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// FieldLimits caps each normalized field, in characters, before prompting
type FieldLimits struct {
	Transcript int `yaml:"transcript"`
	AuditDeck  int `yaml:"audit_deck"`
	Website    int `yaml:"website"`
	Social     int `yaml:"social"`
}

// Config holds configuration and overrides
type Config struct {
	Settings  *Settings
	Overrides *ConfigOverrides
}

// NewConfig creates a new Config with settings and overrides
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	path := defaultSettingsPath
	if overrides != nil && overrides.SettingsPath != nil {
		path = *overrides.SettingsPath
	}

	settings, err := loadSettings(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	return &Config{
		Settings:  settings,
		Overrides: overrides,
	}, nil
}

// GetSystemPrompt returns the strategist system prompt (from override file or embedded)
func (c *Config) GetSystemPrompt() string {
	if c.Overrides != nil && c.Overrides.SystemPromptPath != nil {
		if content, err := os.ReadFile(*c.Overrides.SystemPromptPath); err == nil {
			return string(content)
		}
		logger.Warnf("Could not read system prompt %s, using embedded default", *c.Overrides.SystemPromptPath)
	}
	return defaultStrategySystemPrompt
}

// GetUserPrompt returns the strategist user prompt template (from override file or embedded)
func (c *Config) GetUserPrompt() string {
	if c.Overrides != nil && c.Overrides.UserPromptPath != nil {
		if content, err := os.ReadFile(*c.Overrides.UserPromptPath); err == nil {
			return string(content)
		}
		logger.Warnf("Could not read user prompt %s, using embedded default", *c.Overrides.UserPromptPath)
	}
	return defaultStrategyUserPrompt
}

// defaultSettings parses the embedded settings file
func defaultSettings() *Settings {
	var settings Settings
	if err := yaml.Unmarshal(defaultSettingsYAML, &settings); err != nil {
		panic(fmt.Sprintf("embedded settings are invalid: %v", err))
	}
	return &settings
}

// loadSettings reads path, falling back to the embedded defaults when it does not exist
func loadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debugf("Settings file %s not found, using embedded defaults", path)
		return defaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}

	settings.applyDefaults(defaultSettings())
	return &settings, nil
}

// applyDefaults back-fills zero values so partial files stay valid
func (s *Settings) applyDefaults(d *Settings) {
	if s.Server.Address == "" {
		s.Server.Address = d.Server.Address
	}
	if len(s.Server.CORSOrigins) == 0 {
		s.Server.CORSOrigins = d.Server.CORSOrigins
	}
	if s.Server.MaxUploadMB <= 0 {
		s.Server.MaxUploadMB = d.Server.MaxUploadMB
	}
	if s.Fetch.Timeout <= 0 {
		s.Fetch.Timeout = d.Fetch.Timeout
	}
	if s.Fetch.ContentLimit <= 0 {
		s.Fetch.ContentLimit = d.Fetch.ContentLimit
	}
	if s.Fetch.MaxRedirects <= 0 {
		s.Fetch.MaxRedirects = d.Fetch.MaxRedirects
	}
	if s.Fetch.UserAgent == "" {
		s.Fetch.UserAgent = d.Fetch.UserAgent
	}
	if s.Recording.APIBaseURL == "" {
		s.Recording.APIBaseURL = d.Recording.APIBaseURL
	}
	if s.Recording.Timeout <= 0 {
		s.Recording.Timeout = d.Recording.Timeout
	}
	if s.Recording.ListLimit <= 0 {
		s.Recording.ListLimit = d.Recording.ListLimit
	}
	if s.Transcription.Model == "" {
		s.Transcription.Model = d.Transcription.Model
	}
	if s.Transcription.Timeout <= 0 {
		s.Transcription.Timeout = d.Transcription.Timeout
	}
	st, ds := &s.Agents.Strategist, d.Agents.Strategist
	if st.Model == "" {
		st.Model = ds.Model
	}
	if st.MaxTokens <= 0 {
		st.MaxTokens = ds.MaxTokens
	}
	if st.Timeout <= 0 {
		st.Timeout = ds.Timeout
	}
	if s.Limits.Transcript <= 0 {
		s.Limits.Transcript = d.Limits.Transcript
	}
	if s.Limits.AuditDeck <= 0 {
		s.Limits.AuditDeck = d.Limits.AuditDeck
	}
	if s.Limits.Website <= 0 {
		s.Limits.Website = d.Limits.Website
	}
	if s.Limits.Social <= 0 {
		s.Limits.Social = d.Limits.Social
	}
	if s.Log.Level == "" {
		s.Log.Level = d.Log.Level
	}
}

// ensureConfigExists writes the default settings and prompts into dir if they don't exist
func ensureConfigExists(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	files := []struct {
		name    string
		content []byte
	}{
		{defaultSettingsPath, defaultSettingsYAML},
		{"strategy-system-prompt.md", []byte(defaultStrategySystemPrompt)},
		{"strategy-user-prompt.md", []byte(defaultStrategyUserPrompt)},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, f.content, 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
