package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

var (
	anthropicKeyNames = []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY", "ANTHROPIC_KEY"}
	openAIKeyNames    = []string{"OPENAI_API_KEY", "OPENAI_KEY"}
	fathomKeyNames    = []string{"FATHOM_API_KEY", "FATHOM_KEY"}
)

// CredentialStore resolves API keys from explicit values, the environment and
// credential files, in that order. Nothing is cached, so a key added to a
// file is picked up on the next lookup.
type CredentialStore struct {
	explicit map[string]string
	getenv   func(string) string
	files    []string
}

// NewCredentialStore creates a store over files; nil means DefaultCredentialFiles
func NewCredentialStore(files []string) *CredentialStore {
	if files == nil {
		files = DefaultCredentialFiles()
	}
	return &CredentialStore{
		explicit: make(map[string]string),
		getenv:   os.Getenv,
		files:    files,
	}
}

// DefaultCredentialFiles returns the candidate credential files in lookup order
func DefaultCredentialFiles() []string {
	files := []string{".env.local", ".env"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files,
			filepath.Join(home, ".config", "strategy-writer", "credentials"),
			filepath.Join(home, ".anthropic", "credentials"),
		)
	}
	return files
}

// Set pins a value for name ahead of every other source
func (s *CredentialStore) Set(name, value string) {
	if value != "" {
		s.explicit[name] = value
	}
}

// Lookup returns the first non-empty value for names and where it came from.
// The environment is consulted for every name before any file is read; the
// first file holding any of the names wins.
func (s *CredentialStore) Lookup(names ...string) (value, source string) {
	for _, name := range names {
		if v := strings.TrimSpace(s.explicit[name]); v != "" {
			return v, "flag"
		}
	}
	for _, name := range names {
		if v := strings.TrimSpace(s.getenv(name)); v != "" {
			return v, "env:" + name
		}
	}
	for _, file := range s.files {
		values, err := godotenv.Read(file)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Debugf("Skipping credential file %s: %v", file, err)
			}
			continue
		}
		for _, name := range names {
			if v := strings.TrimSpace(values[name]); v != "" {
				return v, file
			}
		}
	}
	return "", ""
}

// AnthropicKey returns the completion model key or ErrConfigurationMissing
func (s *CredentialStore) AnthropicKey() (string, error) {
	return s.require(anthropicKeyNames)
}

// OpenAIKey returns the speech-to-text key or ErrConfigurationMissing
func (s *CredentialStore) OpenAIKey() (string, error) {
	return s.require(openAIKeyNames)
}

// FathomKey returns the recording service key, empty when not configured
func (s *CredentialStore) FathomKey() string {
	v, _ := s.Lookup(fathomKeyNames...)
	return v
}

func (s *CredentialStore) require(names []string) (string, error) {
	v, source := s.Lookup(names...)
	if v == "" {
		return "", fmt.Errorf("%w: set one of %s", ErrConfigurationMissing, strings.Join(names, ", "))
	}
	logger.Debugf("Using %s from %s", names[0], source)
	return v, nil
}
