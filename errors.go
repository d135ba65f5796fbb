package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	llmerrors "github.com/aktagon/llmkit/errors"
)

// ErrConfigurationMissing is returned when a required credential can not be resolved
var ErrConfigurationMissing = errors.New("API key is not configured")

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// SourceError reports that one submission field could not be read
type SourceError struct {
	Field string
	Err   error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// ValidationError reports a missing or malformed required input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	KindNoTextResponse        = "no_text_response"
	KindInvalidStrategyFormat = "invalid_strategy_format"
)

// ModelResponseError reports a completion that could not be turned into a Strategy
type ModelResponseError struct {
	Kind    string
	Excerpt string
	Err     error
}

func (e *ModelResponseError) Error() string {
	switch e.Kind {
	case KindNoTextResponse:
		return "no text response from completion model"
	case KindInvalidStrategyFormat:
		if e.Err != nil {
			return fmt.Sprintf("invalid strategy format: %v", e.Err)
		}
		return "invalid strategy format"
	}
	return "malformed model response"
}

func (e *ModelResponseError) Unwrap() error {
	return e.Err
}

// UpstreamError wraps a failed completion call
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// newUpstreamError lifts the status code out of llmkit's API error when present
func newUpstreamError(err error) *UpstreamError {
	ue := &UpstreamError{Err: err}
	var apiErr *llmerrors.APIError
	if errors.As(err, &apiErr) {
		ue.StatusCode = apiErr.StatusCode
	}
	return ue
}

var authMarkers = []string{"api key", "api_key", "authentication", "unauthorized", "401"}

// IsAuthError reports whether err belongs to the authentication class.
// Status codes are checked first; message sniffing is the fallback for
// errors that carry no status.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfigurationMissing) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.StatusCode != 0 {
		return ue.StatusCode == http.StatusUnauthorized || ue.StatusCode == http.StatusForbidden
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
