package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMalformedProduct marks caller bugs (bad product data); never retried.
	ErrMalformedProduct = errors.New("malformed product")
	// ErrNoSources is the only discovery condition surfaced as a hard error.
	ErrNoSources = errors.New("no product source configured")
	// ErrProductNotFound is returned by repositories for unknown identifiers.
	ErrProductNotFound = errors.New("product not found")
)

// DiscoveryError summarizes a discovery pass in which every source failed.
type DiscoveryError struct {
	Failures []SourceFailure
}

func (e *DiscoveryError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Source+": "+f.Reason)
	}
	return fmt.Sprintf("all %d product sources failed (%s)", len(e.Failures), strings.Join(parts, "; "))
}

// ProviderError is returned by remote text and render providers.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// NewProviderStatusError classifies an HTTP status from a provider.
func NewProviderStatusError(provider string, status int, body string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    strings.TrimSpace(body),
		Retryable:  status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
	}
}

// IsRetryable reports whether err is a provider error worth another attempt.
// Errors without provider classification (transport failures) are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return !errors.Is(err, ErrMalformedProduct)
}

// ErrorKind classifies publish failures by their retry implications.
type ErrorKind string

const (
	ErrorAuth      ErrorKind = "auth"
	ErrorRateLimit ErrorKind = "rate_limit"
	ErrorPolicy    ErrorKind = "policy"
	ErrorNetwork   ErrorKind = "network"
	ErrorInvalid   ErrorKind = "invalid"
	ErrorUnknown   ErrorKind = "unknown"
)

// PublishError is the typed failure of a single platform upload.
type PublishError struct {
	Kind       ErrorKind     `json:"kind"`
	Platform   string        `json:"platform"`
	Message    string        `json:"message"`
	StatusCode int           `json:"status_code,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s publish failed (%s): %s", e.Platform, e.Kind, e.Message)
}

// Retryable is true for failures that may succeed later without human action.
func (e *PublishError) Retryable() bool {
	return e.Kind == ErrorRateLimit || e.Kind == ErrorNetwork
}

// KindForStatus maps a generic HTTP status to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuth
	case status == http.StatusTooManyRequests:
		return ErrorRateLimit
	case status >= http.StatusInternalServerError:
		return ErrorNetwork
	case status == http.StatusUnprocessableEntity:
		return ErrorPolicy
	case status >= http.StatusBadRequest:
		return ErrorInvalid
	default:
		return ErrorUnknown
	}
}
