package service

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingURL is returned for a pass-through request without a url parameter.
	ErrMissingURL = errors.New("missing url parameter")
	// ErrUnauthorizedDomain is returned when the target host is not the allowed host.
	ErrUnauthorizedDomain = errors.New("unauthorized domain")
)

// ConfigError reports server-side sign-in configuration that is absent.
// It is never retryable.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

// UpstreamError is a non-2xx reply from the upstream.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
}
