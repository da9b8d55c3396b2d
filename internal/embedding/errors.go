package embedding

import (
	"errors"
	"fmt"
)

// ProviderError reports a failed call to the embedding provider.
// Transient errors (rate limits, 5xx, network failures) are retried by the
// Service up to its retry budget; permanent errors surface immediately.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s embedding provider returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s embedding provider: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s embedding provider: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError checks if err is a ProviderError.
func IsProviderError(err error) bool {
	var target *ProviderError
	return errors.As(err, &target)
}

// IsTransient reports whether err is a retriable provider failure.
func IsTransient(err error) bool {
	var target *ProviderError
	if errors.As(err, &target) {
		return target.Transient
	}
	return false
}

// statusTransient classifies an HTTP status as retriable.
func statusTransient(code int) bool {
	return code == 429 || code >= 500
}
