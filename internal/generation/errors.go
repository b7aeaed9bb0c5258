package generation

import (
	"errors"
	"fmt"
)

// ErrNoProviderConfigured is returned when candidate-list construction
// yields no usable provider. This is an operator configuration error, not a
// per-request provider failure, and is surfaced distinctly from call
// failures.
var ErrNoProviderConfigured = errors.New("no image provider configured")

// ProviderError is the uniform failure shape adapters map provider-specific
// error payloads into. It always names the failing provider so failover
// bookkeeping can record it.
type ProviderError struct {
	Provider string // provider name, e.g. "openai"
	Message  string // sanitized description of the failure
	Err      error  // underlying error, if any
}

// Error implements the error interface for ProviderError.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError for the named provider.
func NewProviderError(provider, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

// ProvidersExhaustedError is returned when every candidate provider was
// attempted and all failed. It carries the last underlying failure so the
// caller can render a complete error without another lookup.
type ProvidersExhaustedError struct {
	Attempted int   // number of providers tried
	LastErr   error // failure from the final attempt
}

// Error implements the error interface for ProvidersExhaustedError.
func (e *ProvidersExhaustedError) Error() string {
	return fmt.Sprintf("all %d providers failed, last error: %v", e.Attempted, e.LastErr)
}

// Unwrap returns the last provider failure to support errors.Is/errors.As.
func (e *ProvidersExhaustedError) Unwrap() error {
	return e.LastErr
}
