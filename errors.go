package chatbox

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a session, message, thread or storage key does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrGenerating indicates the session already has a generation in
	// progress.
	ErrGenerating = errors.New("generation in progress")

	// ErrMessageFinalized indicates a mutation targeted a message that is
	// no longer generating.
	ErrMessageFinalized = errors.New("message finalized")

	// ErrStreamNotReady indicates Message() was called before Next().
	ErrStreamNotReady = errors.New("stream not ready: call Next() first")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrUnsupported indicates the provider does not implement an operation.
	ErrUnsupported = errors.New("unsupported operation")
)

// ConfigurationError reports missing or invalid provider configuration. It
// is raised before any network call is attempted.
type ConfigurationError struct {
	Provider ProviderID
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: configuration: %s: %s", e.Provider, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: configuration: %s is not configured", e.Provider, e.Field)
}

// ProviderError reports a non-2xx or malformed response from a vendor. Body
// preserves the raw response text for diagnostics.
type ProviderError struct {
	Provider   ProviderID
	StatusCode int // 0 when the response was 2xx but malformed
	Message    string
	Body       string
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	default:
		return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Body)
	}
}

// NetworkError reports a transport-level failure.
type NetworkError struct {
	Provider ProviderID
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrorKind classifies a failure for display on a message.
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindProvider      ErrorKind = "provider"
	ErrorKindNetwork       ErrorKind = "network"
	ErrorKindUnknown       ErrorKind = "unknown"
)

// ErrorKindOf classifies err. Cancellation is not a failure and reports an
// empty kind.
func ErrorKindOf(err error) ErrorKind {
	var (
		cfgErr  *ConfigurationError
		provErr *ProviderError
		netErr  *NetworkError
	)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return ""
	case errors.As(err, &cfgErr):
		return ErrorKindConfiguration
	case errors.As(err, &provErr):
		return ErrorKindProvider
	case errors.As(err, &netErr):
		return ErrorKindNetwork
	default:
		return ErrorKindUnknown
	}
}

// IsCancellation reports whether err is a deliberate early termination.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
