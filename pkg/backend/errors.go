package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a backend call exceeds its hard deadline.
	// The underlying resource (subprocess, HTTP stream) is terminated first.
	ErrTimeout = errors.New("backend call timed out")

	// ErrProtocol is returned when a backend produces unparseable or
	// contractually invalid data that no compatibility fallback recovered.
	ErrProtocol = errors.New("backend protocol violation")

	// ErrUnknownBackend is returned when a turn names a backend id that no
	// registered runner handles.
	ErrUnknownBackend = errors.New("unknown backend")
)

// ConfigError indicates missing credentials, executables, or endpoints.
// Fatal for the turn; never retried.
type ConfigError struct {
	Backend string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s backend not configured: %s", e.Backend, e.Reason)
}

// Failure wraps an error explicitly reported by a backend for the turn,
// preserving the backend's own message verbatim.
type Failure struct {
	Backend string
	Message string
}

func (e *Failure) Error() string {
	return fmt.Sprintf("%s backend reported failure: %s", e.Backend, e.Message)
}

// ProtocolError annotates ErrProtocol with what the backend actually sent.
func ProtocolError(backend, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrProtocol, backend, detail)
}
