package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session is absent from the registry.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned when a session exists but exceeded its idle
	// TTL. It wraps ErrNotFound so callers can treat both as "start a new
	// session".
	ErrExpired = fmt.Errorf("%w: expired", ErrNotFound)

	// ErrOwnership is returned when a request's (user, team) identity does
	// not match the session's original owner. Never auto-recovered.
	ErrOwnership = errors.New("session owned by a different identity")
)
