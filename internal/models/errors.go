package models

import (
	"errors"
	"sort"
	"strings"
)

// Error taxonomy shared by the registry, the catalog and the HTTP layer.
var (
	// ErrNotFound indicates a game, instance or key does not exist.
	// HTTP equivalent: 404 Not Found
	ErrNotFound = errors.New("resource not found")

	// ErrServerNotFound indicates a heartbeat or unregister for a server id with no record.
	// Servers must register before heartbeats succeed.
	// HTTP equivalent: 404 Not Found
	ErrServerNotFound = errors.New("server not found")

	// ErrTenantUnknown indicates the game id does not resolve to any game.
	// HTTP equivalent: 404 Not Found
	ErrTenantUnknown = errors.New("unknown game")

	// ErrTenantInactive indicates the game exists but is disabled.
	// HTTP equivalent: 403 Forbidden
	ErrTenantInactive = errors.New("game is not active")

	// ErrInvalidInput indicates malformed filters, limits or schema definitions.
	// HTTP equivalent: 422 Unprocessable Entity
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable indicates the backing store could not serve the call in time.
	// This is the only retryable condition.
	// HTTP equivalent: 503 Service Unavailable
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnauthorized indicates missing or invalid credentials.
	// HTTP equivalent: 401 Unauthorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict indicates the resource already exists.
	// HTTP equivalent: 409 Conflict
	ErrConflict = errors.New("resource already exists")

	// ErrSetupRequired indicates the initial setup has not been completed.
	// HTTP equivalent: 503 Service Unavailable
	ErrSetupRequired = errors.New("setup is not complete")
)

// ValidationErrors maps field names to human readable messages.
// It always matches ErrInvalidInput with errors.Is.
type ValidationErrors map[string]string

// Error implements the error interface with a stable field order.
func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(ErrInvalidInput.Error())
	for i, f := range fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(v[f])
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (v ValidationErrors) Unwrap() error {
	return ErrInvalidInput
}

// Add records a message for a field, keeping the first one.
func (v ValidationErrors) Add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

// Err returns nil when no field failed.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// FieldError returns a single field validation error.
func FieldError(field, msg string) error {
	return ValidationErrors{field: msg}
}
