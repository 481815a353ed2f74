package healthapi

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx backend response. Message carries the server body
// verbatim when one was present, otherwise a composed "status statusText".
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("healthapi: status %d: %s", e.Status, e.Message)
}

// AuthError is a login attempt the server rejected, or a requested role the
// authenticated identity does not hold.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "healthapi: " + e.Message
}

// ValidationError blocks a request client-side, before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("healthapi: invalid %s: %s", e.Field, e.Message)
}

// ServerMessage extracts the server-provided message from err so views can
// surface it verbatim. Returns "" when err carries no server message.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return ""
}
