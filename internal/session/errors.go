package session

import (
	"errors"
	"fmt"
)

var (
	// ErrLookupFailed is returned when an account lookup could not complete.
	// It is transient; callers may retry. A lookup error is never collapsed
	// into an "unregistered" answer.
	ErrLookupFailed = errors.New("account lookup failed")
	// ErrInvalidCredentials is returned when a login attempt is rejected.
	// It is terminal for that attempt and leaves the session untouched.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshFailed is returned when a token refresh could not complete or
	// the server rejected the refresh token. It is session-fatal: observing it
	// forces a sign-out.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrUnauthorized is surfaced to dispatcher callers after the session has
	// been torn down.
	ErrUnauthorized = errors.New("unauthorized")
)

// RegistrationError carries field-level validation detail from a rejected
// registration. It is terminal for the attempt and leaves the session untouched.
type RegistrationError struct {
	Message string
	Fields  map[string]string
}

func (e *RegistrationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "registration rejected"
}

// ProviderConflictError is returned when OAuth claims collide with an email
// already bound to a different provider. No session is installed; the UI
// redirects the user to the provider named here.
type ProviderConflictError struct {
	Provider string
}

func (e *ProviderConflictError) Error() string {
	return fmt.Sprintf("email is already registered with provider %q", e.Provider)
}
