package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated means the session token is missing, expired or
	// forged. Connections failing authentication never reach the router.
	ErrUnauthenticated = fmt.Errorf("unauthenticated")

	// ErrNotFound covers unresolvable usernames and unknown groups.
	// Reported to the peer as a notice, not a protocol error.
	ErrNotFound = fmt.Errorf("not found")

	// ErrAlreadyMember marks an idempotent join on existing membership.
	ErrAlreadyMember = fmt.Errorf("already a member")

	// ErrMalformedRequest marks a frame with missing or invalid fields.
	// The frame is dropped; the connection stays active.
	ErrMalformedRequest = fmt.Errorf("malformed request")

	// ErrStorageFailure wraps persistence errors. A message that is
	// "sent" but not durably recorded is a correctness bug, so this is
	// surfaced to the caller instead of being swallowed.
	ErrStorageFailure = fmt.Errorf("storage failure")

	ErrUserAlreadyExists  = fmt.Errorf("username already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidUsername    = fmt.Errorf("username invalid")
	ErrInvalidPassword    = fmt.Errorf("password invalid")
	ErrInvalidGroupName   = fmt.Errorf("group name invalid")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// MapToStatus translates domain errors into HTTP status codes at the
// web boundary. Unknown errors map to 500 without leaking details.
func MapToStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrInvalidPassword),
		errors.Is(err, ErrInvalidGroupName),
		errors.Is(err, ErrMalformedRequest),
		errors.Is(err, ErrUserAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
