package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthServiceTimeout is returned when the auth service did not answer in time.
	ErrAuthServiceTimeout = errors.New("authentication request timed out")
	// ErrAuthServiceError hides any other failure talking to the auth service.
	ErrAuthServiceError = errors.New("authentication service error")
	// ErrInvalidResponseFormat is returned when a peer reply is not a Decision.
	ErrInvalidResponseFormat = errors.New("invalid authentication response format")
	// ErrUnauthorized is returned when the auth service rejected the credentials.
	ErrUnauthorized = errors.New("authentication failed")
	// ErrUserNotFound is returned when credentials are valid but no local account matches.
	ErrUserNotFound = errors.New("user not found")
)

// StatusError carries the status the auth service answered with. It matches ErrUnauthorized.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUnauthorized.Error(), e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized
}
