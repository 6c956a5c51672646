package chflow

import (
	"errors"
	"fmt"
)

// Fetch errors
var (
	// ErrChallengeNotFound indicates the primary lookup returned no challenge
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrUnexpectedStatus indicates the API answered with a non-success status
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrDecodeResponse indicates the response body could not be decoded
	ErrDecodeResponse = errors.New("decode response failed")
)

// Credential errors
var (
	// ErrNoCredentials indicates a token was required but not supplied
	ErrNoCredentials = errors.New("no credentials")

	// ErrInvalidToken indicates the token could not be decoded into a handle
	ErrInvalidToken = errors.New("invalid token")
)

// Wiring errors
var (
	// ErrMissingCollaborator indicates the layer was built without a required dependency
	ErrMissingCollaborator = errors.New("missing collaborator")
)

// Circuit breaker errors
var (
	// ErrCircuitOpen indicates the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Config errors
var (
	// ErrInvalidConfig indicates the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StatusError carries the HTTP status of a failed API call.
// It matches ErrUnexpectedStatus under errors.Is.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %d", ErrUnexpectedStatus, e.Code)
	}
	return fmt.Sprintf("%v: %d (%s)", ErrUnexpectedStatus, e.Code, e.Path)
}

// Is reports whether target is ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// StatusCode extracts the HTTP status from err, if it carries one.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
