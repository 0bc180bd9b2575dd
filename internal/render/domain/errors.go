package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImages is returned when a request carries no image references
	ErrNoImages = errors.New(DetailNoImages)

	// ErrImageLimitReached is returned when a selection would exceed the duration-derived cap
	ErrImageLimitReached = errors.New("image limit reached")

	// ErrInvalidDuration is returned for durations outside [10,60] or off the 5 second step
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrSubmissionRejected is returned when the render backend explicitly declines a job
	ErrSubmissionRejected = errors.New("submission rejected")

	// ErrTransport is returned on network failures and unexpected HTTP statuses
	ErrTransport = errors.New(DetailBackendUnreachable)

	// ErrMalformedResponse is returned when the backend answers without the required fields
	ErrMalformedResponse = errors.New(DetailMalformedResponse)

	// ErrSessionExpired is returned when the backend answers 401 and the shop must re-authenticate
	ErrSessionExpired = errors.New(DetailSessionExpired)

	// ErrAlreadyStarted is returned by Submit while a job is in flight
	ErrAlreadyStarted = errors.New("render job already started")

	// ErrControllerClosed is returned by Submit after teardown
	ErrControllerClosed = errors.New("controller closed")
)

// ValidationError describes a request rejected before any network call
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// RejectedError carries the backend's reason for declining a submission
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return ErrSubmissionRejected.Error()
	}
	return "submission rejected: " + e.Message
}

func (e *RejectedError) Unwrap() error {
	return ErrSubmissionRejected
}

// NewRejectedError creates a new rejection error
func NewRejectedError(message string) error {
	return &RejectedError{Message: message}
}

// ErrorDetail maps a controller-level error onto the text shown to the user
func ErrorDetail(err error) string {
	var rejected *RejectedError
	var validation *ValidationError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejected):
		if rejected.Message != "" {
			return rejected.Message
		}
		return DetailStartFailed
	case errors.Is(err, ErrSubmissionRejected):
		return DetailStartFailed
	case errors.As(err, &validation):
		return validation.Message
	case errors.Is(err, ErrNoImages):
		return DetailNoImages
	case errors.Is(err, ErrSessionExpired):
		return DetailSessionExpired
	case errors.Is(err, ErrMalformedResponse):
		return DetailMalformedResponse
	default:
		return DetailBackendUnreachable
	}
}
