package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeValidation      = "validation_error"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthenticated = "unauthenticated"
	ErrCodeDeliveryFailed  = "delivery_failed"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternal        = "internal"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrDeliveryFailed marks a push that could not reach a live connection.
	// It is logged, never returned to the sender.
	ErrDeliveryFailed = errors.New("delivery failed")

	ErrSessionClosed = errors.New("session closed")
	ErrSlowConsumer  = errors.New("session event buffer full")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel so callers can use errors.Is.
func (e *CoreError) Unwrap() error {
	return e.err
}

func coreError(code, msg string, sentinel error) *CoreError {
	return &CoreError{Code: code, Message: msg, err: sentinel}
}

// ValidationError reports a malformed request, such as an empty message body.
func ValidationError(msg string) *CoreError {
	return coreError(ErrCodeValidation, msg, ErrValidation)
}

// NotFoundError reports an unknown message or user id.
func NotFoundError(msg string) *CoreError {
	return coreError(ErrCodeNotFound, msg, ErrNotFound)
}

// UnauthenticatedError reports a missing or invalid identity.
func UnauthenticatedError(msg string) *CoreError {
	return coreError(ErrCodeUnauthenticated, msg, ErrUnauthenticated)
}

// CodeOf maps an error to its wire code.
func CodeOf(err error) string {
	var ce *CoreError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return ce.Code
	case errors.Is(err, ErrValidation):
		return ErrCodeValidation
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrUnauthenticated):
		return ErrCodeUnauthenticated
	case errors.Is(err, ErrDeliveryFailed):
		return ErrCodeDeliveryFailed
	default:
		return ErrCodeInternal
	}
}
