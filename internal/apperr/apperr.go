// Package apperr defines the error taxonomy shared across the service. It has no
// dependencies so that leaf packages such as models can return taxonomy errors.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable covers timeouts and connection failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamRejected covers non-2xx responses.
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrMalformedPayload is returned when a 2xx response cannot be decoded.
	ErrMalformedPayload = errors.New("malformed upstream payload")
	// ErrInvalidInput is returned before any upstream call is made.
	ErrInvalidInput = errors.New("invalid input")
)

// InvalidInput builds an ErrInvalidInput with a caller-facing message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsUpstreamFailure reports whether err is one of the upstream taxonomy errors.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrUpstreamRejected) ||
		errors.Is(err, ErrMalformedPayload)
}
