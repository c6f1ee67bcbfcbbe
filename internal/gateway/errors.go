package gateway

import (
	"errors"
	"fmt"

	"github.com/hyperjump/geoint/internal/apperr"
)

// Error taxonomy shared by every component that talks to an upstream service. The
// values are the apperr sentinels, so errors.Is matches either name.
var (
	ErrUpstreamUnavailable = apperr.ErrUpstreamUnavailable
	// ErrUpstreamRejected covers non-2xx responses; see RejectedError for the code.
	ErrUpstreamRejected = apperr.ErrUpstreamRejected
	ErrMalformedPayload = apperr.ErrMalformedPayload
	ErrInvalidInput     = apperr.ErrInvalidInput
)

// RejectedError carries the status code of a non-2xx upstream response.
type RejectedError struct {
	Service    string
	StatusCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: upstream rejected request with status %d", e.Service, e.StatusCode)
}

// Unwrap makes errors.Is(err, ErrUpstreamRejected) hold.
func (e *RejectedError) Unwrap() error { return ErrUpstreamRejected }

// ServiceError attributes a taxonomy error to the upstream service that caused it.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string { return e.Service + ": " + e.Err.Error() }

func (e *ServiceError) Unwrap() error { return e.Err }

// Malformed wraps a decode failure of a successful upstream payload.
func Malformed(service string, err error) error {
	if err == nil {
		return &ServiceError{Service: service, Err: ErrMalformedPayload}
	}
	return &ServiceError{Service: service, Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
}

// ServiceOf returns the upstream service named by err, or "" when err is not attributed.
func ServiceOf(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Service
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		return svc.Service
	}
	return ""
}

// InvalidInput builds an ErrInvalidInput with a caller-facing message.
func InvalidInput(format string, args ...any) error {
	return apperr.InvalidInput(format, args...)
}

// IsUpstreamFailure reports whether err is one of the upstream taxonomy errors.
func IsUpstreamFailure(err error) bool {
	return apperr.IsUpstreamFailure(err)
}
