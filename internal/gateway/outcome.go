// Package gateway is the single call path to the detection and language-model services.
// Every call ends in exactly one Outcome kind and is never retried.
package gateway

import (
	"fmt"
	"time"
)

// Kind is the terminal state of one upstream call.
type Kind int

const (
	KindSuccess Kind = iota
	KindTimeout
	KindConnectionRefused
	KindHTTPStatus
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection_refused"
	case KindHTTPStatus:
		return "http_status"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of Client.Do. Payload is set only for KindSuccess and
// StatusCode only for KindHTTPStatus.
type Outcome struct {
	Service    string
	Kind       Kind
	StatusCode int
	Payload    []byte
	Cause      error
	Elapsed    time.Duration
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Err maps the outcome to the error taxonomy; nil on success.
func (o Outcome) Err() error {
	switch o.Kind {
	case KindSuccess:
		return nil
	case KindTimeout:
		return o.unavailable("timeout")
	case KindConnectionRefused:
		return o.unavailable("connection refused")
	case KindHTTPStatus:
		return &RejectedError{Service: o.Service, StatusCode: o.StatusCode}
	default:
		return o.unavailable(o.Kind.String())
	}
}

func (o Outcome) unavailable(reason string) error {
	err := fmt.Errorf("%w: %s", ErrUpstreamUnavailable, reason)
	if o.Cause != nil {
		err = fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, reason, o.Cause)
	}
	return &ServiceError{Service: o.Service, Err: err}
}

func success(service string, payload []byte) Outcome {
	if payload == nil {
		payload = []byte{}
	}
	return Outcome{Service: service, Kind: KindSuccess, Payload: payload}
}

func httpStatus(service string, code int) Outcome {
	return Outcome{Service: service, Kind: KindHTTPStatus, StatusCode: code}
}
