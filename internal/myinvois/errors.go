package myinvois

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind is a closed discriminator over every failure class the pipeline
// can produce. Callers switch on it instead of matching concrete error types.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindToken
	KindSigning
	KindNetwork
	KindTimeout
	KindAPI
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindToken:
		return "TOKEN_ERROR"
	case KindSigning:
		return "SIGNING_ERROR"
	case KindNetwork:
		return "NETWORK_ERROR"
	case KindTimeout:
		return "TIMEOUT"
	case KindAPI:
		return "API_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error is the single error type returned by this package.
type Error struct {
	Kind       ErrorKind
	Code       string   // authority error code, when one was returned
	Message    string   // human-readable description
	StatusCode int      // HTTP status, when the failure came from a response
	Details    []string // per-field validation or rejection details
	Err        error    // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("myinvois: %s (%s): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("myinvois: %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transport-class and worth retrying
// with backoff. Validation and business rejections never are.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindTimeout
}

func newValidationError(details []string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "VALIDATION_ERROR",
		Message: "document failed structural validation: " + strings.Join(details, "; "),
		Details: details,
	}
}

func newSigningError(msg string, err error) *Error {
	return &Error{Kind: KindSigning, Message: msg, Err: err}
}

func newTokenError(statusCode int, details string) *Error {
	return &Error{
		Kind:       KindToken,
		Message:    "token request failed: " + details,
		StatusCode: statusCode,
	}
}

// classifyTransport maps a transport-level failure to KindTimeout or
// KindNetwork. Context cancellation by the caller stays a timeout so the
// retry loop can observe the dead context and bail out.
func classifyTransport(op string, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Message: op + " timed out", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: op + " failed", Err: err}
}

// AsError normalizes any error into *Error so callers always have a Kind to
// switch on.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUnknown, Message: err.Error(), Err: err}
}
