package serverr

import (
	"errors"
	"fmt"
	"time"

	"github.com/toolsforexperiments/instrumentserver/pkg/retry"
)

// Kind classifies an error for wire encoding and for retry decisions.
type Kind int

const (
	// ProtocolError marks a malformed request, unknown operation, or missing
	// required field. The registry and instrument code are never touched.
	ProtocolError Kind = iota
	// NotFound marks an unknown instrument, parameter, or method.
	NotFound
	// Validation marks a value outside a parameter's declared bounds/enum/
	// predicate, or a wrong-arity method call.
	Validation
	// Unsupported marks an attempt to set a non-settable parameter or get a
	// non-readable one.
	Unsupported
	// InstrumentFailure marks an exception raised inside instrument code;
	// the message carries the driver-supplied text verbatim.
	InstrumentFailure
	// Internal marks a dispatcher bug. Should not occur in practice.
	Internal

	// Timeout marks a client-side request that received no reply within its
	// deadline. Never serialized onto the wire.
	Timeout
	// Disconnected marks a client-side socket failure across the configured
	// reconnect envelope. Never serialized onto the wire.
	Disconnected
)

// String returns the wire-visible name of the kind.
func (k Kind) String() string {
	switch k {
	case ProtocolError:
		return "ProtocolError"
	case NotFound:
		return "NotFound"
	case Validation:
		return "Validation"
	case Unsupported:
		return "Unsupported"
	case InstrumentFailure:
		return "InstrumentFailure"
	case Internal:
		return "Internal"
	case Timeout:
		return "Timeout"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// ParseKind maps a wire-visible kind name back to a Kind. Unknown names map
// to Internal so a client never panics decoding an error from a newer server.
func ParseKind(s string) Kind {
	switch s {
	case "ProtocolError":
		return ProtocolError
	case "NotFound":
		return NotFound
	case "Validation":
		return Validation
	case "Unsupported":
		return Unsupported
	case "InstrumentFailure":
		return InstrumentFailure
	case "Timeout":
		return Timeout
	case "Disconnected":
		return Disconnected
	default:
		return Internal
	}
}

// Error is the structured error type carried by wire.Response and raised by
// the client runtime. Component/Operation are local debugging context and
// are never serialized; only Kind and Message cross the wire.
type Error struct {
	Kind      Kind
	Message   string
	Component string
	Operation string
	Err       error // underlying cause, if any; never serialized
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(kind Kind, component, operation, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Component: component, Operation: operation, Err: cause}
}

// Protocolf builds a ProtocolError with a formatted message.
func Protocolf(component, operation, format string, args ...any) *Error {
	return newErr(ProtocolError, component, operation, fmt.Sprintf(format, args...), nil)
}

// NotFoundf builds a NotFound error with a formatted message.
func NotFoundf(component, operation, format string, args ...any) *Error {
	return newErr(NotFound, component, operation, fmt.Sprintf(format, args...), nil)
}

// Validationf builds a Validation error with a formatted message.
func Validationf(component, operation, format string, args ...any) *Error {
	return newErr(Validation, component, operation, fmt.Sprintf(format, args...), nil)
}

// Unsupportedf builds an Unsupported error with a formatted message.
func Unsupportedf(component, operation, format string, args ...any) *Error {
	return newErr(Unsupported, component, operation, fmt.Sprintf(format, args...), nil)
}

// WrapInstrumentFailure wraps a driver-raised error, preserving its message
// verbatim per the propagation policy: handlers never let raw driver panics
// or errors escape onto the wire untranslated.
func WrapInstrumentFailure(err error, component, operation string) *Error {
	if err == nil {
		return nil
	}
	return newErr(InstrumentFailure, component, operation, err.Error(), err)
}

// WrapInternal wraps a dispatcher bug. Callers should also log the error with
// a stack trace; this type only carries the wire-visible shape.
func WrapInternal(err error, component, operation string) *Error {
	if err == nil {
		return nil
	}
	return newErr(Internal, component, operation, err.Error(), err)
}

// NewTimeout builds a client-side Timeout error. Never reaches the wire.
func NewTimeout(component, operation string, after time.Duration) *Error {
	return newErr(Timeout, component, operation, fmt.Sprintf("no reply within %s", after), nil)
}

// NewDisconnected builds a client-side Disconnected error. Never reaches the wire.
func NewDisconnected(component, operation string, cause error) *Error {
	msg := "connection failed across the configured retry envelope"
	if cause != nil {
		msg = cause.Error()
	}
	return newErr(Disconnected, component, operation, msg, cause)
}

// KindOf returns the Kind of err, or Internal if err is not a *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Internal
}

// IsRetryable reports whether a client encountering this error should retry
// the connection/request rather than surface it immediately. Only the two
// client-local kinds are retryable; every server-classified kind represents
// a request that was answered and must not be blindly retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case Timeout, Disconnected:
		return true
	default:
		return false
	}
}

// RetryConfig mirrors the shape client reconnect policy is configured with:
// a base delay, a ceiling, and a bounded number of attempts.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig matches spec.md's reconnect policy: base 1s backoff,
// doubling, up to the caller-provided max_retries attempts.
func DefaultRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  maxRetries,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// ToRetryConfig converts to the pkg/retry Config used by the client's
// reconnect loop.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxAttempts,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.Multiplier,
		AddJitter:    true,
	}
}
