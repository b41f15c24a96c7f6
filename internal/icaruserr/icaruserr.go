// Package icaruserr defines the bridge's single tagged error hierarchy:
// four kinds (Validation, Protocol, Transport, Internal), each carrying a
// machine tag, a human message and a severity (User, Retryable, Fatal).
package icaruserr

import (
	"errors"
	"fmt"
)

// Kind is the top-level error category.
type Kind string

const (
	KindValidation Kind = "Validation"
	KindProtocol   Kind = "Protocol"
	KindTransport  Kind = "Transport"
	KindInternal   Kind = "Internal"
)

// Severity governs how the bridge reacts to an error once surfaced.
type Severity string

const (
	SeverityUser      Severity = "User"
	SeverityRetryable Severity = "Retryable"
	SeverityFatal     Severity = "Fatal"
)

// Tag is the machine-readable identifier surfaced in JSON-RPC error data.
type Tag string

const (
	TagValidationSchema      Tag = "Validation.Schema"
	TagValidationRange       Tag = "Validation.Range"
	TagProtocolUnknownMethod Tag = "Protocol.UnknownMethod"
	TagProtocolBadRequest    Tag = "Protocol.BadRequest"
	TagTransportTimeout      Tag = "Transport.Timeout"
	TagTransportOverloaded   Tag = "Transport.Overloaded"
	TagTransportUnreachable  Tag = "Transport.Unreachable"
	TagTransportCancelled    Tag = "Transport.Cancelled"
	TagCanisterUserError     Tag = "Canister.UserError"
	TagCanisterNotFound      Tag = "Canister.NotFound"
	TagInternalDecode        Tag = "Internal.Decode"
	TagInternalInvariant     Tag = "Internal.Invariant"
)

// Error is the bridge's domain error type: Kind/Tag/Op/Severity/Context
// plus an optional wrapped cause.
type Error struct {
	Kind     Kind
	Tag      Tag
	Severity Severity
	Op       string
	Message  string
	Context  map[string]any
	Cause    error

	// RetryAfterMs is populated for Retryable transport errors so the
	// server frame can surface it in the JSON-RPC error data block.
	RetryAfterMs int64
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Tag, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is comparison by Tag, matching the pack's sentinel
// convention: two *Error values are "the same" error if their Tags match.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Tag == other.Tag
}

// WithContext returns a shallow copy of e with key=val merged into Context.
func (e *Error) WithContext(key string, val any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = val
	return &cp
}

// WithRetryAfter returns a shallow copy of e carrying a retry_after_ms
// hint, surfaced in the JSON-RPC error data block.
func (e *Error) WithRetryAfter(ms int64) *Error {
	cp := *e
	cp.RetryAfterMs = ms
	return &cp
}

// New constructs an Error with the given tag, severity and message.
func New(kind Kind, tag Tag, severity Severity, message string) *Error {
	return &Error{Kind: kind, Tag: tag, Severity: severity, Message: message}
}

// Wrap constructs an Error that wraps cause, preserving it for errors.Unwrap.
func Wrap(kind Kind, tag Tag, severity Severity, message string, cause error) *Error {
	return &Error{Kind: kind, Tag: tag, Severity: severity, Message: message, Cause: cause}
}

// Sentinel errors, usable with errors.Is against a wrapping
// *Error whose Tag matches (via Error.Is above) or directly when a caller
// has no other context to attach.
var (
	ErrValidationSchema      = New(KindValidation, TagValidationSchema, SeverityUser, "argument violates declared schema")
	ErrValidationRange       = New(KindValidation, TagValidationRange, SeverityUser, "numeric or string constraint violated")
	ErrProtocolUnknownMethod = New(KindProtocol, TagProtocolUnknownMethod, SeverityUser, "MCP method not recognized")
	ErrProtocolBadRequest    = New(KindProtocol, TagProtocolBadRequest, SeverityUser, "malformed JSON-RPC envelope")
	ErrTransportTimeout      = New(KindTransport, TagTransportTimeout, SeverityRetryable, "canister call exceeded budget")
	ErrTransportOverloaded   = New(KindTransport, TagTransportOverloaded, SeverityRetryable, "in-flight semaphore saturated")
	ErrTransportUnreachable  = New(KindTransport, TagTransportUnreachable, SeverityRetryable, "transport-level failure")
	ErrTransportCancelled    = New(KindTransport, TagTransportCancelled, SeverityUser, "call canceled by the client")
	ErrCanisterUserError     = New(KindInternal, TagCanisterUserError, SeverityUser, "tool returned a failure variant")
	ErrCanisterNotFound      = New(KindTransport, TagCanisterNotFound, SeverityRetryable, "method name unknown to canister")
	ErrInternalDecode        = New(KindInternal, TagInternalDecode, SeverityFatal, "wire-level decode failure")
	ErrInternalInvariant     = New(KindInternal, TagInternalInvariant, SeverityFatal, "invariant violation")
)

// JSONRPCCode maps an error's Kind/Tag to its JSON-RPC error code.
func (e *Error) JSONRPCCode() int {
	switch e.Kind {
	case KindValidation:
		return -32602
	case KindProtocol:
		if e.Tag == TagProtocolUnknownMethod {
			return -32601
		}
		return -32600
	case KindTransport:
		return -32003
	default:
		return -32603
	}
}

// As reports whether err (or a wrapped cause) is an *Error, for convenient
// type-switch-free access at call sites that only have an `error`.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
