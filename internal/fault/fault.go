// Package fault classifies heterogeneous sync failures into a small,
// stable taxonomy.
//
// Every failure the engine can encounter — a transport fault, an HTTP
// error status, a malformed server payload, a local validation mistake or
// an unavailable cache — is mapped to a Kind plus a retryability flag and
// a stable message key. The message key is the localization handle for
// callers; the core never formats user-facing text itself.
//
// Classification is pure: it never inspects engine state and has no side
// effects.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the classified category of a failure, independent of its raw
// transport or HTTP origin.
type Kind int

const (
	// KindUnknown covers failures no band or table recognizes.
	KindUnknown Kind = iota
	// KindTransport covers generic network faults (band 1-11, 99).
	KindTransport
	// KindProxy covers proxy faults (band 101-105, 199).
	KindProxy
	// KindContent covers remote-content faults (band 201-207, 299).
	KindContent
	// KindServerProtocol covers protocol breakdowns: band 301-302/399 and
	// malformed payloads (expected array or object missing).
	KindServerProtocol
	// KindServerApplication covers server behavior faults (band 401-403, 499).
	KindServerApplication
	// KindHTTPClient covers HTTP 4xx statuses.
	KindHTTPClient
	// KindHTTPServer covers HTTP 5xx statuses.
	KindHTTPServer
	// KindValidation covers local input mistakes caught before any
	// network round trip. Never retried.
	KindValidation
	// KindStorage means the local cache cannot currently accept
	// operations. Fatal for the current run.
	KindStorage
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProxy:
		return "proxy"
	case KindContent:
		return "content"
	case KindServerProtocol:
		return "server-protocol"
	case KindServerApplication:
		return "server-application"
	case KindHTTPClient:
		return "http-client"
	case KindHTTPServer:
		return "http-server"
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a classified failure.
//
// MessageKey is stable across releases; two different HTTP statuses never
// share a key. Context carries free-form detail (a host name, the name of
// a missing payload array) for logging, never for control flow.
type Error struct {
	Kind       Kind
	Status     int // HTTP status for KindHTTPClient/KindHTTPServer, else 0
	Retryable  bool
	MessageKey string
	Context    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.MessageKey, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.MessageKey)
}

// Validation builds a non-retryable local-input error. Wrappers return
// these before issuing any transport call.
func Validation(messageKey string) *Error {
	return &Error{
		Kind:       KindValidation,
		MessageKey: messageKey,
	}
}

// Protocol builds a non-retryable payload-shape error, e.g. a reply
// missing the expected "folders" array.
func Protocol(messageKey, context string) *Error {
	return &Error{
		Kind:       KindServerProtocol,
		MessageKey: messageKey,
		Context:    context,
	}
}

// Storage builds the error reported when the local cache cannot accept
// operations. Non-retryable for the current run.
func Storage(context string) *Error {
	return &Error{
		Kind:       KindStorage,
		MessageKey: "storage.unavailable",
		Context:    context,
	}
}

// IsRetryable reports whether err carries a classified failure that is
// likely to succeed on a later run. Unclassified errors are never
// retryable, avoiding retry loops on unknown conditions.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// KindOf returns the classified kind of err, or KindUnknown if err does
// not carry a classification.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
