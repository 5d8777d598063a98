package fault

// TransportCode identifies a transport-level fault reported by the
// transport collaborator. Codes are grouped into five bands; each band
// reserves a trailing code for conditions the band recognizes but cannot
// name. Unmapped codes within a band classify as that band's unknown
// code and are never retryable.
type TransportCode int

// Generic network band (1-11, 99).
const (
	CodeConnectionRefused  TransportCode = 1
	CodeRemoteHostClosed   TransportCode = 2
	CodeHostNotFound       TransportCode = 3
	CodeTimeout            TransportCode = 4
	CodeOperationCanceled  TransportCode = 5
	CodeTLSHandshakeFailed TransportCode = 6
	CodeTemporaryFailure   TransportCode = 7
	CodeSessionFailed      TransportCode = 8
	CodeBackgroundDenied   TransportCode = 9
	CodeTooManyRedirects   TransportCode = 10
	CodeInsecureRedirect   TransportCode = 11
	CodeUnknownNetwork     TransportCode = 99
)

// Proxy band (101-105, 199).
const (
	CodeProxyRefused      TransportCode = 101
	CodeProxyClosed       TransportCode = 102
	CodeProxyNotFound     TransportCode = 103
	CodeProxyTimeout      TransportCode = 104
	CodeProxyAuthRequired TransportCode = 105
	CodeUnknownProxy      TransportCode = 199
)

// Remote content band (201-207, 299).
const (
	CodeContentAccessDenied TransportCode = 201
	CodeContentNotPermitted TransportCode = 202
	CodeContentNotFound     TransportCode = 203
	CodeAuthRequired        TransportCode = 204
	CodeContentReSend       TransportCode = 205
	CodeContentConflict     TransportCode = 206
	CodeContentGone         TransportCode = 207
	CodeUnknownContent      TransportCode = 299
)

// Protocol band (301-302, 399).
const (
	CodeProtocolUnknown   TransportCode = 301
	CodeProtocolInvalidOp TransportCode = 302
	CodeProtocolFailure   TransportCode = 399
)

// Server behavior band (401-403, 499).
const (
	CodeServerInternal       TransportCode = 401
	CodeServerNotImplemented TransportCode = 402
	CodeServerUnavailable    TransportCode = 403
	CodeUnknownServer        TransportCode = 499
)

// transportEntry holds the classification for one transport code.
type transportEntry struct {
	kind      Kind
	retryable bool
	key       string
}

// transportTable maps every named transport code to its classification.
//
// Retryable codes signal transient unavailability: timeouts, temporary
// disconnection, a busy server, a proxy that did not answer in time.
// Everything else is a definitive rejection and retrying would only
// repeat it.
var transportTable = map[TransportCode]transportEntry{
	CodeConnectionRefused:  {KindTransport, false, "net.connection-refused"},
	CodeRemoteHostClosed:   {KindTransport, false, "net.host-closed"},
	CodeHostNotFound:       {KindTransport, false, "net.host-not-found"},
	CodeTimeout:            {KindTransport, true, "net.timeout"},
	CodeOperationCanceled:  {KindTransport, false, "net.canceled"},
	CodeTLSHandshakeFailed: {KindTransport, false, "net.tls-handshake"},
	CodeTemporaryFailure:   {KindTransport, true, "net.temporary-failure"},
	CodeSessionFailed:      {KindTransport, true, "net.session-failed"},
	CodeBackgroundDenied:   {KindTransport, false, "net.background-denied"},
	CodeTooManyRedirects:   {KindTransport, false, "net.too-many-redirects"},
	CodeInsecureRedirect:   {KindTransport, false, "net.insecure-redirect"},
	CodeUnknownNetwork:     {KindTransport, false, "net.unknown"},

	CodeProxyRefused:      {KindProxy, false, "proxy.connection-refused"},
	CodeProxyClosed:       {KindProxy, false, "proxy.connection-closed"},
	CodeProxyNotFound:     {KindProxy, false, "proxy.not-found"},
	CodeProxyTimeout:      {KindProxy, true, "proxy.timeout"},
	CodeProxyAuthRequired: {KindProxy, false, "proxy.auth-required"},
	CodeUnknownProxy:      {KindProxy, false, "proxy.unknown"},

	CodeContentAccessDenied: {KindContent, false, "content.access-denied"},
	CodeContentNotPermitted: {KindContent, false, "content.not-permitted"},
	CodeContentNotFound:     {KindContent, false, "content.not-found"},
	CodeAuthRequired:        {KindContent, false, "content.auth-required"},
	CodeContentReSend:       {KindContent, false, "content.resend-failed"},
	CodeContentConflict:     {KindContent, false, "content.conflict"},
	CodeContentGone:         {KindContent, false, "content.gone"},
	CodeUnknownContent:      {KindContent, false, "content.unknown"},

	CodeProtocolUnknown:   {KindServerProtocol, false, "protocol.unknown-scheme"},
	CodeProtocolInvalidOp: {KindServerProtocol, false, "protocol.invalid-operation"},
	CodeProtocolFailure:   {KindServerProtocol, false, "protocol.breakdown"},

	CodeServerInternal:       {KindServerApplication, false, "server.internal"},
	CodeServerNotImplemented: {KindServerApplication, false, "server.not-implemented"},
	CodeServerUnavailable:    {KindServerApplication, true, "server.unavailable"},
	CodeUnknownServer:        {KindServerApplication, false, "server.unknown"},
}

// FromTransport classifies a transport fault code. Context carries
// free-form detail such as the host name involved.
func FromTransport(code TransportCode, context string) *Error {
	if entry, ok := transportTable[code]; ok {
		return &Error{
			Kind:       entry.kind,
			Retryable:  entry.retryable,
			MessageKey: entry.key,
			Context:    context,
		}
	}
	// Unmapped code: classify by band, non-retryable.
	entry, ok := transportTable[bandUnknown(code)]
	if !ok {
		return &Error{Kind: KindUnknown, MessageKey: "unknown", Context: context}
	}
	return &Error{
		Kind:       entry.kind,
		MessageKey: entry.key,
		Context:    context,
	}
}

// bandUnknown returns the unknown-in-band code for an unmapped transport
// code.
func bandUnknown(code TransportCode) TransportCode {
	switch {
	case code > 0 && code < 100:
		return CodeUnknownNetwork
	case code < 200:
		return CodeUnknownProxy
	case code < 300:
		return CodeUnknownContent
	case code < 400:
		return CodeProtocolFailure
	case code < 500:
		return CodeUnknownServer
	default:
		return 0
	}
}
