package fault

import "fmt"

// httpEntry holds the classification for one HTTP status code.
type httpEntry struct {
	retryable bool
	key       string
}

// httpTable maps recognized HTTP error statuses to stable message keys.
// Every listed status has its own key; localization happens outside the
// core, keyed on these strings.
//
// Retryable statuses are the ones a later run can reasonably expect to
// clear on its own: a request timeout, a rate limit, a server that is
// briefly overloaded or a gateway that did not answer in time.
var httpTable = map[int]httpEntry{
	400: {false, "http.bad-request"},
	401: {false, "http.unauthorized"},
	403: {false, "http.forbidden"},
	404: {false, "http.not-found"},
	405: {false, "http.method-not-allowed"},
	406: {false, "http.not-acceptable"},
	407: {false, "http.proxy-auth-required"},
	408: {true, "http.request-timeout"},
	409: {false, "http.conflict"},
	410: {false, "http.gone"},
	411: {false, "http.length-required"},
	412: {false, "http.precondition-failed"},
	413: {false, "http.payload-too-large"},
	414: {false, "http.uri-too-long"},
	415: {false, "http.unsupported-media-type"},
	416: {false, "http.range-not-satisfiable"},
	417: {false, "http.expectation-failed"},
	421: {false, "http.misdirected-request"},
	426: {false, "http.upgrade-required"},
	428: {false, "http.precondition-required"},
	429: {true, "http.too-many-requests"},
	431: {false, "http.header-fields-too-large"},
	500: {false, "http.internal-server-error"},
	501: {false, "http.not-implemented"},
	502: {false, "http.bad-gateway"},
	503: {true, "http.service-unavailable"},
	504: {true, "http.gateway-timeout"},
	505: {false, "http.version-not-supported"},
	506: {false, "http.variant-also-negotiates"},
	509: {false, "http.bandwidth-limit-exceeded"},
	510: {false, "http.not-extended"},
	511: {false, "http.network-auth-required"},
}

// FromStatus classifies an HTTP error status code. Statuses not listed
// in the table fall back to a generic client or server error by range,
// non-retryable.
func FromStatus(status int) *Error {
	kind := KindHTTPClient
	if status >= 500 {
		kind = KindHTTPServer
	}
	if entry, ok := httpTable[status]; ok {
		return &Error{
			Kind:       kind,
			Status:     status,
			Retryable:  entry.retryable,
			MessageKey: entry.key,
		}
	}
	key := "http.client-error"
	if status >= 500 {
		key = "http.server-error"
	}
	return &Error{
		Kind:       kind,
		Status:     status,
		MessageKey: key,
		Context:    fmt.Sprintf("status %d", status),
	}
}
