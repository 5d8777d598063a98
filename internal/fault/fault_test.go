package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestFromTransportGenericBand(t *testing.T) {
	tests := []struct {
		code      TransportCode
		kind      Kind
		retryable bool
		key       string
	}{
		{CodeConnectionRefused, KindTransport, false, "net.connection-refused"},
		{CodeRemoteHostClosed, KindTransport, false, "net.host-closed"},
		{CodeHostNotFound, KindTransport, false, "net.host-not-found"},
		{CodeTimeout, KindTransport, true, "net.timeout"},
		{CodeOperationCanceled, KindTransport, false, "net.canceled"},
		{CodeTLSHandshakeFailed, KindTransport, false, "net.tls-handshake"},
		{CodeTemporaryFailure, KindTransport, true, "net.temporary-failure"},
		{CodeSessionFailed, KindTransport, true, "net.session-failed"},
		{CodeBackgroundDenied, KindTransport, false, "net.background-denied"},
		{CodeTooManyRedirects, KindTransport, false, "net.too-many-redirects"},
		{CodeInsecureRedirect, KindTransport, false, "net.insecure-redirect"},
		{CodeUnknownNetwork, KindTransport, false, "net.unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			e := FromTransport(tt.code, "example.com")
			if e.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", e.Kind, tt.kind)
			}
			if e.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", e.Retryable, tt.retryable)
			}
			if e.MessageKey != tt.key {
				t.Errorf("message key = %q, want %q", e.MessageKey, tt.key)
			}
			if e.Context != "example.com" {
				t.Errorf("context = %q, want example.com", e.Context)
			}
		})
	}
}

func TestFromTransportOtherBands(t *testing.T) {
	tests := []struct {
		code      TransportCode
		kind      Kind
		retryable bool
	}{
		{CodeProxyRefused, KindProxy, false},
		{CodeProxyTimeout, KindProxy, true},
		{CodeProxyAuthRequired, KindProxy, false},
		{CodeContentAccessDenied, KindContent, false},
		{CodeAuthRequired, KindContent, false},
		{CodeContentGone, KindContent, false},
		{CodeProtocolUnknown, KindServerProtocol, false},
		{CodeProtocolFailure, KindServerProtocol, false},
		{CodeServerInternal, KindServerApplication, false},
		{CodeServerUnavailable, KindServerApplication, true},
		{CodeUnknownServer, KindServerApplication, false},
	}

	for _, tt := range tests {
		e := FromTransport(tt.code, "")
		if e.Kind != tt.kind {
			t.Errorf("code %d: kind = %v, want %v", tt.code, e.Kind, tt.kind)
		}
		if e.Retryable != tt.retryable {
			t.Errorf("code %d: retryable = %v, want %v", tt.code, e.Retryable, tt.retryable)
		}
	}
}

func TestFromTransportUnmappedCodeFallsBackToBand(t *testing.T) {
	tests := []struct {
		code TransportCode
		kind Kind
		key  string
	}{
		{42, KindTransport, "net.unknown"},
		{150, KindProxy, "proxy.unknown"},
		{250, KindContent, "content.unknown"},
		{350, KindServerProtocol, "protocol.breakdown"},
		{450, KindServerApplication, "server.unknown"},
	}

	for _, tt := range tests {
		e := FromTransport(tt.code, "")
		if e.Kind != tt.kind {
			t.Errorf("code %d: kind = %v, want %v", tt.code, e.Kind, tt.kind)
		}
		if e.MessageKey != tt.key {
			t.Errorf("code %d: key = %q, want %q", tt.code, e.MessageKey, tt.key)
		}
		if e.Retryable {
			t.Errorf("code %d: unmapped codes must not be retryable", tt.code)
		}
	}
}

func TestFromStatusKeysAreDistinct(t *testing.T) {
	seen := make(map[string]int)
	for status := 400; status <= 511; status++ {
		e := FromStatus(status)
		if e.Status != status {
			t.Errorf("status %d: Status field = %d", status, e.Status)
		}
		if _, ok := httpTable[status]; !ok {
			continue // fallback keys are shared by design
		}
		if prev, dup := seen[e.MessageKey]; dup {
			t.Errorf("statuses %d and %d share message key %q", prev, status, e.MessageKey)
		}
		seen[e.MessageKey] = status
	}
}

func TestFromStatusRetryability(t *testing.T) {
	retryable := map[int]bool{408: true, 429: true, 503: true, 504: true}
	for status := 400; status <= 511; status++ {
		e := FromStatus(status)
		if e.Retryable != retryable[status] {
			t.Errorf("status %d: retryable = %v, want %v", status, e.Retryable, retryable[status])
		}
	}
}

func TestFromStatusKindByRange(t *testing.T) {
	if e := FromStatus(404); e.Kind != KindHTTPClient {
		t.Errorf("404 kind = %v, want %v", e.Kind, KindHTTPClient)
	}
	if e := FromStatus(500); e.Kind != KindHTTPServer {
		t.Errorf("500 kind = %v, want %v", e.Kind, KindHTTPServer)
	}
	// Unmapped statuses classify generically by range.
	if e := FromStatus(418); e.MessageKey != "http.client-error" {
		t.Errorf("418 key = %q, want http.client-error", e.MessageKey)
	}
	if e := FromStatus(507); e.MessageKey != "http.server-error" {
		t.Errorf("507 key = %q, want http.server-error", e.MessageKey)
	}
}

func TestConstructors(t *testing.T) {
	v := Validation("validation.folder-id")
	if v.Kind != KindValidation || v.Retryable {
		t.Errorf("Validation() = %+v, want non-retryable validation error", v)
	}

	p := Protocol("protocol.no-folders-array", "GET /folders")
	if p.Kind != KindServerProtocol || p.Retryable {
		t.Errorf("Protocol() = %+v, want non-retryable protocol error", p)
	}

	s := Storage("database closed")
	if s.Kind != KindStorage || s.Retryable {
		t.Errorf("Storage() = %+v, want non-retryable storage error", s)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(FromTransport(CodeTimeout, "")) {
		t.Error("timeout should be retryable")
	}
	if IsRetryable(Validation("validation.feed-id")) {
		t.Error("validation errors are never retryable")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("unclassified errors are never retryable")
	}

	// Classification survives wrapping.
	wrapped := fmt.Errorf("stage failed: %w", FromStatus(503))
	if !IsRetryable(wrapped) {
		t.Error("retryability must survive error wrapping")
	}
	if KindOf(wrapped) != KindHTTPServer {
		t.Errorf("KindOf(wrapped) = %v, want %v", KindOf(wrapped), KindHTTPServer)
	}
}
