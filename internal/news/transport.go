// Package news implements the remote operation set against a Nextcloud
// News style API.
//
// Each operation wrapper issues exactly one transport call, validates its
// inputs locally before spending a round trip, checks the reply for the
// expected payload shape and returns decoded entities or a classified
// error. Wrappers never swallow or reinterpret errors.
package news

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mlindgren/feedsync/internal/fault"
)

// Response is the raw outcome of one transport call: an HTTP-style
// status code and an undecoded body.
type Response struct {
	Status int
	Body   []byte
}

// Fault is a transport-level failure carrying a band-coded fault code.
// The operation wrappers classify it via the fault package.
type Fault struct {
	Code   fault.TransportCode
	Detail string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("transport fault %d: %s", f.Code, f.Detail)
}

// Transport executes one HTTP-style request against the remote service.
// Implementations own timeouts; the engine only consumes the outcome.
type Transport interface {
	Execute(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error)
}

// HTTPTransport is the production Transport over net/http with HTTP
// basic authentication, as the News API expects.
type HTTPTransport struct {
	base     *url.URL
	username string
	password string
	client   *http.Client
}

// apiBase is the News app route prefix all operation paths hang off.
const apiBase = "/index.php/apps/news/api/v1-3"

// NewHTTPTransport creates a transport for the News API rooted at
// serverURL. A timeout of 0 disables the per-request deadline.
func NewHTTPTransport(serverURL, username, password string, timeout time.Duration) (*HTTPTransport, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	return &HTTPTransport{
		base:     base,
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Execute implements Transport. Network failures are mapped onto the
// band-coded fault codes; HTTP error statuses are NOT treated as
// transport failures here — the status travels back in the Response for
// the operation wrapper to classify.
func (t *HTTPTransport) Execute(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	u := *t.base
	u.Path = strings.TrimSuffix(u.Path, "/") + apiBase + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, &Fault{Code: fault.CodeUnknownNetwork, Detail: err.Error()}
	}
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Fault{Code: classifyNetError(err), Detail: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Fault{Code: fault.CodeRemoteHostClosed, Detail: err.Error()}
	}

	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// classifyNetError maps a net/http client error onto a transport fault
// code.
func classifyNetError(err error) fault.TransportCode {
	if errors.Is(err, context.Canceled) {
		return fault.CodeOperationCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.CodeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fault.CodeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fault.CodeHostNotFound
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return fault.CodeTLSHandshakeFailed
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		msg := opErr.Error()
		switch {
		case strings.Contains(msg, "connection refused"):
			return fault.CodeConnectionRefused
		case strings.Contains(msg, "connection reset"),
			strings.Contains(msg, "broken pipe"):
			return fault.CodeRemoteHostClosed
		case strings.Contains(msg, "network is unreachable"),
			strings.Contains(msg, "network is down"):
			return fault.CodeTemporaryFailure
		}
	}

	if strings.Contains(err.Error(), "tls:") {
		return fault.CodeTLSHandshakeFailed
	}
	if strings.Contains(err.Error(), "stopped after") { // redirect limit
		return fault.CodeTooManyRedirects
	}

	return fault.CodeUnknownNetwork
}
