package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// Transport error categories. Each category maps to a retryable flag
// and a suggested HTTP status for the client-facing error.
const (
	CategoryDNSResolution      = "dns_resolution"
	CategoryConnectionRefused  = "connection_refused"
	CategoryConnectionReset    = "connection_reset"
	CategoryNetworkUnreachable = "network_unreachable"
	CategoryTimeoutConnect     = "timeout_connect"
	CategoryTimeoutRead        = "timeout_read"
	CategorySSL                = "ssl_error"
	CategoryProxy              = "proxy_error"
	CategoryTooManyRedirects   = "too_many_redirects"
	CategoryUnknown            = "unknown"
)

// TransportError wraps a network-level failure with its category,
// whether a retry is worthwhile, and the status the gateway should
// surface to its own client.
type TransportError struct {
	Category        string
	Retryable       bool
	SuggestedStatus int
	UserMessage     string
	Err             error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Category, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-success HTTP status from the upstream after
// retries were exhausted or the status is terminal.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if len(e.Body) > 200 {
		return fmt.Sprintf("upstream status %d: %s...", e.StatusCode, e.Body[:200])
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// RetriesExhaustedError reports that every attempt against the upstream
// failed. SuggestedStatus is 504 for streaming requests and 502
// otherwise.
type RetriesExhaustedError struct {
	Attempts        int
	SuggestedStatus int
	LastErr         error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("upstream unreachable after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.LastErr }

// ClassifyTransportError inspects an error returned by the HTTP client
// and assigns it a category. Unknown errors default to retryable with a
// 502 suggestion.
func ClassifyTransportError(err error) *TransportError {
	te := &TransportError{
		Category:        CategoryUnknown,
		Retryable:       true,
		SuggestedStatus: http.StatusBadGateway,
		UserMessage:     "Upstream request failed due to a network error.",
		Err:             err,
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		te.Category = CategoryDNSResolution
		te.UserMessage = "Could not resolve the upstream host. Check DNS and network connectivity."
		return te
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostnameErr) {
		te.Category = CategorySSL
		te.Retryable = false
		te.UserMessage = "TLS verification against the upstream failed. Check system certificates and any intercepting proxies."
		return te
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if strings.Contains(urlErr.Error(), "stopped after") {
			te.Category = CategoryTooManyRedirects
			te.Retryable = false
			te.UserMessage = "The upstream redirected too many times."
			return te
		}
		if strings.Contains(strings.ToLower(urlErr.Error()), "proxy") {
			te.Category = CategoryProxy
			te.UserMessage = "The configured HTTP proxy rejected the connection."
			return te
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		te.Category = CategoryConnectionRefused
		te.UserMessage = "The upstream refused the connection."
		return te
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		te.Category = CategoryConnectionReset
		te.UserMessage = "The upstream closed the connection mid-request."
		return te
	}
	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		te.Category = CategoryNetworkUnreachable
		te.UserMessage = "The upstream network is unreachable. Check routing and VPN state."
		return te
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		// A timeout during dial is distinguishable from a read timeout
		// by the operation on the wrapped OpError.
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			te.Category = CategoryTimeoutConnect
			te.SuggestedStatus = http.StatusGatewayTimeout
			te.UserMessage = "Timed out connecting to the upstream."
			return te
		}
		te.Category = CategoryTimeoutRead
		te.SuggestedStatus = http.StatusGatewayTimeout
		te.UserMessage = "Timed out waiting for the upstream to respond."
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		te.Category = CategoryTimeoutRead
		te.SuggestedStatus = http.StatusGatewayTimeout
		te.UserMessage = "Timed out waiting for the upstream to respond."
		return te
	}

	return te
}
