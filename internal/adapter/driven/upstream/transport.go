// Package upstream holds the outbound HTTP plumbing shared by every app
// adapter: one pooled transport, per-app rate limiting, bearer
// authentication and translation of provider failures into proxy errors.
package upstream

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Defaults for outbound calls.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// TransportOptions configures the shared outbound transport.
type TransportOptions struct {
	ConnectTimeout      time.Duration
	MaxIdleConnsPerHost int
}

// Transport is the shared outbound round tripper. It traces every request
// and owns the connection pool underneath.
type Transport struct {
	traced http.RoundTripper
	pool   *http.Transport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.traced.RoundTrip(r)
}

// CloseIdleConnections closes pooled connections that are not in use.
func (t *Transport) CloseIdleConnections() {
	t.pool.CloseIdleConnections()
}

// NewTransport builds the process-wide outbound transport. Connections are
// pooled across all users and apps; requests are traced with otelhttp.
func NewTransport(opts TransportOptions) *Transport {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	perHost := opts.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = 16
	}

	dialer := &net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = dialer.DialContext
	base.TLSHandshakeTimeout = connect
	base.MaxIdleConnsPerHost = perHost
	base.ResponseHeaderTimeout = 0

	return &Transport{traced: otelhttp.NewTransport(base), pool: base}
}
