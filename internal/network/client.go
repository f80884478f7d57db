// internal/network/client.go
package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Transport tuning for a small API client that mostly polls a single host.
const (
	DefaultDialTimeout         = 15 * time.Second
	DefaultKeepAliveInterval   = 30 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultRequestTimeout      = 60 * time.Second

	DefaultMaxIdleConns        = 10
	DefaultMaxIdleConnsPerHost = 5
	DefaultIdleConnTimeout     = 90 * time.Second
)

// NewAPIClient builds the http.Client used for oracle traffic: pooled
// connections, TLS 1.2 minimum, transparent brotli/gzip/deflate
// decompression and an overall request timeout. A non-positive timeout
// falls back to DefaultRequestTimeout.
func NewAPIClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: DefaultKeepAliveInterval,
		}).DialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		// The middleware owns decompression; the transport's built-in gzip
		// handling must stay disabled or Content-Encoding never surfaces.
		DisableCompression: true,
		ForceAttemptHTTP2:  true,
	}

	return &http.Client{
		Transport: NewCompressionMiddleware(transport),
		Timeout:   timeout,
	}
}
