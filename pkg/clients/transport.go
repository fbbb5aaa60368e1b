package clients

import (
	"net"
	"net/http"
	"time"
)

// DefaultTransport returns an HTTP transport with per-host connection caps so
// a stalled API cannot pile up unbounded sockets.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxConnsPerHost:     32,
		MaxIdleConnsPerHost: 8,
		MaxIdleConns:        32,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewHTTPClient returns a client using DefaultTransport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Transport: DefaultTransport(), Timeout: timeout}
}
