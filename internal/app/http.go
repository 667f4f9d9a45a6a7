package app

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hyperifyio/chatsave/internal/fetch"
)

// newHTTPClient returns an HTTP client with bounded dial and handshake times.
// A zero timeout uses 60s.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func newFetchClient(cfg Config, logger *zerolog.Logger) *fetch.Client {
	return &fetch.Client{
		HTTPClient:        newHTTPClient(cfg.FetchTimeout),
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.FetchMaxAttempts,
		PerRequestTimeout: cfg.FetchTimeout,
		MaxConcurrent:     4,
		Log:               logger,
	}
}
