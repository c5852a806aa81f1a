// Package httpclient builds outbound HTTP clients with deadlines sized for
// provider calls. Stage cancellation deliberately does not propagate into
// these clients; each call carries its own independent timeout so a
// short-fused upstream cannot abort a legitimately slow local model.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Config controls client construction.
type Config struct {
	// Timeout is the total per-request deadline.
	Timeout time.Duration

	// MaxIdleConns bounds the connection pool. 0 = default.
	MaxIdleConns int

	// UserAgent is sent with every request when set.
	UserAgent string
}

// New builds an *http.Client from the config.
func New(cfg Config) *http.Client {
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        maxIdle,
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	var rt http.RoundTripper = transport
	if cfg.UserAgent != "" {
		rt = &userAgentTransport{agent: cfg.UserAgent, next: transport}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: rt,
	}
}

// EnsureTimeout returns the client unchanged when its timeout already meets
// the floor, otherwise a replacement with the floor applied. A zero client
// timeout means unbounded and always passes.
func EnsureTimeout(c *http.Client, floor time.Duration) *http.Client {
	if c == nil {
		return New(Config{Timeout: floor})
	}
	if c.Timeout == 0 || c.Timeout >= floor {
		return c
	}
	replacement := *c
	replacement.Timeout = floor
	return &replacement
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.next.RoundTrip(req)
}
