package fetcher

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// ClientConfig configures the HTTP client shared by every fetch of a run.
type ClientConfig struct {
	// Timeout bounds a whole request, body included.
	Timeout time.Duration

	// ConnectTimeout bounds dialing. Must be shorter than Timeout.
	ConnectTimeout time.Duration

	// MaxIdleConns caps idle connections kept across all hosts. It is not a
	// cap on active connections; MaxConnsPerHost is.
	MaxIdleConns int

	// MaxConnsPerHost caps connections (dialing, active and idle) per host.
	MaxConnsPerHost int

	// IdleConnTimeout closes idle pooled connections.
	IdleConnTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:         20 * time.Second,
		ConnectTimeout:  8 * time.Second,
		MaxIdleConns:    60,
		MaxConnsPerHost: 25,
		IdleConnTimeout: 90 * time.Second,
	}
}

// NewHTTPClient builds a client with its own connection pool. Callers own it
// for the duration of a run and call CloseIdleConnections when done.
func NewHTTPClient(cfg ClientConfig) *http.Client {
	def := DefaultClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ConnectTimeout <= 0 || cfg.ConnectTimeout >= cfg.Timeout {
		cfg.ConnectTimeout = min(def.ConnectTimeout, cfg.Timeout/2)
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.MaxConnsPerHost > cfg.MaxIdleConns {
		cfg.MaxConnsPerHost = cfg.MaxIdleConns
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}
