package network

import (
	"net/http"
	"time"

	"github.com/merkle-airdrop/airdrop/config"
)

// DefaultTimeout is used when the config leaves timeout_ms at zero.
const DefaultTimeout = 10 * time.Second

// NewHTTPClient creates an HTTP client for talking to a remote registry.
// If conf.DelayEnabled is true, the client adds random delays to simulate
// network latency.
func NewHTTPClient(conf config.NetworkConfig) *http.Client {
	transport := http.DefaultTransport

	if conf.DelayEnabled {
		transport = NewDelayedRoundTripper(transport, DelayConfig{
			Enabled:  true,
			MinDelay: time.Duration(conf.MinDelayMs) * time.Millisecond,
			MaxDelay: time.Duration(conf.MaxDelayMs) * time.Millisecond,
		})
	}

	timeout := time.Duration(conf.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
