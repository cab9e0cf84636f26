package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/merkle-airdrop/airdrop/config"
)

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

// TestDelayedRoundTripper_Disabled verifies that no delay is added when disabled
func TestDelayedRoundTripper_Disabled(t *testing.T) {
	server := okServer(t)

	transport := NewDelayedRoundTripper(nil, DelayConfig{
		Enabled:  false,
		MinDelay: 100 * time.Millisecond,
		MaxDelay: 200 * time.Millisecond,
	})
	client := &http.Client{Transport: transport}

	start := time.Now()
	resp, err := client.Get(server.URL)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	// Request should complete quickly when disabled
	if elapsed >= 100*time.Millisecond {
		t.Errorf("Request took too long with disabled delay: %v", elapsed)
	}
}

// TestDelayedRoundTripper_Enabled verifies that delays are added when enabled
func TestDelayedRoundTripper_Enabled(t *testing.T) {
	server := okServer(t)

	minDelay := 50 * time.Millisecond
	transport := NewDelayedRoundTripper(nil, DelayConfig{
		Enabled:  true,
		MinDelay: minDelay,
		MaxDelay: 100 * time.Millisecond,
	})
	client := &http.Client{Transport: transport}

	start := time.Now()
	resp, err := client.Get(server.URL)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if elapsed < minDelay {
		t.Errorf("Request completed too quickly: %v (expected >= %v)", elapsed, minDelay)
	}
}

// TestDelayedRoundTripper_ContextCancelledDuringDelay verifies that a request
// whose context ends during the delay is abandoned without being sent
func TestDelayedRoundTripper_ContextCancelledDuringDelay(t *testing.T) {
	server := okServer(t)

	transport := NewDelayedRoundTripper(nil, DelayConfig{
		Enabled:  true,
		MinDelay: 5 * time.Second,
		MaxDelay: 5 * time.Second,
	})
	client := &http.Client{Transport: transport}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	start := time.Now()
	_, err = client.Do(req)
	if err == nil {
		t.Fatal("Expected request to fail after its context expired")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("Cancelled request still waited out the delay: %v", elapsed)
	}
}

// TestDelayedRoundTripper_ConcurrentDelays verifies the shared rng is safe
// under concurrent requests
func TestDelayedRoundTripper_ConcurrentDelays(t *testing.T) {
	d := NewDelayedRoundTripper(nil, DelayConfig{
		Enabled:  true,
		MinDelay: time.Millisecond,
		MaxDelay: 3 * time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if delay := d.calculateDelay(); delay < time.Millisecond || delay >= 3*time.Millisecond {
				t.Errorf("Delay %v outside [1ms, 3ms)", delay)
			}
		}()
	}
	wg.Wait()
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient(config.NetworkConfig{})
	if c.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout %v, got %v", DefaultTimeout, c.Timeout)
	}
	if c.Transport != http.DefaultTransport {
		t.Errorf("Expected default transport when delay is disabled")
	}

	c = NewHTTPClient(config.NetworkConfig{TimeoutMs: 250, DelayEnabled: true, MinDelayMs: 1, MaxDelayMs: 2})
	if c.Timeout != 250*time.Millisecond {
		t.Errorf("Expected timeout 250ms, got %v", c.Timeout)
	}
	if _, ok := c.Transport.(*DelayedRoundTripper); !ok {
		t.Errorf("Expected *DelayedRoundTripper transport, got %T", c.Transport)
	}
}
