package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"foodietrack/backend/go/internal/config"
	"foodietrack/backend/go/pkg/circuitbreaker"
)

func newBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2, // Open after 2 consecutive failures
		SuccessThreshold: 1,
		Timeout:          "10s",
	}
}

func TestNewServer_WithAddress(t *testing.T) {
	addr := ":9999"
	srv := NewServer(http.NotFoundHandler(), WithAddress(addr))

	if srv.Addr() != addr {
		t.Errorf("Expected server address to be %s, but got %s", addr, srv.Addr())
	}
}

func TestNewServer_DefaultAddress(t *testing.T) {
	srv := NewServer(http.NotFoundHandler())
	if srv.Addr() != ":8000" {
		t.Errorf("Expected default address :8000, got %s", srv.Addr())
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve() should return nil after shutdown, got %v", err)
	}
}

func TestClient_DoJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("Expected api key header to be forwarded")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	c := NewClient("test", newBreakerConfig())
	var out struct {
		OK bool `json:"ok"`
	}
	h := http.Header{}
	h.Set("X-Api-Key", "secret")
	if err := c.DoJSON(context.Background(), http.MethodPost, upstream.URL, h, map[string]string{"a": "b"}, &out); err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	if !out.OK {
		t.Errorf("Expected decoded body")
	}
}

func TestClient_StatusError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer upstream.Close()

	c := NewClient("test", newBreakerConfig())
	err := c.DoJSON(context.Background(), http.MethodGet, upstream.URL, nil, nil, nil)

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected StatusError 400, got %v", err)
	}
	if c.BreakerState() != circuitbreaker.Closed {
		t.Errorf("4xx responses must not trip the breaker")
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	var hits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	var opened int32
	c := NewClient("test", newBreakerConfig(), WithStateChange(func(name string, from, to circuitbreaker.State) {
		if to == circuitbreaker.Open {
			atomic.AddInt32(&opened, 1)
		}
	}))

	// First 2 requests reach the upstream and trip the circuit
	for i := 0; i < 2; i++ {
		err := c.DoJSON(context.Background(), http.MethodGet, upstream.URL, nil, nil, nil)
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
			t.Fatalf("Request %d: expected StatusError 500, got %v", i+1, err)
		}
	}

	// The 3rd request should be blocked by the open circuit breaker
	err := c.DoJSON(context.Background(), http.MethodGet, upstream.URL, nil, nil, nil)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("Expected 2 upstream hits, got %d", got)
	}
	if atomic.LoadInt32(&opened) != 1 {
		t.Errorf("Expected one open transition")
	}
}

func TestClient_NoBreaker(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer upstream.Close()

	c := NewClient("test", config.CircuitBreakerConfig{})
	for i := 0; i < 5; i++ {
		err := c.DoJSON(context.Background(), http.MethodGet, upstream.URL, nil, nil, nil)
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("Expected StatusError, got %v", err)
		}
	}
}
