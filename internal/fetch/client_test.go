// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/credentials"
	"github.com/tomtom215/toolagent/internal/logging"
)

func testConfig(baseURL string, breaker bool) config.APIConfig {
	return config.APIConfig{
		BaseURL:               baseURL,
		RequestTimeout:        5 * time.Second,
		RequestsPerSecond:     1000,
		Burst:                 100,
		CircuitBreakerEnabled: breaker,
	}
}

func newTestClient(t *testing.T, baseURL string, breaker bool) *Client {
	t.Helper()
	c, err := NewClient(testConfig(baseURL, breaker), credentials.Static{ID: "m-1", BearerToken: "tok"}, logging.Nop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestFetchAgentFile(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("binary-content"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/", true)
	data, err := c.FetchAgentFile(context.Background(), "probe")
	if err != nil {
		t.Fatalf("FetchAgentFile() error = %v", err)
	}
	if string(data) != "binary-content" {
		t.Errorf("data = %q", data)
	}
	if gotPath != "/api/clients/tool-agent/probe" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestFetchToolFile_Path(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte("rules"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	if _, err := c.FetchToolFile(context.Background(), "probe", "rules/latest v2"); err != nil {
		t.Fatalf("FetchToolFile() error = %v", err)
	}
	if gotPath != "/tools/probe/rules/latest%20v2" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestFetchToolFile_EmptyPath(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "http://127.0.0.1:1", false)
	if _, err := c.FetchToolFile(context.Background(), "probe", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestFetch_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such tool", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	_, err := c.FetchAgentFile(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", se.StatusCode)
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "no such tool") {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestFetch_NoToken(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL, false), credentials.Static{ID: "m-1"}, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.FetchAgentFile(context.Background(), "probe"); !errors.Is(err, credentials.ErrNoToken) {
		t.Errorf("error = %v, want ErrNoToken", err)
	}
	if hits.Load() != 0 {
		t.Error("request sent without a token")
	}
}

func TestCircuitBreaker_OpensOnServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	for i := 0; i < 5; i++ {
		if _, err := c.FetchAgentFile(context.Background(), "probe"); err == nil {
			t.Fatal("expected error")
		}
	}
	if c.State() != "open" {
		t.Fatalf("State() = %q, want open", c.State())
	}

	_, err := c.FetchAgentFile(context.Background(), "probe")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if hits.Load() != 5 {
		t.Errorf("server hits = %d, want 5", hits.Load())
	}
}

func TestCircuitBreaker_IgnoresNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	for i := 0; i < 10; i++ {
		_, _ = c.FetchAgentFile(context.Background(), "missing")
	}
	if c.State() != "closed" {
		t.Errorf("State() = %q, want closed", c.State())
	}
}

func TestFetch_SizeLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		chunks  []string
		wantErr bool
	}{
		{name: "exactly at limit", chunks: []string{"12345678"}},
		{name: "declared length over limit", chunks: []string{"123456789"}, wantErr: true},
		{name: "streamed body over limit", chunks: []string{"1234", "56789"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for _, c := range tt.chunks {
					_, _ = w.Write([]byte(c))
					// Flushing forces chunked encoding, so no Content-Length is sent.
					if len(tt.chunks) > 1 {
						w.(http.Flusher).Flush()
					}
				}
			}))
			defer srv.Close()

			cfg := testConfig(srv.URL, true)
			cfg.MaxFileBytes = 8
			c, err := NewClient(cfg, credentials.Static{ID: "m-1", BearerToken: "tok"}, logging.Nop())
			if err != nil {
				t.Fatal(err)
			}

			for i := 0; i < 6; i++ {
				data, err := c.FetchAgentFile(context.Background(), "big")
				if tt.wantErr {
					if !errors.Is(err, ErrFileTooLarge) {
						t.Fatalf("error = %v, want ErrFileTooLarge", err)
					}
					continue
				}
				if err != nil || string(data) != "12345678" {
					t.Fatalf("FetchAgentFile() = %q, %v", data, err)
				}
			}
			// An oversized file is not a server fault.
			if c.State() != "closed" {
				t.Errorf("State() = %q, want closed", c.State())
			}
		})
	}
}

func TestFetch_RateLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1", false)
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	c, err := NewClient(cfg, credentials.Static{ID: "m", BearerToken: "t"}, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// Drain the single burst token.
	c.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.FetchAgentFile(ctx, "probe"); err == nil || !strings.Contains(err.Error(), "rate limiter") {
		t.Errorf("error = %v, want rate limiter error", err)
	}
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"", "not a url", "/relative"} {
		if _, err := NewClient(testConfig(u, false), credentials.Static{}, logging.Nop()); err == nil {
			t.Errorf("NewClient(%q) expected error", u)
		}
	}
}
