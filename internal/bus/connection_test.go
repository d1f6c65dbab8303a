// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package bus

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/credentials"
	"github.com/tomtom215/toolagent/internal/logging"
)

func TestBuildURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    string
		param   string
		token   string
		want    string
		wantErr bool
	}{
		{"embeds token", "wss://bus.example.com/ws/nats", "authorization", "abc", "wss://bus.example.com/ws/nats?authorization=abc", false},
		{"escapes token", "wss://bus.example.com/ws/nats", "authorization", "a b&c", "wss://bus.example.com/ws/nats?authorization=a+b%26c", false},
		{"keeps existing query", "wss://bus.example.com/ws?x=1", "authorization", "t", "wss://bus.example.com/ws?authorization=t&x=1", false},
		{"no param", "nats://127.0.0.1:4222", "", "abc", "nats://127.0.0.1:4222", false},
		{"no token", "nats://127.0.0.1:4222", "authorization", "", "nats://127.0.0.1:4222", false},
		{"no scheme", "bus.example.com", "authorization", "t", "", true},
		{"bad url", "://", "authorization", "t", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildURL(tt.base, tt.param, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BuildURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BuildURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnectionManager_NotConnected(t *testing.T) {
	t.Parallel()

	m := NewConnectionManager(config.BusConfig{URL: "nats://127.0.0.1:4222"}, credentials.Static{ID: "m"}, logging.Nop())
	if _, err := m.Current(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Current() error = %v, want ErrNotConnected", err)
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true before Connect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestConnectionManager_ConnectRetries(t *testing.T) {
	t.Parallel()

	cfg := config.BusConfig{
		URL:                  "wss://bus.example.com/ws/nats",
		TokenQueryParam:      "authorization",
		ConnectRetryAttempts: 3,
		ConnectRetryDelay:    time.Millisecond,
	}
	m := NewConnectionManager(cfg, credentials.Static{ID: "host-1", BearerToken: "tok"}, logging.Nop())

	var dials atomic.Int32
	var lastURL atomic.Value
	m.dial = func(u string, _ ...nats.Option) (*nats.Conn, error) {
		dials.Add(1)
		lastURL.Store(u)
		return nil, errors.New("connection refused")
	}

	err := m.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect() expected error")
	}
	if dials.Load() != 3 {
		t.Errorf("dial attempts = %d, want 3", dials.Load())
	}
	u, err := url.Parse(lastURL.Load().(string))
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("authorization") != "tok" {
		t.Errorf("token not embedded: %s", u)
	}
}

func TestConnectionManager_TokenFailureRetried(t *testing.T) {
	t.Parallel()

	cfg := config.BusConfig{
		URL:                  "nats://127.0.0.1:4222",
		TokenQueryParam:      "authorization",
		ConnectRetryAttempts: 2,
		ConnectRetryDelay:    time.Millisecond,
	}
	m := NewConnectionManager(cfg, credentials.Static{ID: "host-1"}, logging.Nop())
	m.dial = func(string, ...nats.Option) (*nats.Conn, error) {
		t.Error("dial must not be called without a token")
		return nil, errors.New("unreachable")
	}

	if err := m.Connect(context.Background()); !errors.Is(err, credentials.ErrNoToken) {
		t.Errorf("Connect() error = %v, want ErrNoToken", err)
	}
}

func TestConnectionManager_ConnectCanceled(t *testing.T) {
	t.Parallel()

	cfg := config.BusConfig{
		URL:                  "nats://127.0.0.1:4222",
		ConnectRetryAttempts: 1000,
		ConnectRetryDelay:    time.Hour,
	}
	m := NewConnectionManager(cfg, credentials.Static{ID: "host-1"}, logging.Nop())
	m.dial = func(string, ...nats.Option) (*nats.Conn, error) {
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want DeadlineExceeded", err)
	}
}
