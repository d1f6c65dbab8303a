// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package bus

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/credentials"
	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/metrics"
)

// BuildURL embeds token into base as the query parameter param.
// An empty param or token returns base unchanged.
func BuildURL(base, param, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse bus URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: bus URL %q needs scheme and host", ErrInvalidConfig, base)
	}
	if param == "" || token == "" {
		return u.String(), nil
	}
	q := u.Query()
	q.Set(param, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ConnectionManager owns the process-wide bus connection.
//
// The handle is absent until Connect succeeds and is replaced wholesale on
// every new connection. Readers use Current or Wait.
type ConnectionManager struct {
	cfg    config.BusConfig
	creds  credentials.Provider
	logger zerolog.Logger
	dial   func(url string, opts ...nats.Option) (*nats.Conn, error)

	mu      sync.RWMutex
	conn    *nats.Conn
	closed  chan struct{}
	changed chan struct{}
}

// NewConnectionManager creates a manager. No connection is made until
// Connect or Serve is called.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewConnectionManager(cfg config.BusConfig, creds credentials.Provider, logger zerolog.Logger) *ConnectionManager {
	return &ConnectionManager{
		cfg:     cfg,
		creds:   creds,
		logger:  logging.Component(logger, "bus-connection"),
		dial:    nats.Connect,
		changed: make(chan struct{}),
	}
}

// Current returns the active connection or ErrNotConnected.
func (m *ConnectionManager) Current() (*nats.Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil || m.conn.IsClosed() {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

// IsConnected reports whether the current connection is usable right now.
func (m *ConnectionManager) IsConnected() bool {
	nc, err := m.Current()
	return err == nil && nc.IsConnected()
}

// Wait blocks until a connection is published or ctx is done.
func (m *ConnectionManager) Wait(ctx context.Context) (*nats.Conn, error) {
	for {
		m.mu.RLock()
		conn, changed := m.conn, m.changed
		m.mu.RUnlock()

		if conn != nil && !conn.IsClosed() {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Connect establishes a connection, retrying up to ConnectRetryAttempts times
// with a fixed ConnectRetryDelay between attempts. A fresh token is fetched
// for every attempt.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	attempts := m.cfg.ConnectRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := m.connectOnce(ctx)
		metrics.RecordBusConnectAttempt(err)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("retry_in", m.cfg.ConnectRetryDelay).
			Msg("Bus connection attempt failed")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.ConnectRetryDelay):
		}
	}
	return fmt.Errorf("connect to bus after %d attempts: %w", attempts, lastErr)
}

func (m *ConnectionManager) connectOnce(ctx context.Context) error {
	token := ""
	if m.cfg.TokenQueryParam != "" {
		t, err := m.creds.Token(ctx)
		if err != nil {
			return fmt.Errorf("get bus token: %w", err)
		}
		token = t
	}

	busURL, err := BuildURL(m.cfg.URL, m.cfg.TokenQueryParam, token)
	if err != nil {
		return err
	}

	closed := make(chan struct{})
	var closeOnce sync.Once

	opts := []nats.Option{
		nats.Name(m.creds.MachineID()),
		nats.MaxReconnects(m.cfg.MaxReconnects),
		nats.ReconnectWait(m.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			metrics.SetBusConnected(false)
			if err != nil {
				m.logger.Warn().Err(err).Msg("Bus disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			metrics.SetBusConnected(true)
			m.logger.Info().Str("server", nc.ConnectedUrlRedacted()).Msg("Bus reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			metrics.SetBusConnected(false)
			closeOnce.Do(func() { close(closed) })
		}),
	}
	if m.cfg.User != "" {
		opts = append(opts, nats.UserInfo(m.cfg.User, m.cfg.Password))
	}

	nc, err := m.dial(busURL, opts...)
	if err != nil {
		return fmt.Errorf("dial bus: %w", err)
	}

	m.publish(nc, closed)
	m.logger.Info().
		Str("server", nc.ConnectedUrlRedacted()).
		Str("client_name", m.creds.MachineID()).
		Msg("Connected to bus")
	return nil
}

// publish swaps in nc and wakes any Wait callers. The previous connection,
// if any, is drained.
func (m *ConnectionManager) publish(nc *nats.Conn, closed chan struct{}) {
	m.mu.Lock()
	prev := m.conn
	m.conn = nc
	m.closed = closed
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	if prev != nil && prev != nc && !prev.IsClosed() {
		if err := prev.Drain(); err != nil {
			prev.Close()
		}
	}
}

// Serve implements suture.Service. It connects, then blocks until the
// client gives up reconnecting and connects again with a fresh token.
func (m *ConnectionManager) Serve(ctx context.Context) error {
	for {
		if err := m.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				m.shutdown()
				return ctx.Err()
			}
			return err
		}

		m.mu.RLock()
		closed := m.closed
		m.mu.RUnlock()

		select {
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()
		case <-closed:
			m.logger.Warn().Msg("Bus connection closed, reconnecting with a fresh token")
		}
	}
}

// shutdown drains and forgets the current connection.
func (m *ConnectionManager) shutdown() {
	m.mu.Lock()
	nc := m.conn
	m.conn = nil
	m.mu.Unlock()

	if nc == nil || nc.IsClosed() {
		return
	}
	if err := nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		m.logger.Warn().Err(err).Msg("Bus drain failed, closing")
		nc.Close()
	}
	metrics.SetBusConnected(false)
}

// String implements fmt.Stringer for suture logging.
func (m *ConnectionManager) String() string {
	return "bus-connection"
}
