// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package fetch downloads tool binaries and assets from the management
// server. Two endpoints are used:
//
//	GET {base}/clients/tool-agent/{id}      agent files (main binaries, ARTIFACTORY assets)
//	GET {base}/tools/{toolId}/{path}        tool API assets
//
// Requests carry the bearer token from the credential provider, are rate
// limited, and pass through a circuit breaker so an unavailable server
// fails installations fast instead of tying up the listener.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/credentials"
	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/metrics"
)

// Sources, used as metric labels.
const (
	SourceAgentFile = "agent_file"
	SourceToolAPI   = "tool_api"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a request.
	ErrCircuitOpen = errors.New("file server circuit breaker is open")

	// ErrFileTooLarge is returned when a file exceeds APIConfig.MaxFileBytes.
	ErrFileTooLarge = errors.New("file exceeds size limit")
)

const defaultMaxFileBytes int64 = 512 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("GET %s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// serverFault reports whether the status indicates an unhealthy server
// rather than a bad request for one file.
func (e *StatusError) serverFault() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client fetches files over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  credentials.Provider
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
	maxSize int64
	name    string
	logger  zerolog.Logger
}

// NewClient creates a Client for cfg.BaseURL.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewClient(cfg config.APIConfig, tokens credentials.Provider, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", cfg.BaseURL)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	maxSize := cfg.MaxFileBytes
	if maxSize <= 0 {
		maxSize = defaultMaxFileBytes
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		maxSize: maxSize,
		name:    "file-server",
		logger:  logging.Component(logger, "fetch"),
	}
	if cfg.CircuitBreakerEnabled {
		c.cb = newBreaker(c.name, c.logger)
	}
	return c, nil
}

// newBreaker opens after at least 5 requests with a 60% failure rate and
// probes again after 30 seconds.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func newBreaker(name string, logger zerolog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logger.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("Opening file server circuit")
			}
			return shouldTrip
		},
		// A 404 for one tool says nothing about server health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return !se.serverFault()
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, ErrFileTooLarge)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})
}

// FetchAgentFile downloads an agent file by id.
func (c *Client) FetchAgentFile(ctx context.Context, id string) ([]byte, error) {
	u := c.baseURL + "/clients/tool-agent/" + url.PathEscape(id)
	return c.fetch(ctx, SourceAgentFile, u)
}

// FetchToolFile downloads a tool API asset. path may contain slashes; each
// segment is escaped separately.
func (c *Client) FetchToolFile(ctx context.Context, toolID, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("tool API asset for %s has an empty path", toolID)
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := c.baseURL + "/tools/" + url.PathEscape(toolID) + "/" + strings.Join(segments, "/")
	return c.fetch(ctx, SourceToolAPI, u)
}

func (c *Client) fetch(ctx context.Context, source, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	data, err := c.execute(func() ([]byte, error) {
		return c.get(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordFetchBytes(source, int64(len(data)))
	c.logger.Debug().Str("url", u).Int("bytes", len(data)).Msg("Fetched file")
	return data, nil
}

func (c *Client) execute(fn func() ([]byte, error)) ([]byte, error) {
	if c.cb == nil {
		return fn()
	}

	data, err := c.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	return data, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get bearer token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A short excerpt is enough to diagnose server-side errors.
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        u,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	if resp.ContentLength > c.maxSize {
		return nil, fmt.Errorf("GET %s: %w: %d > %d bytes", u, ErrFileTooLarge, resp.ContentLength, c.maxSize)
	}
	// One extra byte tells an exact-size file from an oversized one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", u, err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("GET %s: %w: more than %d bytes", u, ErrFileTooLarge, c.maxSize)
	}
	return data, nil
}

// State returns the circuit breaker state name ("disabled" when off).
func (c *Client) State() string {
	if c.cb == nil {
		return "disabled"
	}
	return stateToString(c.cb.State())
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
