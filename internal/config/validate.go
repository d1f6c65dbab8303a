// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Agent.DataDir) == "" {
		return fmt.Errorf("TOOLAGENT_DATA_DIR is required")
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateCredentials(); err != nil {
		return err
	}
	if err := c.validateInstaller(); err != nil {
		return err
	}
	if err := c.validateRunner(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBus() error {
	if c.Bus.URL == "" {
		return fmt.Errorf("BUS_URL is required")
	}
	if err := validateBusURL(c.Bus.URL); err != nil {
		return fmt.Errorf("BUS_URL is invalid: %w", err)
	}
	if c.Bus.StreamName == "" {
		return fmt.Errorf("BUS_STREAM_NAME must not be empty")
	}
	if c.Bus.ConnectRetryAttempts < 1 {
		return fmt.Errorf("BUS_CONNECT_RETRY_ATTEMPTS must be at least 1, got %d", c.Bus.ConnectRetryAttempts)
	}
	if c.Bus.ConnectRetryDelay <= 0 {
		return fmt.Errorf("BUS_CONNECT_RETRY_DELAY must be positive, got %v", c.Bus.ConnectRetryDelay)
	}
	if c.Bus.InactiveThreshold <= 0 {
		return fmt.Errorf("BUS_INACTIVE_THRESHOLD must be positive, got %v", c.Bus.InactiveThreshold)
	}
	if c.Bus.AckWait <= 0 {
		return fmt.Errorf("BUS_ACK_WAIT must be positive, got %v", c.Bus.AckWait)
	}
	if c.Bus.RedeliveryDelay < 0 {
		return fmt.Errorf("BUS_REDELIVERY_DELAY must not be negative, got %v", c.Bus.RedeliveryDelay)
	}
	if c.Bus.ConsumerCheckInterval <= 0 {
		return fmt.Errorf("BUS_CONSUMER_CHECK_INTERVAL must be positive, got %v", c.Bus.ConsumerCheckInterval)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if err := validateHTTPURL(c.API.BaseURL); err != nil {
		return fmt.Errorf("API_BASE_URL is invalid: %w", err)
	}
	if c.API.RequestsPerSecond <= 0 {
		return fmt.Errorf("API_REQUESTS_PER_SECOND must be positive, got %v", c.API.RequestsPerSecond)
	}
	if c.API.Burst < 1 {
		return fmt.Errorf("API_BURST must be at least 1, got %d", c.API.Burst)
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("API_REQUEST_TIMEOUT must be positive, got %v", c.API.RequestTimeout)
	}
	if c.API.MaxFileBytes <= 0 {
		return fmt.Errorf("API_MAX_FILE_BYTES must be positive, got %d", c.API.MaxFileBytes)
	}
	return nil
}

func (c *Config) validateCredentials() error {
	if c.Credentials.MachineID == "" && c.Credentials.MachineIDFile == "" {
		return fmt.Errorf("one of MACHINE_ID or MACHINE_ID_FILE is required")
	}
	if c.Credentials.TokenFile == "" {
		return fmt.Errorf("TOKEN_FILE is required")
	}
	return nil
}

func (c *Config) validateInstaller() error {
	if c.Installer.InstallTimeout <= 0 {
		return fmt.Errorf("INSTALL_TIMEOUT must be positive, got %v", c.Installer.InstallTimeout)
	}
	if c.Installer.MaxOutputBytes <= 0 {
		return fmt.Errorf("INSTALL_MAX_OUTPUT_BYTES must be positive, got %d", c.Installer.MaxOutputBytes)
	}
	return nil
}

func (c *Config) validateRunner() error {
	if c.Runner.RestartDelay <= 0 {
		return fmt.Errorf("RESTART_DELAY must be positive, got %v", c.Runner.RestartDelay)
	}
	if c.Runner.RestartJitter < 0 {
		return fmt.Errorf("RESTART_JITTER must not be negative, got %v", c.Runner.RestartJitter)
	}
	if c.Runner.MaxAttempts < 0 {
		return fmt.Errorf("RESTART_MAX_ATTEMPTS must not be negative, got %d", c.Runner.MaxAttempts)
	}
	if c.Runner.StopGracePeriod <= 0 {
		return fmt.Errorf("STOP_GRACE_PERIOD must be positive, got %v", c.Runner.StopGracePeriod)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}
	return nil
}

// validateBusURL accepts nats, tls, ws and wss URLs with a host.
func validateBusURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., bus.example.com/ws/nats)")
	}
	return nil
}

// validateHTTPURL accepts http and https URLs with a host. A path prefix is
// allowed because the fetch endpoints are joined onto it.
func validateHTTPURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required")
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("should not contain query parameters, remove: ?%s", parsedURL.RawQuery)
	}
	return nil
}
