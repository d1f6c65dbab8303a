// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/toolagent/internal/platform"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/toolagent/config.yaml",
	"/etc/toolagent/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			DataDir:         platform.DefaultDataDir(),
			StoreGCInterval: 10 * time.Minute,
		},
		Bus: BusConfig{
			URL:                   "",
			TokenQueryParam:       "authorization",
			StreamName:            "TOOL_INSTALLATION",
			EnsureStream:          false,
			ConnectRetryAttempts:  1000,
			ConnectRetryDelay:     5 * time.Second,
			MaxReconnects:         60,
			ReconnectWait:         2 * time.Second,
			InactiveThreshold:     60 * time.Second,
			AckWait:               10 * time.Minute,
			IdleHeartbeat:         5 * time.Second,
			RedeliveryDelay:       10 * time.Second,
			ConsumerCheckInterval: 30 * time.Second,
			DeadLetterEnabled:     true,
		},
		API: APIConfig{
			BaseURL:               "",
			RequestTimeout:        5 * time.Minute,
			RequestsPerSecond:     5,
			Burst:                 10,
			CircuitBreakerEnabled: true,
			MaxFileBytes:          512 << 20,
		},
		Credentials: CredentialsConfig{
			MachineIDFile:  "/etc/toolagent/machine-id",
			TokenFile:      "/etc/toolagent/token",
			RefreshSkew:    time.Minute,
			CredentialFile: "/etc/toolagent/credentials.enc",
		},
		Installer: InstallerConfig{
			InstallTimeout: 10 * time.Minute,
			MaxOutputBytes: 1 << 20,
		},
		Runner: RunnerConfig{
			RestartDelay:    5 * time.Second,
			RestartJitter:   0,
			MaxAttempts:     0,
			StopGracePeriod: 10 * time.Second,
		},
		Params: ParamsConfig{
			Strict: true,
		},
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:9465",
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  15 * time.Second,
		},
	}
}

// Load loads configuration using Koanf with layered sources:
//  1. Built-in defaults
//  2. Config file (CONFIG_PATH or the first of DefaultConfigPaths that exists)
//  3. Environment variables (explicit mapping, see envTransformFunc)
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the path of the config file to load, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Agent
	"toolagent_data_dir":          "agent.data_dir",
	"toolagent_store_gc_interval": "agent.store_gc_interval",

	// Bus
	"bus_url":                     "bus.url",
	"bus_token_query_param":       "bus.token_query_param",
	"bus_user":                    "bus.user",
	"bus_password":                "bus.password",
	"bus_stream_name":             "bus.stream_name",
	"bus_ensure_stream":           "bus.ensure_stream",
	"bus_connect_retry_attempts":  "bus.connect_retry_attempts",
	"bus_connect_retry_delay":     "bus.connect_retry_delay",
	"bus_max_reconnects":          "bus.max_reconnects",
	"bus_reconnect_wait":          "bus.reconnect_wait",
	"bus_inactive_threshold":      "bus.inactive_threshold",
	"bus_ack_wait":                "bus.ack_wait",
	"bus_idle_heartbeat":          "bus.idle_heartbeat",
	"bus_redelivery_delay":        "bus.redelivery_delay",
	"bus_consumer_check_interval": "bus.consumer_check_interval",
	"bus_dead_letter_enabled":     "bus.dead_letter_enabled",

	// File-fetch API
	"api_base_url":                "api.base_url",
	"api_request_timeout":         "api.request_timeout",
	"api_requests_per_second":     "api.requests_per_second",
	"api_burst":                   "api.burst",
	"api_circuit_breaker_enabled": "api.circuit_breaker_enabled",
	"api_max_file_bytes":          "api.max_file_bytes",

	// Credentials
	"machine_id":         "credentials.machine_id",
	"machine_id_file":    "credentials.machine_id_file",
	"token_file":         "credentials.token_file",
	"token_refresh_skew": "credentials.refresh_skew",
	"shared_secret":      "credentials.shared_secret",
	"credential_file":    "credentials.credential_file",

	// Installer
	"install_timeout":          "installer.install_timeout",
	"install_max_output_bytes": "installer.max_output_bytes",

	// Runner
	"restart_delay":        "runner.restart_delay",
	"restart_jitter":       "runner.restart_jitter",
	"restart_max_attempts": "runner.max_attempts",
	"stop_grace_period":    "runner.stop_grace_period",

	// Params
	"params_strict": "params.strict",

	// Local HTTP server
	"http_listen_addr":      "server.listen_addr",
	"http_shutdown_timeout": "server.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor tree
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - TOOLAGENT_DATA_DIR -> agent.data_dir
//   - BUS_URL -> bus.url
//   - RESTART_DELAY -> runner.restart_delay
//
// Unmapped variables return "" and are skipped, so unrelated environment
// variables cannot pollute the configuration.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
