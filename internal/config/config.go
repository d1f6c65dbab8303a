// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package config

import "time"

// Config holds all agent configuration, loaded by Load.
type Config struct {
	Agent       AgentConfig       `koanf:"agent"`
	Bus         BusConfig         `koanf:"bus"`
	API         APIConfig         `koanf:"api"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Installer   InstallerConfig   `koanf:"installer"`
	Runner      RunnerConfig      `koanf:"runner"`
	Params      ParamsConfig      `koanf:"params"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
}

// AgentConfig holds the application-support root.
type AgentConfig struct {
	// DataDir is the root for tool directories and the installed-tool store.
	// Default: /var/lib/toolagent
	DataDir string `koanf:"data_dir"`

	// StoreGCInterval is how often the store's value log is garbage
	// collected. Zero disables the collector.
	// Default: 10m
	StoreGCInterval time.Duration `koanf:"store_gc_interval"`
}

// BusConfig configures the NATS JetStream command bus.
type BusConfig struct {
	// URL is the bus endpoint, typically wss://host/ws/nats.
	URL string `koanf:"url"`

	// TokenQueryParam is the query parameter carrying the bearer token.
	// Empty disables embedding the token in the URL.
	// Default: authorization
	TokenQueryParam string `koanf:"token_query_param"`

	// User and Password are optional NATS user credentials.
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// StreamName is the JetStream stream holding installation commands.
	// Default: TOOL_INSTALLATION
	StreamName string `koanf:"stream_name"`

	// EnsureStream creates or updates the stream before binding the consumer.
	// Normally the server side owns the stream.
	// Default: false
	EnsureStream bool `koanf:"ensure_stream"`

	// ConnectRetryAttempts bounds connection attempts per connect cycle.
	// Default: 1000
	ConnectRetryAttempts int `koanf:"connect_retry_attempts"`

	// ConnectRetryDelay is the fixed delay between connection attempts.
	// Default: 5s
	ConnectRetryDelay time.Duration `koanf:"connect_retry_delay"`

	// MaxReconnects is passed to the NATS client. After the client gives up,
	// the connection manager reconnects with a fresh token.
	// Default: 60
	MaxReconnects int `koanf:"max_reconnects"`

	// ReconnectWait is the NATS client delay between reconnect attempts.
	// Default: 2s
	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// InactiveThreshold lets the server reclaim an abandoned consumer.
	// Default: 60s
	InactiveThreshold time.Duration `koanf:"inactive_threshold"`

	// AckWait must exceed the longest expected installation.
	// Default: 10m
	AckWait time.Duration `koanf:"ack_wait"`

	// IdleHeartbeat is the push consumer heartbeat interval.
	// Default: 5s
	IdleHeartbeat time.Duration `koanf:"idle_heartbeat"`

	// RedeliveryDelay is passed to NakWithDelay after a failed install.
	// Zero leaves the message pending until AckWait expires.
	// Default: 10s
	RedeliveryDelay time.Duration `koanf:"redelivery_delay"`

	// ConsumerCheckInterval is how often the listener verifies its consumer.
	// Default: 30s
	ConsumerCheckInterval time.Duration `koanf:"consumer_check_interval"`

	// DeadLetterEnabled publishes undecodable payloads before dropping them.
	// Default: true
	DeadLetterEnabled bool `koanf:"dead_letter_enabled"`
}

// APIConfig configures the HTTP file-fetch collaborators.
type APIConfig struct {
	// BaseURL is the management server. Also substituted for ${client.serverUrl}.
	BaseURL string `koanf:"base_url"`

	// RequestTimeout bounds a single download.
	// Default: 5m
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RequestsPerSecond and Burst rate limit outgoing requests.
	// Default: 5 / 10
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	// CircuitBreakerEnabled wraps fetches in a circuit breaker.
	// Default: true
	CircuitBreakerEnabled bool `koanf:"circuit_breaker_enabled"`

	// MaxFileBytes caps a single downloaded file.
	// Default: 512 MiB
	MaxFileBytes int64 `koanf:"max_file_bytes"`
}

// CredentialsConfig locates the machine identity and tokens on disk.
type CredentialsConfig struct {
	// MachineID overrides MachineIDFile when set.
	MachineID string `koanf:"machine_id"`

	// MachineIDFile holds the machine identifier written at registration.
	// Default: /etc/toolagent/machine-id
	MachineIDFile string `koanf:"machine_id_file"`

	// TokenFile holds the bus/API bearer token. It is re-read when the
	// token's expiry is within RefreshSkew.
	// Default: /etc/toolagent/token
	TokenFile string `koanf:"token_file"`

	// RefreshSkew is how early before expiry the token is re-read.
	// Default: 1m
	RefreshSkew time.Duration `koanf:"refresh_skew"`

	// SharedSecret is substituted for ${client.sharedSecret}.
	SharedSecret string `koanf:"shared_secret"`

	// CredentialFile is substituted for ${client.credentialFilePath}.
	// Default: /etc/toolagent/credentials.enc
	CredentialFile string `koanf:"credential_file"`
}

// InstallerConfig configures the installation pipeline.
type InstallerConfig struct {
	// InstallTimeout bounds the install step child process.
	// Default: 10m
	InstallTimeout time.Duration `koanf:"install_timeout"`

	// MaxOutputBytes caps captured stdout and stderr (each).
	// Default: 1 MiB
	MaxOutputBytes int `koanf:"max_output_bytes"`
}

// RunnerConfig configures tool supervision.
type RunnerConfig struct {
	// RestartDelay is the fixed delay before a tool is restarted.
	// Default: 5s
	RestartDelay time.Duration `koanf:"restart_delay"`

	// RestartJitter adds up to this much random delay.
	// Default: 0
	RestartJitter time.Duration `koanf:"restart_jitter"`

	// MaxAttempts stops supervising after this many launches. 0 = forever.
	// Default: 0
	MaxAttempts int `koanf:"max_attempts"`

	// StopGracePeriod is the delay between SIGTERM and SIGKILL.
	// Default: 10s
	StopGracePeriod time.Duration `koanf:"stop_grace_period"`
}

// ParamsConfig configures placeholder resolution.
type ParamsConfig struct {
	// Strict rejects arguments that still contain ${...} after substitution.
	// Default: true
	Strict bool `koanf:"strict"`
}

// ServerConfig configures the local health and metrics endpoint.
type ServerConfig struct {
	// ListenAddr is the bind address. Empty disables the server.
	// Default: 127.0.0.1:9465
	ListenAddr string `koanf:"listen_addr"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	// Default: false
	Caller bool `koanf:"caller"`
}

// SupervisorConfig holds suture tree settings.
type SupervisorConfig struct {
	// Default: 5
	FailureThreshold float64 `koanf:"failure_threshold"`

	// Default: 30
	FailureDecay float64 `koanf:"failure_decay"`

	// Default: 15s
	FailureBackoff time.Duration `koanf:"failure_backoff"`

	// ShutdownTimeout is the maximum time to wait for a service to stop.
	// Default: 15s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}
