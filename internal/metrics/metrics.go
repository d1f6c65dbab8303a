// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package metrics defines the agent's Prometheus instruments.
//
// Instruments are registered with the default registry through promauto and
// served by the local API at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bus message outcomes.
const (
	OutcomeAcked     = "acked"
	OutcomeRedeliver = "redeliver"
	OutcomeDropped   = "dropped"
)

var (
	// Bus Metrics
	BusConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolagent_bus_connected",
			Help: "Whether the bus connection is currently established (1) or not (0)",
		},
	)

	BusConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolagent_bus_connect_attempts_total",
			Help: "Total number of bus connection attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	BusMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolagent_bus_messages_total",
			Help: "Total number of command messages handled, by outcome",
		},
		[]string{"outcome"}, // "acked", "redeliver", "dropped"
	)

	BusDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolagent_bus_dead_lettered_total",
			Help: "Total number of undecodable messages published to the dead-letter subject",
		},
	)

	BusConsumerLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolagent_bus_consumer_lost_total",
			Help: "Total number of times the durable consumer was found missing",
		},
	)

	// Installation Metrics
	Installs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolagent_installs_total",
			Help: "Total number of installation attempts",
		},
		[]string{"result", "kind"}, // result: "success", "failure"; kind: error kind or ""
	)

	InstallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toolagent_install_duration_seconds",
			Help:    "Duration of installation attempts in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	FetchBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolagent_fetch_bytes_total",
			Help: "Total bytes downloaded, by source",
		},
		[]string{"source"}, // "agent_file", "tool_api"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "toolagent_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolagent_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolagent_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Supervision Metrics
	ToolRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolagent_tool_restarts_total",
			Help: "Total number of tool process restarts",
		},
		[]string{"tool_id"},
	)

	ToolExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolagent_tool_exits_total",
			Help: "Total number of tool process exits, by exit code",
		},
		[]string{"tool_id", "exit_code"},
	)

	SupervisedTools = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolagent_supervised_tools",
			Help: "Number of tools currently under supervision",
		},
	)

	// Local API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolagent_api_requests_total",
			Help: "Total number of local API requests",
		},
		[]string{"method", "route", "status_code"},
	)
)

// RecordBusMessage counts one handled message.
func RecordBusMessage(outcome string) {
	BusMessages.WithLabelValues(outcome).Inc()
}

// RecordBusConnectAttempt counts a connection attempt and updates the connected gauge.
func RecordBusConnectAttempt(err error) {
	if err != nil {
		BusConnectAttempts.WithLabelValues("failure").Inc()
		return
	}
	BusConnectAttempts.WithLabelValues("success").Inc()
	BusConnected.Set(1)
}

// SetBusConnected updates the connected gauge.
func SetBusConnected(connected bool) {
	if connected {
		BusConnected.Set(1)
		return
	}
	BusConnected.Set(0)
}

// RecordInstall records an installation attempt. kind is empty on success.
func RecordInstall(kind string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	Installs.WithLabelValues(result, kind).Inc()
	InstallDuration.Observe(duration.Seconds())
}

// RecordFetchBytes adds n downloaded bytes for the given source.
func RecordFetchBytes(source string, n int64) {
	FetchBytes.WithLabelValues(source).Add(float64(n))
}

// RecordToolExit records a tool process exit.
func RecordToolExit(toolID string, exitCode int) {
	ToolExits.WithLabelValues(toolID, strconv.Itoa(exitCode)).Inc()
}

// RecordToolRestart records a tool process restart.
func RecordToolRestart(toolID string) {
	ToolRestarts.WithLabelValues(toolID).Inc()
}

// RecordAPIRequest records a local API request.
func RecordAPIRequest(method, route string, statusCode int) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
}
