// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package logging provides zerolog-based structured logging for the agent.
//
// The process-wide logger is configured once by main through Setup, which
// returns the zerolog.Logger handle that is passed to every component
// constructor. Components derive a child with Component so every line
// carries a component field.
//
// # Quick Start
//
//	logger := logging.Setup(logging.Config{
//	    Level:  cfg.Logging.Level,
//	    Format: cfg.Logging.Format,
//	})
//	manager := bus.NewConnectionManager(cfg.Bus, creds, logger)
//
// # Configuration
//
// Environment Variables (mapped by internal/config):
//
//	LOG_LEVEL   - Minimum log level: trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - Output format: json, console (default: json)
//	LOG_CALLER  - Include caller file:line: true, false (default: false)
//
// # Correlation IDs
//
// The command listener tags each message with a correlation ID so the
// installer's log lines for one command can be grouped:
//
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	logging.Ctx(ctx).Info().Str("tool_id", cmd.ToolID).Msg("Installing tool")
//
// # Suture Integration
//
// NewSlogLogger bridges zerolog to log/slog for sutureslog, which receives
// supervisor events (service failures, backoff, restarts).
package logging
