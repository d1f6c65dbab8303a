// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package bus

import "errors"

// ErrNotConnected is returned when no bus connection has been established yet.
var ErrNotConnected = errors.New("bus not connected")

// ErrConsumerLost is returned by Listen when the durable consumer disappears,
// for example after the server reclaimed it as inactive.
var ErrConsumerLost = errors.New("durable consumer lost")

// ErrInvalidConfig is returned when bus configuration is invalid.
var ErrInvalidConfig = errors.New("invalid bus configuration")
