// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package models defines the data structures shared by the bus listener,
// installer, store and runner: the tool-installation command received over
// the bus and the installed-tool record persisted after a successful install.
//
// JSON field names are lowerCamelCase on the wire and in the store.
package models
