// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package store persists installed-tool records in BadgerDB.
//
// The table maps tool id to models.InstalledTool, JSON-encoded under the key
// "tool:<toolId>". The installer upserts a record after every successful
// installation; the run manager reads INSTALLED records at startup to resume
// supervision. Records are never deleted.
//
// The database lives in <data_dir>/store.
package store
