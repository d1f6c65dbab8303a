// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package main is the entry point for the toolagent binary.
//
// The agent runs on a managed machine. It listens on the machine's durable
// JetStream consumer for tool installation commands, installs each tool
// under the data directory and keeps its long-running process alive.
//
// # Startup Order
//
//  1. Configuration: defaults, config file, environment (Koanf v2)
//  2. Logging: zerolog, with a slog adapter for suture events
//  3. Filesystem layout and installed-tool store (BadgerDB)
//  4. Credentials, placeholder resolver and the fetch client
//  5. Supervisor tree: bus, tools and api layers
//  6. Run manager resumes every INSTALLED record from the store
//
// # Commands
//
//	toolagent run            run the agent until SIGINT or SIGTERM
//	toolagent tools list     list installed tools via the local API
//	toolagent version        print the build version
//
// # Example
//
//	export BUS_URL=wss://mgmt.example.com/ws/nats
//	export API_BASE_URL=https://mgmt.example.com/api
//	toolagent run
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "toolagent",
		Short:         "Install and supervise tools pushed over the command bus",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCommand(), newToolsCommand(), newVersionCommand())
	return root
}
