// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

/*
Package bus connects the agent to the NATS JetStream command bus and turns
delivered tool-installation commands into calls on the installer.

# Components

  - ConnectionManager: owns the single *nats.Conn. The URL carries the bearer
    token from the credential provider and the machine id is the client name.
    Connection attempts are retried with a fixed delay; when the client gives
    up reconnecting the manager reconnects with a fresh token.
  - Listener: binds a durable push consumer derived from the machine id and
    processes one message at a time. It is the only place that decides
    between acknowledge and redeliver.
  - StreamInitializer: optional create-or-update of the command stream.
  - DeadLetterPublisher: forwards undecodable payloads to a per-machine
    dead-letter subject before they are dropped.

# Delivery semantics

Delivery is at-least-once. A message is acknowledged only after the installer
returns nil; failed installations are negatively acknowledged with a delay so
JetStream redelivers them. Poison messages are dead-lettered and acknowledged
so they cannot block the subject.

# Consumer identity

IdentityFor is a pure function of the machine id, so a restarted agent
reattaches to the same server-side consumer:

	id := bus.IdentityFor("host-42")
	// id.Subject     == "machine.host-42.tool-installation"
	// id.DurableName == "machine_host-42_tool-installation"
*/
package bus
