// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package bus

import "strings"

const commandSuffix = "tool-installation"

// ConsumerIdentity names the server-side objects bound to one machine.
type ConsumerIdentity struct {
	Subject        string
	DurableName    string
	DeliverSubject string
	DeadLetter     string
}

// IdentityFor derives the consumer identity for a machine id.
func IdentityFor(machineID string) ConsumerIdentity {
	id := sanitize(machineID)
	return ConsumerIdentity{
		Subject:        "machine." + id + "." + commandSuffix,
		DurableName:    "machine_" + id + "_" + commandSuffix,
		DeliverSubject: "_deliver.machine." + id + "." + commandSuffix,
		DeadLetter:     "dead-letter.machine." + id + "." + commandSuffix,
	}
}

// CommandSubjects is the subject filter of the command stream.
func CommandSubjects() []string {
	return []string{"machine.*." + commandSuffix}
}

// sanitize keeps [A-Za-z0-9_-]; everything else (including the subject
// separator '.', wildcards and whitespace) becomes '_'.
func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
