// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package bus

import "testing"

func TestIdentityFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		machineID string
		subject   string
		durable   string
	}{
		{"host-42", "machine.host-42.tool-installation", "machine_host-42_tool-installation"},
		{"a.b*c >d", "machine.a_b_c__d.tool-installation", "machine_a_b_c__d_tool-installation"},
		{"", "machine._.tool-installation", "machine___tool-installation"},
		{"Ünïcode", "machine._n_code.tool-installation", "machine__n_code_tool-installation"},
	}
	for _, tt := range tests {
		t.Run(tt.machineID, func(t *testing.T) {
			t.Parallel()
			id := IdentityFor(tt.machineID)
			if id.Subject != tt.subject {
				t.Errorf("Subject = %q, want %q", id.Subject, tt.subject)
			}
			if id.DurableName != tt.durable {
				t.Errorf("DurableName = %q, want %q", id.DurableName, tt.durable)
			}
			if id.DeliverSubject != "_deliver."+tt.subject {
				t.Errorf("DeliverSubject = %q", id.DeliverSubject)
			}
			if id.DeadLetter != "dead-letter."+tt.subject {
				t.Errorf("DeadLetter = %q", id.DeadLetter)
			}
		})
	}
}

func TestIdentityFor_Stable(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"host-42", "7f3c9a1e-0b1d-4c8e-9f2a-123456789abc", "weird id.with dots"} {
		if IdentityFor(id) != IdentityFor(id) {
			t.Errorf("IdentityFor(%q) not stable", id)
		}
	}
}
