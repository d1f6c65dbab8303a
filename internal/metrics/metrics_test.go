// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordBusMessage(t *testing.T) {
	before := testutil.ToFloat64(BusMessages.WithLabelValues(OutcomeDropped))
	RecordBusMessage(OutcomeDropped)
	after := testutil.ToFloat64(BusMessages.WithLabelValues(OutcomeDropped))

	if after-before != 1 {
		t.Errorf("dropped counter delta = %v, want 1", after-before)
	}
}

func TestRecordBusConnectAttempt(t *testing.T) {
	SetBusConnected(false)
	failBefore := testutil.ToFloat64(BusConnectAttempts.WithLabelValues("failure"))

	RecordBusConnectAttempt(errors.New("dial tcp: connection refused"))
	if got := testutil.ToFloat64(BusConnectAttempts.WithLabelValues("failure")) - failBefore; got != 1 {
		t.Errorf("failure delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(BusConnected); got != 0 {
		t.Errorf("BusConnected = %v after failure, want 0", got)
	}

	RecordBusConnectAttempt(nil)
	if got := testutil.ToFloat64(BusConnected); got != 1 {
		t.Errorf("BusConnected = %v after success, want 1", got)
	}
}

func TestRecordInstall(t *testing.T) {
	before := testutil.ToFloat64(Installs.WithLabelValues("failure", "fetch"))
	RecordInstall("fetch", 2*time.Second, errors.New("404"))
	if got := testutil.ToFloat64(Installs.WithLabelValues("failure", "fetch")) - before; got != 1 {
		t.Errorf("failure/fetch delta = %v, want 1", got)
	}
}

func TestRecordToolExit(t *testing.T) {
	before := testutil.ToFloat64(ToolExits.WithLabelValues("metrics-test-tool", "137"))
	RecordToolExit("metrics-test-tool", 137)
	if got := testutil.ToFloat64(ToolExits.WithLabelValues("metrics-test-tool", "137")) - before; got != 1 {
		t.Errorf("exit delta = %v, want 1", got)
	}
}
