// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

//go:build windows

package platform

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

// ConfigureProcess starts cmd in a new process group. Windows has no
// SIGTERM, so cancellation kills the process and grace only bounds how long
// Wait keeps its output pipes open.
func ConfigureProcess(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	cmd.WaitDelay = grace
}
