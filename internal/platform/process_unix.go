// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

//go:build !windows

package platform

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ConfigureProcess puts cmd in its own process group. When the command's
// context is canceled the whole group receives SIGTERM, and SIGKILL after
// grace if it is still around.
func ConfigureProcess(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		pgid := cmd.Process.Pid
		err := unix.Kill(-pgid, unix.SIGTERM)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		time.AfterFunc(grace, func() {
			_ = unix.Kill(-pgid, unix.SIGKILL)
		})
		return err
	}
	cmd.WaitDelay = grace + time.Second
}
