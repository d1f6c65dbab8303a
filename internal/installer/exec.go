// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/tomtom215/toolagent/internal/platform"
)

const (
	defaultInstallTimeout = 10 * time.Minute
	defaultMaxOutputBytes = 1 << 20
	installStopGrace      = 5 * time.Second
	truncatedMarker       = "\n[output truncated]"
)

// limitWriter keeps the first limit bytes and discards the rest while
// reporting full writes so the child never sees a broken pipe.
type limitWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.buf.Len()
	if remaining <= 0 {
		lw.truncated = lw.truncated || len(p) > 0
		return len(p), nil
	}
	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
		lw.truncated = true
	}
	lw.buf.Write(toWrite)
	return len(p), nil
}

func (lw *limitWriter) String() string {
	if lw.truncated {
		return lw.buf.String() + truncatedMarker
	}
	return lw.buf.String()
}

// runInstallStep executes the tool's own executable with the resolved
// install arguments, from the tool directory.
func (s *Service) runInstallStep(ctx context.Context, toolID string, args []string) error {
	timeout := s.cfg.InstallTimeout
	if timeout <= 0 {
		timeout = defaultInstallTimeout
	}
	limit := s.cfg.MaxOutputBytes
	if limit <= 0 {
		limit = defaultMaxOutputBytes
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.layout.ExecutablePath(toolID), args...)
	cmd.Dir = s.layout.ToolDir(toolID)
	platform.ConfigureProcess(cmd, installStopGrace)

	stdout := &limitWriter{limit: limit}
	stderr := &limitWriter{limit: limit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	ie := newError(KindInstallExec, toolID, err)
	ie.ExitCode = -1
	if cmd.ProcessState != nil {
		ie.ExitCode = cmd.ProcessState.ExitCode()
	}
	ie.Stdout = stdout.String()
	ie.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		ie.Err = fmt.Errorf("timed out after %s: %w", timeout, err)
	case errors.As(err, &exitErr):
		ie.Err = fmt.Errorf("non-zero exit: %w", err)
	default:
		ie.Err = fmt.Errorf("spawn: %w", err)
	}
	return ie
}
