// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/toolagent/internal/metrics"
	"github.com/tomtom215/toolagent/internal/models"
	"github.com/tomtom215/toolagent/internal/platform"
)

// ToolState is a snapshot of one supervised tool.
type ToolState struct {
	ToolID       string    `json:"toolId"`
	Version      string    `json:"version"`
	Running      bool      `json:"running"`
	PID          int       `json:"pid,omitempty"`
	Runs         int       `json:"runs"`
	LastExitCode *int      `json:"lastExitCode,omitempty"`
	LastExitAt   time.Time `json:"lastExitAt,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
}

// ToolService supervises one tool's long-running process. It implements
// suture.Service and is owned by the Manager.
type ToolService struct {
	tool   models.InstalledTool
	layout platform.Layout
	params Resolver
	policy RestartPolicy
	grace  time.Duration
	stdout io.Writer
	stderr io.Writer
	logger zerolog.Logger

	mu    sync.Mutex
	state ToolState
}

// Serve runs the tool, waits for it to exit and starts it again after the
// policy delay. It returns only when ctx is done or the policy gives up.
func (s *ToolService) Serve(ctx context.Context) error {
	s.logger.Info().Strs("args", s.tool.RunCommandArgs).Msg("Supervising tool")

	for attempt := 1; ; attempt++ {
		s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay, ok := s.policy.Next(attempt)
		if !ok {
			s.logger.Error().Int("runs", attempt).Msg("Restart limit reached, giving up on tool")
			return suture.ErrDoNotRestart
		}
		s.logger.Info().Dur("delay", delay).Int("runs", attempt).Msg("Restarting tool after delay")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		metrics.RecordToolRestart(s.tool.ToolID)
	}
}

// runOnce performs one resolve, spawn and wait cycle. Failures are logged
// and recorded in the state; they never end supervision.
func (s *ToolService) runOnce(ctx context.Context) {
	args, err := s.params.Process(s.tool.ToolID, s.tool.RunCommandArgs)
	if err != nil {
		s.recordFailure(fmt.Errorf("resolve run arguments: %w", err))
		return
	}

	cmd := exec.CommandContext(ctx, s.layout.ExecutablePath(s.tool.ToolID), args...)
	cmd.Dir = s.layout.ToolDir(s.tool.ToolID)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	platform.ConfigureProcess(cmd, s.grace)

	if err := cmd.Start(); err != nil {
		s.recordFailure(fmt.Errorf("start: %w", err))
		return
	}

	s.mu.Lock()
	s.state.Running = true
	s.state.PID = cmd.Process.Pid
	s.state.Runs++
	s.mu.Unlock()
	s.logger.Info().Int("pid", cmd.Process.Pid).Msg("Tool started")

	err = cmd.Wait()
	code := cmd.ProcessState.ExitCode()

	s.mu.Lock()
	s.state.Running = false
	s.state.PID = 0
	s.state.LastExitCode = &code
	s.state.LastExitAt = time.Now()
	s.state.LastError = ""
	if err != nil {
		s.state.LastError = err.Error()
	}
	s.mu.Unlock()

	metrics.RecordToolExit(s.tool.ToolID, code)

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		s.logger.Info().Int("exit_code", code).Msg("Tool stopped")
	case err == nil:
		s.logger.Warn().Msg("Tool exited with status 0")
	case errors.As(err, &exitErr):
		s.logger.Warn().Int("exit_code", code).Msg("Tool exited")
	default:
		s.logger.Error().Err(err).Msg("Waiting for tool failed")
	}
}

func (s *ToolService) recordFailure(err error) {
	s.mu.Lock()
	s.state.Running = false
	s.state.PID = 0
	s.state.LastError = err.Error()
	s.mu.Unlock()
	s.logger.Error().Err(err).Msg("Tool could not be started")
}

// State returns a snapshot of the tool's supervision state.
func (s *ToolService) State() ToolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.LastExitCode != nil {
		code := *st.LastExitCode
		st.LastExitCode = &code
	}
	return st
}

// String implements fmt.Stringer for suture logging.
func (s *ToolService) String() string {
	return "tool:" + s.tool.ToolID
}
