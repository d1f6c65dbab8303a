// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package runner keeps installed tools running. Each tool is a ToolService
// added to a suture supervisor, so a crash-looping tool only ever blocks its
// own goroutine. Children run in their own process group and are
// terminated when supervision stops.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/metrics"
	"github.com/tomtom215/toolagent/internal/models"
	"github.com/tomtom215/toolagent/internal/platform"
)

// Resolver substitutes placeholders in run arguments.
type Resolver interface {
	Process(toolID string, args []string) ([]string, error)
}

// Lister lists installed-tool records.
type Lister interface {
	ListInstalled(ctx context.Context) ([]models.InstalledTool, error)
}

// ServiceHost is the supervisor tool services are added to.
// *suture.Supervisor satisfies it.
type ServiceHost interface {
	Add(service suture.Service) suture.ServiceToken
	RemoveAndWait(id suture.ServiceToken, timeout time.Duration) error
}

type supervised struct {
	token suture.ServiceToken
	svc   *ToolService
}

// Manager owns one ToolService per supervised tool.
type Manager struct {
	host   ServiceHost
	store  Lister
	layout platform.Layout
	params Resolver
	policy RestartPolicy
	grace  time.Duration
	logger zerolog.Logger

	// Child output goes here; defaults to the agent's own streams.
	Stdout io.Writer
	Stderr io.Writer

	mu    sync.Mutex
	tools map[string]supervised
}

// NewManager creates a run manager adding services to host.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewManager(cfg config.RunnerConfig, host ServiceHost, store Lister, layout platform.Layout, params Resolver, logger zerolog.Logger) *Manager {
	grace := cfg.StopGracePeriod
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Manager{
		host:   host,
		store:  store,
		layout: layout,
		params: params,
		policy: PolicyFromConfig(cfg),
		grace:  grace,
		logger: logging.Component(logger, "runner"),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		tools:  make(map[string]supervised),
	}
}

// Run starts supervising every INSTALLED record in the store.
func (m *Manager) Run(ctx context.Context) error {
	tools, err := m.store.ListInstalled(ctx)
	if err != nil {
		return fmt.Errorf("list installed tools: %w", err)
	}
	m.logger.Info().Int("tools", len(tools)).Msg("Resuming supervision of installed tools")

	for i := range tools {
		if err := m.RunNewTool(ctx, tools[i]); err != nil {
			return err
		}
	}
	return nil
}

// RunNewTool starts supervising tool now. A tool that is already supervised
// is stopped first, so there is at most one process per tool.
func (m *Manager) RunNewTool(ctx context.Context, tool models.InstalledTool) error {
	log := m.logger.With().Str("tool_id", tool.ToolID).Str("version", tool.Version).Logger()

	if tool.Status != models.StatusInstalled {
		log.Warn().Str("status", string(tool.Status)).Msg("Tool is not installed, not supervising")
		return nil
	}
	if len(tool.RunCommandArgs) == 0 {
		log.Warn().Msg("Tool has no run command, nothing to supervise")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.tools[tool.ToolID]; ok {
		log.Info().Str("previous_version", prev.svc.tool.Version).Msg("Replacing supervised tool")
		if err := m.removeLocked(tool.ToolID); err != nil {
			log.Warn().Err(err).Msg("Previous tool service did not stop cleanly")
		}
	}

	svc := &ToolService{
		tool: models.InstalledTool{
			ToolID:         tool.ToolID,
			Version:        tool.Version,
			RunCommandArgs: append([]string(nil), tool.RunCommandArgs...),
			Status:         tool.Status,
			InstalledAt:    tool.InstalledAt,
		},
		layout: m.layout,
		params: m.params,
		policy: m.policy,
		grace:  m.grace,
		stdout: m.Stdout,
		stderr: m.Stderr,
		logger: log,
		state:  ToolState{ToolID: tool.ToolID, Version: tool.Version},
	}
	m.tools[tool.ToolID] = supervised{token: m.host.Add(svc), svc: svc}
	metrics.SupervisedTools.Set(float64(len(m.tools)))
	return nil
}

// StopTool stops supervising toolID and waits for its process to exit.
// The installer calls it before replacing a running tool's files. Stopping
// a tool that is not supervised is a no-op.
func (m *Manager) StopTool(toolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tools[toolID]; !ok {
		return nil
	}
	m.logger.Info().Str("tool_id", toolID).Msg("Stopping supervised tool")
	return m.removeLocked(toolID)
}

// removeLocked removes the tool's service. The entry is dropped even when
// the service does not stop in time. Callers hold m.mu.
func (m *Manager) removeLocked(toolID string) error {
	prev := m.tools[toolID]
	delete(m.tools, toolID)
	metrics.SupervisedTools.Set(float64(len(m.tools)))
	if err := m.host.RemoveAndWait(prev.token, m.grace+5*time.Second); err != nil {
		return fmt.Errorf("stop %s: %w", toolID, err)
	}
	return nil
}

// Supervised returns the ids of supervised tools, sorted.
func (m *Manager) Supervised() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.tools))
	for id := range m.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Status returns a snapshot per supervised tool, sorted by tool id.
func (m *Manager) Status() []ToolState {
	m.mu.Lock()
	services := make([]*ToolService, 0, len(m.tools))
	for _, t := range m.tools {
		services = append(services, t.svc)
	}
	m.mu.Unlock()

	states := make([]ToolState, 0, len(services))
	for _, svc := range services {
		states = append(states, svc.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ToolID < states[j].ToolID })
	return states
}
