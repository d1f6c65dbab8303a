// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package installer executes tool installation commands:
//
//  1. validate the command
//  2. create the tool directory
//  3. download the main executable and every asset
//  4. write them atomically with mode 0755
//  5. run the optional install step with resolved placeholders
//  6. persist an INSTALLED record, overwriting any previous one
//  7. hand the record to the run manager
//
// Every step is an unconditional overwrite, so re-executing a redelivered
// command converges on the same state. Failures are returned as *Error so
// the bus listener can decide to redeliver.
package installer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/metrics"
	"github.com/tomtom215/toolagent/internal/models"
	"github.com/tomtom215/toolagent/internal/platform"
	"github.com/tomtom215/toolagent/internal/validation"
)

// Fetcher downloads tool files.
type Fetcher interface {
	FetchAgentFile(ctx context.Context, id string) ([]byte, error)
	FetchToolFile(ctx context.Context, toolID, path string) ([]byte, error)
}

// Store persists installed-tool records.
type Store interface {
	Upsert(ctx context.Context, tool *models.InstalledTool) error
}

// Resolver substitutes placeholders in argument templates.
type Resolver interface {
	Process(toolID string, args []string) ([]string, error)
}

// Runner supervises installed tools. StopTool is called before a tool's
// files are replaced so no running image is overwritten.
type Runner interface {
	StopTool(toolID string) error
	RunNewTool(ctx context.Context, tool models.InstalledTool) error
}

// Service is the installation pipeline.
type Service struct {
	cfg     config.InstallerConfig
	layout  platform.Layout
	fetcher Fetcher
	store   Store
	params  Resolver
	logger  zerolog.Logger
	now     func() time.Time

	runnerMu sync.RWMutex
	runner   Runner

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService creates the installation pipeline. The runner is attached
// later with SetRunner because it is built inside the supervisor tree.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewService(cfg config.InstallerConfig, layout platform.Layout, fetcher Fetcher, store Store, params Resolver, logger zerolog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		layout:  layout,
		fetcher: fetcher,
		store:   store,
		params:  params,
		logger:  logging.Component(logger, "installer"),
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// SetRunner attaches the run manager used for the hand-off step.
func (s *Service) SetRunner(r Runner) {
	s.runnerMu.Lock()
	defer s.runnerMu.Unlock()
	s.runner = r
}

// lockTool serializes installs of the same tool.
func (s *Service) lockTool(toolID string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[toolID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[toolID] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// fetched is one downloaded file waiting to be written.
type fetched struct {
	path string
	data []byte
}

// Install runs the pipeline for cmd. A nil return means the record is
// persisted; the hand-off to the run manager does not affect the result.
func (s *Service) Install(ctx context.Context, cmd *models.ToolInstallationCommand) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordInstall(string(KindOf(err)), time.Since(start), err)
	}()

	if cmd == nil {
		return newError(KindInvalid, "", errors.New("nil command"))
	}
	if err := s.Validate(cmd); err != nil {
		return newError(KindInvalid, cmd.ToolID, err)
	}

	unlock := s.lockTool(cmd.ToolID)
	defer unlock()

	logCtx := s.logger.With().Str("tool_id", cmd.ToolID).Str("version", cmd.Version)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	log := logCtx.Logger()
	log.Info().Int("assets", len(cmd.Assets)).Bool("install_step", cmd.HasInstallStep()).Msg("Installing tool")

	// Resolve before touching the disk so a bad template fails cleanly.
	var installArgs []string
	if cmd.HasInstallStep() {
		installArgs, err = s.params.Process(cmd.ToolID, cmd.InstallationCommandArgs)
		if err != nil {
			return newError(KindParams, cmd.ToolID, err)
		}
	}

	if err := s.layout.EnsureToolDirs(cmd.ToolID); err != nil {
		return newError(KindFilesystem, cmd.ToolID, err)
	}

	files, err := s.fetchAll(ctx, cmd)
	if err != nil {
		return newError(KindFetch, cmd.ToolID, err)
	}
	s.stopRunning(cmd.ToolID, log)
	for _, f := range files {
		if err := platform.WriteFileAtomic(f.path, f.data, platform.ExecMode); err != nil {
			return newError(KindFilesystem, cmd.ToolID, err)
		}
	}
	log.Debug().Int("files", len(files)).Msg("Tool files written")

	if cmd.HasInstallStep() {
		if err := s.runInstallStep(ctx, cmd.ToolID, installArgs); err != nil {
			return err
		}
		log.Info().Msg("Install step completed")
	}

	record := models.InstalledTool{
		ToolID:         cmd.ToolID,
		Version:        cmd.Version,
		RunCommandArgs: append([]string(nil), cmd.RunCommandArgs...),
		Status:         models.StatusInstalled,
		InstalledAt:    s.now().UTC(),
	}
	if err := s.store.Upsert(ctx, &record); err != nil {
		return newError(KindPersistence, cmd.ToolID, err)
	}
	log.Info().Dur("duration", time.Since(start)).Msg("Tool installed")

	s.handOff(ctx, record, log)
	return nil
}

// Validate checks cmd before anything is written.
func (s *Service) Validate(cmd *models.ToolInstallationCommand) error {
	if err := validation.ValidateStruct(cmd); err != nil {
		return err
	}

	reserved := map[string]string{
		platform.ExecutableName(cmd.ToolID): "main executable",
		"data":                              "tool data directory",
	}
	seen := make(map[string]bool, len(cmd.Assets))
	for i, a := range cmd.Assets {
		if a.Source == models.SourceToolAPI && strings.TrimSpace(a.Path) == "" {
			return fmt.Errorf("asset %d (%s): source TOOL_API requires a path", i, a.ID)
		}
		if what, ok := reserved[a.LocalFilename]; ok {
			return fmt.Errorf("asset %d (%s): localFilename %q collides with the %s", i, a.ID, a.LocalFilename, what)
		}
		if seen[a.LocalFilename] {
			return fmt.Errorf("asset %d (%s): duplicate localFilename %q", i, a.ID, a.LocalFilename)
		}
		seen[a.LocalFilename] = true
	}
	return nil
}

// fetchAll downloads the executable and every asset before anything is
// written, so a failed download leaves the previous install untouched.
func (s *Service) fetchAll(ctx context.Context, cmd *models.ToolInstallationCommand) ([]fetched, error) {
	files := make([]fetched, 0, len(cmd.Assets)+1)

	data, err := s.fetcher.FetchAgentFile(ctx, cmd.ToolID)
	if err != nil {
		return nil, fmt.Errorf("main executable: %w", err)
	}
	files = append(files, fetched{path: s.layout.ExecutablePath(cmd.ToolID), data: data})

	for _, a := range cmd.Assets {
		var data []byte
		switch a.Source {
		case models.SourceArtifactory:
			data, err = s.fetcher.FetchAgentFile(ctx, a.ID)
		case models.SourceToolAPI:
			data, err = s.fetcher.FetchToolFile(ctx, cmd.ToolID, a.Path)
		default:
			err = fmt.Errorf("unknown source %q", a.Source)
		}
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.ID, err)
		}
		files = append(files, fetched{path: s.layout.AssetPath(cmd.ToolID, a.LocalFilename), data: data})
	}
	return files, nil
}

// stopRunning stops a supervised previous version. A failure is only
// logged; the write that follows reports whether the files were replaceable.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func (s *Service) stopRunning(toolID string, log zerolog.Logger) {
	s.runnerMu.RLock()
	r := s.runner
	s.runnerMu.RUnlock()

	if r == nil {
		return
	}
	if err := r.StopTool(toolID); err != nil {
		log.Warn().Err(err).Msg("Previous version did not stop cleanly")
	}
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func (s *Service) handOff(ctx context.Context, record models.InstalledTool, log zerolog.Logger) {
	s.runnerMu.RLock()
	r := s.runner
	s.runnerMu.RUnlock()

	if r == nil {
		log.Warn().Msg("No run manager attached, tool will be supervised after restart")
		return
	}
	if err := r.RunNewTool(ctx, record); err != nil {
		log.Error().Err(err).Msg("Hand-off to run manager failed, tool will be supervised after restart")
	}
}
