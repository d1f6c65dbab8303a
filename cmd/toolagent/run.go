// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tomtom215/toolagent/internal/api"
	"github.com/tomtom215/toolagent/internal/bus"
	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/credentials"
	"github.com/tomtom215/toolagent/internal/fetch"
	"github.com/tomtom215/toolagent/internal/installer"
	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/params"
	"github.com/tomtom215/toolagent/internal/platform"
	"github.com/tomtom215/toolagent/internal/runner"
	"github.com/tomtom215/toolagent/internal/store"
	"github.com/tomtom215/toolagent/internal/supervisor"
	"github.com/tomtom215/toolagent/internal/supervisor/services"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.Setup(logging.Config{
				Level:     cfg.Logging.Level,
				Format:    cfg.Logging.Format,
				Caller:    cfg.Logging.Caller,
				Timestamp: true,
				Output:    os.Stderr,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx, cfg, logger)
		},
	}
}

// runAgent wires every component and blocks until ctx is done.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func runAgent(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	logger.Info().Str("version", version).Str("data_dir", cfg.Agent.DataDir).Msg("Starting toolagent")

	layout, err := platform.NewLayout(cfg.Agent.DataDir)
	if err != nil {
		return err
	}
	if err := layout.Ensure(); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}

	st, err := store.Open(layout.StoreDir(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing installed-tool store")
		}
	}()

	creds, err := credentials.NewFileProvider(cfg.Credentials, logger)
	if err != nil {
		return err
	}
	machineID := creds.MachineID()

	resolver := params.NewResolver(params.Context{
		ServerURL:      cfg.API.BaseURL,
		SharedSecret:   cfg.Credentials.SharedSecret,
		CredentialFile: cfg.Credentials.CredentialFile,
		ToolDataDir:    layout.ToolDataDir,
	}, cfg.Params.Strict)

	fetcher, err := fetch.NewClient(cfg.API, creds, logger)
	if err != nil {
		return err
	}

	inst := installer.NewService(cfg.Installer, layout, fetcher, st, resolver, logger)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(logger), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	manager := runner.NewManager(cfg.Runner, tree.Tools(), st, layout, resolver, logger)
	inst.SetRunner(manager)

	conns := bus.NewConnectionManager(cfg.Bus, creds, logger)
	deadLetter := bus.NewDeadLetterPublisher(conns, bus.IdentityFor(machineID).DeadLetter)
	listener := bus.NewListener(cfg.Bus, machineID, conns, inst, deadLetter, logger)
	tree.AddBusService(conns)
	tree.AddBusService(listener)

	if cfg.Server.ListenAddr != "" {
		router := api.NewRouter(api.Dependencies{
			Tools:       st,
			Supervision: manager,
			Bus:         conns,
			Fetch:       fetcher,
			MachineID:   machineID,
			Version:     version,
		}, logger)
		tree.AddAPIService(services.NewHTTPServerService(cfg.Server, router, logger))
	}
	if cfg.Agent.StoreGCInterval > 0 {
		tree.AddAPIService(services.NewStoreGCService(st, cfg.Agent.StoreGCInterval))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info().Str("machine_id", machineID).Str("subject", listener.Identity().Subject).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var runErr error
	if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Resuming installed tools failed")
		runErr = err
		cancel()
	}

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Supervisor tree error")
		if runErr == nil {
			runErr = err
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logger.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logger.Info().Msg("Toolagent stopped")
	return runErr
}
