// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

/*
Package supervisor provides process supervision for the agent using suture v4.

Every long-running activity of the agent is a suture.Service in one tree:

	RootSupervisor ("toolagent")
	├── BusSupervisor ("bus-layer")
	│   ├── bus.ConnectionManager   ("bus-connection")
	│   └── bus.Listener            ("command-listener")
	├── ToolsSupervisor ("tools-layer")
	│   └── runner.ToolService      ("tool:<toolId>", one per supervised tool)
	└── APISupervisor ("api-layer")
	    ├── services.HTTPServerService ("http-server", if server.listen_addr is set)
	    └── services.StoreGCService    ("store-gc")

The bus layer restarts the listener when its consumer is lost or the
connection closes. The tools layer is owned by runner.Manager, which adds
and removes services on Tools() directly. A tool that exits is restarted by
its own service loop, so suture only sees a tool failure when the restart
policy gives up (suture.ErrDoNotRestart) or the service panics.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(logger),
	    supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
	    return err
	}

	tree.AddBusService(conns)
	tree.AddBusService(listener)
	manager := runner.NewManager(cfg.Runner, tree.Tools(), st, layout, resolver, logger)

	errCh := tree.ServeBackground(ctx)
	if err := manager.Run(ctx); err != nil {
	    return err
	}
	<-errCh

# Configuration

TreeConfig controls restart behavior. Zero values take the defaults from
DefaultTreeConfig:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 15 seconds

ShutdownTimeout has to exceed runner.stop_grace_period; otherwise suture
abandons a tool service before its process group has been killed.

# Debugging Shutdown Issues

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    logger.Warn("service did not stop", "service", svc.Name)
	}
*/
package supervisor
