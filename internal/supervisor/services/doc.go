// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

/*
Package services provides suture.Service wrappers for agent components that
do not follow the Serve(ctx) pattern themselves.

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts the ListenAndServe pattern to Serve
  - A bind failure is returned so suture retries with backoff

Store GC (StoreGCService):
  - Runs the installed-tool store's value-log garbage collection loop
  - Stops without restart once the store is closed

The bus connection manager, command listener and per-tool services
implement suture.Service directly and need no wrapper.

	tree.AddAPIService(services.NewHTTPServerService(cfg.Server, router, logger))
	tree.AddAPIService(services.NewStoreGCService(st, cfg.Agent.StoreGCInterval))
*/
package services
