// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package services

import (
	"context"
	"errors"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/toolagent/internal/store"
)

// GarbageCollector matches *store.Store.
type GarbageCollector interface {
	GCLoop(ctx context.Context, interval time.Duration) error
}

// StoreGCService runs value-log garbage collection of the installed-tool
// store in the background.
type StoreGCService struct {
	gc       GarbageCollector
	interval time.Duration
}

// NewStoreGCService creates the collector service. A non-positive interval
// is replaced by 10 minutes.
func NewStoreGCService(gc GarbageCollector, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreGCService{gc: gc, interval: interval}
}

// Serve implements suture.Service. A closed store ends the service
// without a restart.
func (s *StoreGCService) Serve(ctx context.Context) error {
	err := s.gc.GCLoop(ctx, s.interval)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, store.ErrClosed):
		return suture.ErrDoNotRestart
	}
	return err
}

// String implements fmt.Stringer for suture logging.
func (s *StoreGCService) String() string {
	return "store-gc"
}
