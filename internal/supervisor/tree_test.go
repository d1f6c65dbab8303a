// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/runner"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitStarted(t *testing.T, svcs ...*mockService) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		all := true
		for _, s := range svcs {
			if s.StartCount() < 1 {
				all = false
			}
		}
		if all {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, s := range svcs {
		if s.StartCount() < 1 {
			t.Errorf("%s was not started", s)
		}
	}
}

func TestSupervisorTreeConstruction(t *testing.T) {
	t.Parallel()

	t.Run("creates hierarchical supervisor tree", func(t *testing.T) {
		t.Parallel()
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{
			FailureThreshold: 5,
			FailureBackoff:   time.Second,
			ShutdownTimeout:  10 * time.Second,
		})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}
		if tree.Root() == nil || tree.Tools() == nil {
			t.Error("root and tools supervisors should not be nil")
		}
	})

	t.Run("applies default values for zero config", func(t *testing.T) {
		t.Parallel()
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}
		if tree.config != DefaultTreeConfig() {
			t.Errorf("config = %+v, want %+v", tree.config, DefaultTreeConfig())
		}
	})

	t.Run("converts configuration section", func(t *testing.T) {
		t.Parallel()
		got := TreeConfigFrom(config.SupervisorConfig{
			FailureThreshold: 3,
			FailureDecay:     10,
			FailureBackoff:   2 * time.Second,
			ShutdownTimeout:  20 * time.Second,
		})
		want := TreeConfig{FailureThreshold: 3, FailureDecay: 10, FailureBackoff: 2 * time.Second, ShutdownTimeout: 20 * time.Second}
		if got != want {
			t.Errorf("TreeConfigFrom() = %+v, want %+v", got, want)
		}
	})
}

func TestDefaultTreeConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultTreeConfig()
	if cfg.ShutdownTimeout <= 10*time.Second {
		t.Errorf("ShutdownTimeout %v must exceed the default tool stop grace period", cfg.ShutdownTimeout)
	}
	if cfg.FailureThreshold != 5 || cfg.FailureDecay != 30 || cfg.FailureBackoff != 15*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestSupervisorTreeLifecycle(t *testing.T) {
	t.Parallel()

	tree, err := NewSupervisorTree(logging.NewSlogLogger(logging.Nop()), TreeConfig{
		FailureBackoff:  100 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	busSvc := newMockService("command-listener")
	toolSvc := newMockService("tool:probe")
	apiSvc := newMockService("http-server")
	tree.AddBusService(busSvc)
	tree.Tools().Add(toolSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	waitStarted(t, busSvc, toolSvc, apiSvc)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not shut down in time")
	}

	report, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatal(err)
	}
	if len(report) != 0 {
		t.Errorf("unstopped services: %v", report)
	}
}

func TestSupervisorTreeFailureIsolation(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	crashing := failing("tool:crashy", 3)
	listener := newMockService("command-listener")
	tree.Tools().Add(crashing)
	tree.AddBusService(listener)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(time.Second)
	for crashing.StartCount() < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if crashing.StartCount() < 4 {
		t.Errorf("crashing tool restarted %d times, want at least 4 starts", crashing.StartCount())
	}
	if listener.StartCount() != 1 {
		t.Errorf("listener started %d times, want exactly 1", listener.StartCount())
	}

	cancel()
	<-errCh
}

func TestSupervisorTreeToolsHostsRunManager(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	var host runner.ServiceHost = tree.Tools()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	defer func() {
		cancel()
		<-errCh
	}()

	svc := newMockService("tool:probe")
	token := host.Add(svc)
	waitStarted(t, svc)

	if err := host.RemoveAndWait(token, time.Second); err != nil {
		t.Errorf("RemoveAndWait() error = %v", err)
	}
}
