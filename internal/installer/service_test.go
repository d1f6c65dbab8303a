// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/models"
	"github.com/tomtom215/toolagent/internal/params"
	"github.com/tomtom215/toolagent/internal/platform"
	"github.com/tomtom215/toolagent/internal/store"
)

type fakeFetcher struct {
	mu         sync.Mutex
	agentFiles map[string]string
	toolFiles  map[string]string
	failOn     string
	calls      int
}

func (f *fakeFetcher) FetchAgentFile(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if id == f.failOn {
		return nil, errors.New("GET: unexpected status 503")
	}
	data, ok := f.agentFiles[id]
	if !ok {
		return nil, errors.New("GET: unexpected status 404")
	}
	return []byte(data), nil
}

func (f *fakeFetcher) FetchToolFile(_ context.Context, toolID, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key := toolID + "/" + path
	if key == f.failOn {
		return nil, errors.New("GET: unexpected status 503")
	}
	data, ok := f.toolFiles[key]
	if !ok {
		return nil, errors.New("GET: unexpected status 404")
	}
	return []byte(data), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRunner struct {
	mu     sync.Mutex
	tools  []models.InstalledTool
	stops  []string
	err    error
	onStop func(toolID string)
}

func (r *fakeRunner) StopTool(toolID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, toolID)
	if r.onStop != nil {
		r.onStop(toolID)
	}
	return nil
}

func (r *fakeRunner) RunNewTool(_ context.Context, tool models.InstalledTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, tool)
	return r.err
}

type failingStore struct{}

func (failingStore) Upsert(context.Context, *models.InstalledTool) error {
	return errors.New("disk full")
}

type fixture struct {
	svc     *Service
	layout  platform.Layout
	fetcher *fakeFetcher
	store   *store.Store
	runner  *fakeRunner
}

func newFixture(t *testing.T, cfg config.InstallerConfig) *fixture {
	t.Helper()

	layout, err := platform.NewLayout(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.OpenInMemory(logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fetcher := &fakeFetcher{
		agentFiles: map[string]string{
			"probe":   "probe-binary",
			"probe-1": "probe.conf contents",
		},
		toolFiles: map[string]string{
			"probe/rules/latest": "rules contents",
		},
	}
	resolver := params.NewResolver(params.Context{
		ServerURL:      "https://mgmt.example.com",
		SharedSecret:   "s3cret",
		CredentialFile: "/etc/toolagent/credentials.enc",
		ToolDataDir:    layout.ToolDataDir,
	}, true)

	svc := NewService(cfg, layout, fetcher, st, resolver, logging.Nop())
	r := &fakeRunner{}
	svc.SetRunner(r)

	return &fixture{svc: svc, layout: layout, fetcher: fetcher, store: st, runner: r}
}

func probeCommand(version string) *models.ToolInstallationCommand {
	return &models.ToolInstallationCommand{
		ToolID:         "probe",
		Version:        version,
		RunCommandArgs: []string{"--server", "${client.serverUrl}"},
		Assets: []models.Asset{
			{ID: "probe-1", LocalFilename: "probe.conf", Source: models.SourceArtifactory},
			{ID: "rules", LocalFilename: "rules.yaml", Source: models.SourceToolAPI, Path: "rules/latest"},
		},
	}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestInstall_NoInstallStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.InstallerConfig{})
	if err := f.svc.Install(context.Background(), probeCommand("1.0")); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	data, err := os.ReadFile(f.layout.ExecutablePath("probe"))
	if err != nil || string(data) != "probe-binary" {
		t.Fatalf("executable = %q, %v", data, err)
	}
	if data, _ := os.ReadFile(f.layout.AssetPath("probe", "rules.yaml")); string(data) != "rules contents" {
		t.Errorf("rules.yaml = %q", data)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(f.layout.AssetPath("probe", "probe.conf"))
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o755 {
			t.Errorf("asset mode = %v, want 0755", info.Mode().Perm())
		}
	}

	rec, err := f.store.Get(context.Background(), "probe")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Version != "1.0" || rec.Status != models.StatusInstalled {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.RunCommandArgs) != 2 || rec.RunCommandArgs[1] != "${client.serverUrl}" {
		t.Errorf("run args must be stored unresolved, got %v", rec.RunCommandArgs)
	}

	if len(f.runner.tools) != 1 || f.runner.tools[0].ToolID != "probe" {
		t.Errorf("runner hand-off = %+v", f.runner.tools)
	}
}

func TestInstall_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.InstallerConfig{})
	ctx := context.Background()

	if err := f.svc.Install(ctx, probeCommand("1.0")); err != nil {
		t.Fatal(err)
	}
	first := dirNames(t, f.layout.ToolDir("probe"))

	if err := f.svc.Install(ctx, probeCommand("1.1")); err != nil {
		t.Fatal(err)
	}
	second := dirNames(t, f.layout.ToolDir("probe"))

	if strings.Join(first, ",") != strings.Join(second, ",") {
		t.Errorf("directory changed between installs: %v -> %v", first, second)
	}
	want := []string{"data", "probe.conf", platform.ExecutableName("probe"), "rules.yaml"}
	sort.Strings(want)
	if strings.Join(second, ",") != strings.Join(want, ",") {
		t.Errorf("tool dir = %v, want %v", second, want)
	}

	all, err := f.store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Version != "1.1" {
		t.Errorf("store = %+v, want one record at 1.1", all)
	}
}

func TestInstall_StopsRunningVersionBeforeWriting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.InstallerConfig{})
	ctx := context.Background()
	exe := f.layout.ExecutablePath("probe")

	var seen []string
	f.runner.onStop = func(string) {
		data, err := os.ReadFile(exe)
		if err != nil {
			seen = append(seen, "<missing>")
			return
		}
		seen = append(seen, string(data))
	}

	if err := f.svc.Install(ctx, probeCommand("1.0")); err != nil {
		t.Fatal(err)
	}
	f.fetcher.mu.Lock()
	f.fetcher.agentFiles["probe"] = "probe-binary-v2"
	f.fetcher.mu.Unlock()
	if err := f.svc.Install(ctx, probeCommand("2.0")); err != nil {
		t.Fatal(err)
	}

	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	if len(f.runner.stops) != 2 || len(f.runner.tools) != 2 {
		t.Fatalf("stops = %v, hand-offs = %d, want 2 each", f.runner.stops, len(f.runner.tools))
	}
	if seen[1] != "probe-binary" {
		t.Errorf("executable at stop time = %q, want the previous version", seen[1])
	}
	got, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "probe-binary-v2" {
		t.Errorf("executable after install = %q", got)
	}
}

func TestInstall_FetchFailureDoesNotStopRunningVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.InstallerConfig{})
	f.fetcher.failOn = "probe"

	if err := f.svc.Install(context.Background(), probeCommand("1.0")); !errors.Is(err, ErrFetch) {
		t.Fatalf("error = %v, want ErrFetch", err)
	}
	if len(f.runner.stops) != 0 {
		t.Errorf("stops = %v, want none when nothing is replaced", f.runner.stops)
	}
}

func TestInstall_ToolAPIAssetWithoutPath(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", "   "} {
		f := newFixture(t, config.InstallerConfig{})
		cmd := probeCommand("1.0")
		cmd.Assets[1].Path = path

		err := f.svc.Install(context.Background(), cmd)
		if !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("path %q: error = %v, want ErrInvalidCommand", path, err)
		}
		if f.fetcher.callCount() != 0 {
			t.Error("nothing may be fetched for an invalid command")
		}
		if _, err := os.Stat(f.layout.ToolDir("probe")); !os.IsNotExist(err) {
			t.Error("tool directory must not be created for an invalid command")
		}
		if _, err := f.store.Get(context.Background(), "probe"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("record persisted for invalid command: %v", err)
		}
	}
}

func TestInstall_InvalidCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*models.ToolInstallationCommand)
	}{
		{"missing tool id", func(c *models.ToolInstallationCommand) { c.ToolID = "" }},
		{"tool id with separator", func(c *models.ToolInstallationCommand) { c.ToolID = "../etc" }},
		{"missing version", func(c *models.ToolInstallationCommand) { c.Version = "" }},
		{"asset escapes directory", func(c *models.ToolInstallationCommand) { c.Assets[0].LocalFilename = "../x" }},
		{"asset shadows executable", func(c *models.ToolInstallationCommand) {
			c.Assets[0].LocalFilename = platform.ExecutableName("probe")
		}},
		{"asset shadows data dir", func(c *models.ToolInstallationCommand) { c.Assets[0].LocalFilename = "data" }},
		{"duplicate asset filename", func(c *models.ToolInstallationCommand) { c.Assets[1].LocalFilename = "probe.conf" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, config.InstallerConfig{})
			cmd := probeCommand("1.0")
			tt.mutate(cmd)
			if err := f.svc.Install(context.Background(), cmd); !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("error = %v, want ErrInvalidCommand", err)
			}
			if KindOf(f.svc.Install(context.Background(), cmd)) != KindInvalid {
				t.Error("KindOf() should be invalid")
			}
		})
	}

	f := newFixture(t, config.InstallerConfig{})
	if err := f.svc.Install(context.Background(), nil); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("nil command error = %v", err)
	}
}

func TestInstall_FetchFailureWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.InstallerConfig{})
	f.fetcher.failOn = "probe/rules/latest"

	err := f.svc.Install(context.Background(), probeCommand("1.0"))
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("error = %v, want ErrFetch", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should carry the status: %v", err)
	}
	if _, err := os.Stat(f.layout.ExecutablePath("probe")); !os.IsNotExist(err) {
		t.Error("main executable written despite failed asset fetch")
	}
	if _, err := f.store.Get(context.Background(), "probe"); !errors.Is(err, store.ErrNotFound) {
		t.Error("record persisted after failed fetch")
	}
	if len(f.runner.tools) != 0 {
		t.Error("runner called after failed fetch")
	}
}

func TestInstall_UnresolvedPlaceholder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.InstallerConfig{})
	cmd := probeCommand("1.0")
	cmd.InstallationCommandArgs = []string{"install", "--token", "${client.unknown}"}

	err := f.svc.Install(context.Background(), cmd)
	if !errors.Is(err, ErrParams) || !errors.Is(err, params.ErrUnresolvedPlaceholder) {
		t.Fatalf("error = %v, want ErrParams wrapping ErrUnresolvedPlaceholder", err)
	}
	if f.fetcher.callCount() != 0 {
		t.Error("files fetched despite unresolvable install arguments")
	}
}

func TestInstall_PersistenceFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.InstallerConfig{})
	svc := NewService(config.InstallerConfig{}, f.layout, f.fetcher, failingStore{}, params.NewResolver(params.Context{}, true), logging.Nop())
	r := &fakeRunner{}
	svc.SetRunner(r)

	err := svc.Install(context.Background(), probeCommand("1.0"))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("error = %v, want ErrPersistence", err)
	}
	if len(r.tools) != 0 {
		t.Error("runner must not be called when persistence fails")
	}
}

func TestInstall_HandOffFailureIsNotAnInstallFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.InstallerConfig{})
	f.runner.err = errors.New("supervisor stopped")

	if err := f.svc.Install(context.Background(), probeCommand("1.0")); err != nil {
		t.Fatalf("Install() error = %v, want nil", err)
	}
	if _, err := f.store.Get(context.Background(), "probe"); err != nil {
		t.Errorf("record missing: %v", err)
	}
}

func TestInstall_WithoutRunner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.InstallerConfig{})
	f.svc.SetRunner(nil)
	if err := f.svc.Install(context.Background(), probeCommand("1.0")); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
}

// The install-step tests execute freshly written scripts. They are not
// parallel so no concurrent fork can hold a write descriptor on a script
// while it is executed.

func scriptCommand(script string, args ...string) (*models.ToolInstallationCommand, map[string]string) {
	cmd := &models.ToolInstallationCommand{
		ToolID:                  "probe",
		Version:                 "2.0",
		InstallationCommandArgs: args,
		RunCommandArgs:          []string{"run"},
	}
	return cmd, map[string]string{"probe": "#!/bin/sh\n" + script + "\n"}
}

func TestInstall_InstallStepResolvesArguments(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	f := newFixture(t, config.InstallerConfig{InstallTimeout: 10 * time.Second})
	cmd, files := scriptCommand(`printf '%s\n' "$@" > installed.txt`,
		"install", "--secret=${client.sharedSecret}", "--data", "${client.toolDataPath}")
	f.fetcher.agentFiles = files

	if err := f.svc.Install(context.Background(), cmd); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	out, err := os.ReadFile(filepath.Join(f.layout.ToolDir("probe"), "installed.txt"))
	if err != nil {
		t.Fatalf("install step did not run in the tool directory: %v", err)
	}
	want := "install\n--secret=s3cret\n--data\n" + f.layout.ToolDataDir("probe") + "\n"
	if string(out) != want {
		t.Errorf("install args = %q, want %q", out, want)
	}
}

func TestInstall_InstallStepFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	f := newFixture(t, config.InstallerConfig{InstallTimeout: 10 * time.Second})
	cmd, files := scriptCommand(`echo "checking"; echo "license server unreachable" >&2; exit 3`, "install")
	f.fetcher.agentFiles = files

	err := f.svc.Install(context.Background(), cmd)
	if !errors.Is(err, ErrInstallExec) {
		t.Fatalf("error = %v, want ErrInstallExec", err)
	}
	var ie *Error
	if !errors.As(err, &ie) {
		t.Fatal("expected *Error")
	}
	if ie.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", ie.ExitCode)
	}
	if !strings.Contains(ie.Stdout, "checking") || !strings.Contains(ie.Stderr, "license server unreachable") {
		t.Errorf("captured output stdout=%q stderr=%q", ie.Stdout, ie.Stderr)
	}
	if !strings.Contains(err.Error(), "license server unreachable") {
		t.Errorf("error text should include stderr: %v", err)
	}
	if _, err := f.store.Get(context.Background(), "probe"); !errors.Is(err, store.ErrNotFound) {
		t.Error("record persisted after failed install step")
	}
	if len(f.runner.tools) != 0 {
		t.Error("runner called after failed install step")
	}
}

func TestInstall_InstallStepTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	f := newFixture(t, config.InstallerConfig{InstallTimeout: 200 * time.Millisecond})
	cmd, files := scriptCommand(`sleep 30`, "install")
	f.fetcher.agentFiles = files

	start := time.Now()
	err := f.svc.Install(context.Background(), cmd)
	if !errors.Is(err, ErrInstallExec) || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("error = %v, want timed out install-exec error", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestLimitWriter(t *testing.T) {
	t.Parallel()

	lw := &limitWriter{limit: 5}
	for _, chunk := range []string{"abc", "defgh", "ij"} {
		n, err := lw.Write([]byte(chunk))
		if err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	if got := lw.String(); got != "abcde"+truncatedMarker {
		t.Errorf("String() = %q", got)
	}

	small := &limitWriter{limit: 10}
	_, _ = small.Write([]byte("ok"))
	if small.String() != "ok" {
		t.Errorf("String() = %q", small.String())
	}
}
