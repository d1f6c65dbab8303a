// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package platform resolves the agent's on-disk layout under the
// application-support root:
//
//	<root>/tools/<toolId>/<toolId>_agent[.exe]
//	<root>/tools/<toolId>/<localFilename>
//	<root>/tools/<toolId>/data/
//	<root>/store/
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	toolsDirName = "tools"
	dataDirName  = "data"
	storeDirName = "store"

	// DirMode is used for every directory the agent creates.
	DirMode os.FileMode = 0o755
)

// DefaultDataDir returns the platform's application-support root.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("ProgramData")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "Toolagent")
	case "darwin":
		return "/Library/Application Support/Toolagent"
	default:
		return "/var/lib/toolagent"
	}
}

// ExecutableName returns the file name of a tool's main executable.
func ExecutableName(toolID string) string {
	name := toolID + "_agent"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

// Layout maps tool ids to paths under Root. It performs no I/O except in
// the Ensure methods.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at an absolute form of root.
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve data dir %q: %w", root, err)
	}
	return Layout{Root: abs}, nil
}

// ToolsDir returns <root>/tools.
func (l Layout) ToolsDir() string {
	return filepath.Join(l.Root, toolsDirName)
}

// ToolDir returns <root>/tools/<toolID>.
func (l Layout) ToolDir(toolID string) string {
	return filepath.Join(l.Root, toolsDirName, toolID)
}

// ToolDataDir returns <root>/tools/<toolID>/data.
func (l Layout) ToolDataDir(toolID string) string {
	return filepath.Join(l.ToolDir(toolID), dataDirName)
}

// ExecutablePath returns the main executable path for toolID.
func (l Layout) ExecutablePath(toolID string) string {
	return filepath.Join(l.ToolDir(toolID), ExecutableName(toolID))
}

// AssetPath returns the path of an asset file for toolID.
func (l Layout) AssetPath(toolID, localFilename string) string {
	return filepath.Join(l.ToolDir(toolID), localFilename)
}

// StoreDir returns <root>/store.
func (l Layout) StoreDir() string {
	return filepath.Join(l.Root, storeDirName)
}

// Ensure creates the root, tools and store directories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Root, l.ToolsDir(), l.StoreDir()} {
		if err := os.MkdirAll(dir, DirMode); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureToolDirs creates the tool directory and its data directory.
func (l Layout) EnsureToolDirs(toolID string) error {
	if err := os.MkdirAll(l.ToolDataDir(toolID), DirMode); err != nil {
		return fmt.Errorf("create tool directory for %s: %w", toolID, err)
	}
	return nil
}
