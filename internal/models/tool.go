// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ToolStatus is the lifecycle state of an installed tool.
type ToolStatus string

const (
	// StatusInstalled marks a tool eligible for supervision.
	StatusInstalled ToolStatus = "INSTALLED"
	// StatusInstalling marks a tool whose installation is in progress.
	StatusInstalling ToolStatus = "INSTALLING"
	// StatusFailed marks a tool whose last installation failed.
	StatusFailed ToolStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s ToolStatus) Valid() bool {
	switch s {
	case StatusInstalled, StatusInstalling, StatusFailed:
		return true
	}
	return false
}

// InstalledTool is the persisted record of a successfully installed tool.
//
// Records are keyed by ToolID and overwritten whole on every successful
// installation. RunCommandArgs are stored unresolved; placeholders are
// substituted at each launch.
type InstalledTool struct {
	ToolID         string     `json:"toolId"`
	Version        string     `json:"version"`
	RunCommandArgs []string   `json:"runCommandArgs"`
	Status         ToolStatus `json:"status"`
	InstalledAt    time.Time  `json:"installedAt"`
}

// Supervisable reports whether the record should get a supervised process.
func (t *InstalledTool) Supervisable() bool {
	return t.Status == StatusInstalled && len(t.RunCommandArgs) > 0
}

// AssetSource selects which fetch collaborator serves an asset.
type AssetSource string

const (
	// SourceArtifactory assets are fetched like the main executable, by asset id.
	SourceArtifactory AssetSource = "ARTIFACTORY"
	// SourceToolAPI assets are fetched from the tool API by tool id and path.
	SourceToolAPI AssetSource = "TOOL_API"
)

// UnmarshalJSON rejects unknown sources so they surface as decode failures.
func (s *AssetSource) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("asset source: %w", err)
	}
	switch AssetSource(raw) {
	case SourceArtifactory, SourceToolAPI:
		*s = AssetSource(raw)
		return nil
	default:
		return fmt.Errorf("unknown asset source %q", raw)
	}
}

// Asset is an auxiliary file installed next to the main executable.
type Asset struct {
	ID            string      `json:"id" validate:"required"`
	LocalFilename string      `json:"localFilename" validate:"required,pathelem"`
	Source        AssetSource `json:"source" validate:"required,oneof=ARTIFACTORY TOOL_API"`
	Path          string      `json:"path,omitempty" validate:"required_if=Source TOOL_API"`
}

// ToolInstallationCommand is the payload of a tool-installation message.
//
// A nil or empty InstallationCommandArgs means the binary is ready to run
// as delivered and no install step is executed.
type ToolInstallationCommand struct {
	ToolID                  string   `json:"toolId" validate:"required,pathelem"`
	Version                 string   `json:"version" validate:"required"`
	InstallationCommandArgs []string `json:"installationCommandArgs,omitempty"`
	RunCommandArgs          []string `json:"runCommandArgs"`
	Assets                  []Asset  `json:"assets,omitempty" validate:"dive"`
}

// HasInstallStep reports whether an install step must be executed.
func (c *ToolInstallationCommand) HasInstallStep() bool {
	return len(c.InstallationCommandArgs) > 0
}

// DecodeCommand decodes a message payload. Any error means the payload can
// never be processed and should be treated as a poison message.
func DecodeCommand(data []byte) (*ToolInstallationCommand, error) {
	var cmd ToolInstallationCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("decode tool installation command: %w", err)
	}
	return &cmd, nil
}
