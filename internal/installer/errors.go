// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package installer

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an installation failure.
type Kind string

const (
	KindInvalid     Kind = "invalid"
	KindFetch       Kind = "fetch"
	KindFilesystem  Kind = "filesystem"
	KindParams      Kind = "params"
	KindInstallExec Kind = "install-exec"
	KindPersistence Kind = "persistence"
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrInvalidCommand = errors.New("invalid installation command")
	ErrFetch          = errors.New("fetch failed")
	ErrFilesystem     = errors.New("filesystem error")
	ErrParams         = errors.New("parameter resolution failed")
	ErrInstallExec    = errors.New("install command failed")
	ErrPersistence    = errors.New("persisting installed tool failed")
)

var kindSentinels = map[Kind]error{
	KindInvalid:     ErrInvalidCommand,
	KindFetch:       ErrFetch,
	KindFilesystem:  ErrFilesystem,
	KindParams:      ErrParams,
	KindInstallExec: ErrInstallExec,
	KindPersistence: ErrPersistence,
}

// Error is returned by Service.Install for every failure.
type Error struct {
	Kind   Kind
	ToolID string
	Err    error

	// Set for KindInstallExec.
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "install %s: %s: %v", e.ToolID, e.Kind, e.Err)
	if e.Kind == KindInstallExec {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
		if s := strings.TrimSpace(e.Stdout); s != "" {
			fmt.Fprintf(&b, "\nstdout: %s", s)
		}
		if s := strings.TrimSpace(e.Stderr); s != "" {
			fmt.Fprintf(&b, "\nstderr: %s", s)
		}
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		return []error{sentinel, e.Err}
	}
	return []error{e.Err}
}

func newError(kind Kind, toolID string, err error) *Error {
	return &Error{Kind: kind, ToolID: toolID, Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}
