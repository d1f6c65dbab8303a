// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package params substitutes client placeholders into command-line argument
// templates received with tool-installation commands.
//
// Recognized placeholders:
//
//	${client.serverUrl}           management server base URL
//	${client.sharedSecret}        shared installation secret
//	${client.credentialFilePath}  path of the persisted credential file
//	${client.toolDataPath}        <data_dir>/tools/<toolId>/data
//
// Substitution is textual: a placeholder is replaced wherever it occurs in
// an argument.
package params

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUnresolvedPlaceholder is returned in strict mode when an argument still
// contains a ${...} token after substitution.
var ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

// Placeholder is a substitution token, including the ${ } delimiters.
type Placeholder string

const (
	ServerURL          Placeholder = "${client.serverUrl}"
	SharedSecret       Placeholder = "${client.sharedSecret}"
	CredentialFilePath Placeholder = "${client.credentialFilePath}"
	ToolDataPath       Placeholder = "${client.toolDataPath}"
)

// placeholders is the closed table in a fixed order.
var placeholders = []Placeholder{ServerURL, SharedSecret, CredentialFilePath, ToolDataPath}

// placeholderPattern finds anything that looks like a placeholder. It is only
// used to report leftovers; substitution itself is plain text replacement.
var placeholderPattern = regexp.MustCompile(`\$\{[^}]*\}`)

// Context carries the live values the placeholders resolve to.
type Context struct {
	ServerURL      string
	SharedSecret   string
	CredentialFile string
	// ToolDataDir returns the data directory for a tool id.
	ToolDataDir func(toolID string) string
}

// Resolver substitutes placeholders. It is safe for concurrent use.
type Resolver struct {
	values map[Placeholder]func(toolID string) string
	strict bool
}

// NewResolver builds the closed placeholder table from ctx.
func NewResolver(ctx Context, strict bool) *Resolver {
	credentialFile := ctx.CredentialFile
	if credentialFile != "" {
		if abs, err := filepath.Abs(credentialFile); err == nil {
			credentialFile = abs
		}
	}

	return &Resolver{
		values: map[Placeholder]func(string) string{
			ServerURL:          func(string) string { return ctx.ServerURL },
			SharedSecret:       func(string) string { return ctx.SharedSecret },
			CredentialFilePath: func(string) string { return credentialFile },
			ToolDataPath: func(toolID string) string {
				if ctx.ToolDataDir == nil {
					return ""
				}
				return ctx.ToolDataDir(toolID)
			},
		},
		strict: strict,
	}
}

// Process returns a copy of args with every recognized placeholder replaced.
// The input slice is never modified. In strict mode any remaining ${...}
// token fails the whole call with ErrUnresolvedPlaceholder.
func (r *Resolver) Process(toolID string, args []string) ([]string, error) {
	out := make([]string, len(args))
	var (
		unresolved []string
		replacer   *strings.Replacer
	)

	for i, arg := range args {
		if !strings.Contains(arg, "${") {
			out[i] = arg
			continue
		}
		if replacer == nil {
			replacer = r.replacer(toolID)
		}
		resolved := replacer.Replace(arg)
		if r.strict {
			unresolved = append(unresolved, leftovers(args[i])...)
		}
		out[i] = resolved
	}

	if len(unresolved) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, strings.Join(unresolved, ", "))
	}
	return out, nil
}

// replacer substitutes every table entry in one pass, so a value that
// contains a placeholder is not expanded again.
func (r *Resolver) replacer(toolID string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(placeholders))
	for _, p := range placeholders {
		pairs = append(pairs, string(p), r.values[p](toolID))
	}
	return strings.NewReplacer(pairs...)
}

// leftovers lists the unknown placeholder tokens in the original argument
// once the recognized ones are removed. Scanning the original rather than the
// output keeps substituted values that happen to contain "${" from being
// reported.
func leftovers(arg string) []string {
	return placeholderPattern.FindAllString(stripKnown.Replace(arg), -1)
}

var stripKnown = strings.NewReplacer(
	string(ServerURL), "",
	string(SharedSecret), "",
	string(CredentialFilePath), "",
	string(ToolDataPath), "",
)
