// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package credentials supplies the machine identifier and the bearer token
// minted at device registration. Registration itself happens outside the
// agent; this package only reads its results from disk.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/tomtom215/toolagent/internal/config"
	"github.com/tomtom215/toolagent/internal/logging"
)

var (
	// ErrNoMachineID is returned when no machine identifier is configured or the file is empty.
	ErrNoMachineID = errors.New("machine identifier is not available")

	// ErrNoToken is returned when the token file is missing or empty.
	ErrNoToken = errors.New("bearer token is not available")

	// ErrTokenExpired is returned when the token on disk has already expired.
	ErrTokenExpired = errors.New("bearer token has expired")
)

// Provider supplies the machine identity and a current bearer token.
type Provider interface {
	// MachineID returns the stable machine identifier.
	MachineID() string

	// Token returns a bearer token that is valid at the time of the call.
	Token(ctx context.Context) (string, error)
}

// FileProvider reads the machine id once and the token lazily.
//
// The token is cached and re-read from disk when its JWT expiry is within
// the refresh skew or the file has been modified. Tokens that are not JWTs
// are treated as non-expiring and re-read only on modification.
type FileProvider struct {
	machineID string
	tokenFile string
	skew      time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	token   string
	expiry  time.Time
	modTime time.Time
}

// NewFileProvider reads the machine identifier and prepares token access.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewFileProvider(cfg config.CredentialsConfig, logger zerolog.Logger) (*FileProvider, error) {
	id := strings.TrimSpace(cfg.MachineID)
	if id == "" && cfg.MachineIDFile != "" {
		data, err := os.ReadFile(cfg.MachineIDFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoMachineID, err)
		}
		id = strings.TrimSpace(string(data))
	}
	if id == "" {
		return nil, ErrNoMachineID
	}

	skew := cfg.RefreshSkew
	if skew < 0 {
		skew = 0
	}

	return &FileProvider{
		machineID: id,
		tokenFile: cfg.TokenFile,
		skew:      skew,
		logger:    logging.Component(logger, "credentials"),
		now:       time.Now,
	}, nil
}

// MachineID returns the machine identifier.
func (p *FileProvider) MachineID() string {
	return p.machineID
}

// Token returns the cached token, re-reading the token file when needed.
func (p *FileProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.tokenFile)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}

	if p.token != "" && info.ModTime().Equal(p.modTime) && !p.nearExpiry() {
		return p.token, nil
	}

	if err := p.reload(info.ModTime()); err != nil {
		return "", err
	}

	if !p.expiry.IsZero() && !p.now().Before(p.expiry) {
		return "", fmt.Errorf("%w at %s", ErrTokenExpired, p.expiry.Format(time.RFC3339))
	}
	return p.token, nil
}

// Expiry returns the expiry of the cached token, or zero if unknown.
func (p *FileProvider) Expiry() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expiry
}

func (p *FileProvider) nearExpiry() bool {
	return !p.expiry.IsZero() && !p.now().Add(p.skew).Before(p.expiry)
}

// reload reads the token file (must be called with mu held).
func (p *FileProvider) reload(modTime time.Time) error {
	data, err := os.ReadFile(p.tokenFile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return ErrNoToken
	}

	p.token = token
	p.modTime = modTime
	p.expiry = tokenExpiry(token)

	p.logger.Debug().
		Time("expires_at", p.expiry).
		Msg("Loaded bearer token")
	return nil
}

// tokenExpiry extracts the exp claim without verifying the signature.
// The agent is not the audience that validates the token; it only needs to
// know when to look for a fresh one.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Static is a fixed Provider for tests and local development.
type Static struct {
	ID          string
	BearerToken string
}

// MachineID returns the fixed machine identifier.
func (s Static) MachineID() string { return s.ID }

// Token returns the fixed token.
func (s Static) Token(context.Context) (string, error) {
	if s.BearerToken == "" {
		return "", ErrNoToken
	}
	return s.BearerToken, nil
}
