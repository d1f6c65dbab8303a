// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package runner

import (
	"math/rand/v2"
	"time"

	"github.com/tomtom215/toolagent/internal/config"
)

// RestartPolicy decides when a supervised tool is started again after it
// exits. A tool exiting with status 0 is restarted like any other exit.
type RestartPolicy struct {
	// Delay is the fixed wait before every restart.
	Delay time.Duration
	// Jitter adds a random extra wait in [0, Jitter].
	Jitter time.Duration
	// MaxAttempts caps the number of runs; 0 restarts forever.
	MaxAttempts int
}

// PolicyFromConfig builds the policy from runner configuration.
func PolicyFromConfig(cfg config.RunnerConfig) RestartPolicy {
	return RestartPolicy{
		Delay:       cfg.RestartDelay,
		Jitter:      cfg.RestartJitter,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// Next returns the wait before starting run number attempt+1, given that
// attempt runs have completed. ok is false once MaxAttempts is reached.
func (p RestartPolicy) Next(attempt int) (delay time.Duration, ok bool) {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return 0, false
	}
	delay = p.Delay
	if delay < 0 {
		delay = 0
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(p.Jitter) + 1))
	}
	return delay, true
}
