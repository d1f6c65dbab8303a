// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/store"
)

type fakeGC struct {
	err      error
	interval time.Duration
}

func (f *fakeGC) GCLoop(_ context.Context, interval time.Duration) error {
	f.interval = interval
	return f.err
}

func TestStoreGCService(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		gcErr   error
		wantErr error
	}{
		{"closed store is not restarted", store.ErrClosed, suture.ErrDoNotRestart},
		{"other errors are restarted", errors.New("boom"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gc := &fakeGC{err: tt.gcErr}
			err := NewStoreGCService(gc, 0).Serve(context.Background())
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Serve() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && !errors.Is(err, tt.gcErr) {
				t.Errorf("Serve() error = %v, want %v", err, tt.gcErr)
			}
			if gc.interval != 10*time.Minute {
				t.Errorf("interval = %v, want default 10m", gc.interval)
			}
		})
	}
}

func TestStoreGCService_RealStore(t *testing.T) {
	t.Parallel()

	st, err := store.Open(t.TempDir(), logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	svc := NewStoreGCService(st, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() error = %v, want DeadlineExceeded", err)
	}
	if svc.String() != "store-gc" {
		t.Errorf("String() = %q", svc.String())
	}
}
