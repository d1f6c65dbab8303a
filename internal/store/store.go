// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/models"
)

// Errors
var (
	// ErrClosed is returned when the store is closed.
	ErrClosed = errors.New("store is closed")

	// ErrNotFound is returned when no record exists for a tool id.
	ErrNotFound = errors.New("installed tool not found")

	// ErrEmptyToolID is returned when a record without a tool id is written.
	ErrEmptyToolID = errors.New("tool id cannot be empty")
)

const prefixTool = "tool:"

// Store is the BadgerDB-backed Installed-Tool Store.
//
// Writes are synchronous (fsync) so a record that Upsert reported as stored
// survives a crash, which is what lets the run manager resume supervision
// after a restart.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger

	// mu serialises writers and guards closed.
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store at path.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Open(path string, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	// The table holds a handful of small records.
	opts.MemTableSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20
	opts.NumCompactors = 2

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logging.Component(logger, "store"),
	}
	s.logger.Info().Str("path", path).Msg("Installed-tool store opened")
	return s, nil
}

// OpenInMemory opens a store that keeps everything in memory. Used by tests
// and the offline CLI commands when no data directory exists.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func OpenInMemory(logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory BadgerDB: %w", err)
	}
	return &Store{db: db, logger: logging.Component(logger, "store")}, nil
}

func toolKey(toolID string) []byte {
	return []byte(prefixTool + toolID)
}

// Upsert writes the record, replacing any existing record with the same ToolID.
func (s *Store) Upsert(ctx context.Context, tool *models.InstalledTool) error {
	if tool == nil || tool.ToolID == "" {
		return ErrEmptyToolID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(tool)
	if err != nil {
		return fmt.Errorf("marshal installed tool: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(toolKey(tool.ToolID), data))
	})
	if err != nil {
		return fmt.Errorf("write installed tool %s: %w", tool.ToolID, err)
	}

	s.logger.Debug().
		Str("tool_id", tool.ToolID).
		Str("version", tool.Version).
		Str("status", string(tool.Status)).
		Msg("Installed tool record stored")
	return nil
}

// Get returns the record for toolID or ErrNotFound.
func (s *Store) Get(ctx context.Context, toolID string) (*models.InstalledTool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var tool models.InstalledTool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(toolKey(toolID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tool)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read installed tool %s: %w", toolID, err)
	}
	return &tool, nil
}

// List returns every record, sorted by ToolID. Records that fail to decode
// are logged and skipped so one corrupt entry cannot block the others.
func (s *Store) List(ctx context.Context) ([]models.InstalledTool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var tools []models.InstalledTool
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixTool)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			var tool models.InstalledTool
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &tool)
			}); err != nil {
				s.logger.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping undecodable installed tool record")
				continue
			}
			tools = append(tools, tool)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate installed tools: %w", err)
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].ToolID < tools[j].ToolID })
	return tools, nil
}

// ListInstalled returns the records whose status is INSTALLED.
func (s *Store) ListInstalled(ctx context.Context) ([]models.InstalledTool, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	installed := all[:0]
	for i := range all {
		if all[i].Status == models.StatusInstalled {
			installed = append(installed, all[i])
		}
	}
	return installed, nil
}

// RunGC triggers BadgerDB value-log garbage collection until nothing is left to rewrite.
func (s *Store) RunGC() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// GCLoop runs RunGC every interval until ctx is cancelled. It is run as a
// supervised service.
func (s *Store) GCLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunGC(); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				s.logger.Warn().Err(err).Msg("Store garbage collection failed")
			}
		}
	}
}

// Close closes the underlying database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	s.logger.Info().Msg("Installed-tool store closed")
	return nil
}
