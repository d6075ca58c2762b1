// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mapping persists correlations between provider session ids (the ids
// external coding-agent CLIs assign to transcripts) and qraftbox client
// session ids (the ids this tool assigns to launched session groups).
//
// BadgerDB is used for local embedded storage with low-latency access. Writes
// are idempotent upserts; a provider id maps to at most one client id at a
// time and may be overwritten as better evidence arrives. Records are never
// deleted by the session core.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
)

// ErrNotFound is returned when no mapping exists for the queried id.
var ErrNotFound = errors.New("mapping not found")

// Key layout. Forward keys carry the full record; reverse keys only the
// provider id, so client→provider lookups stay a single point read.
const (
	fwdPrefix = "map:" // map:<providerSessionID> -> Mapping JSON
	revPrefix = "rev:" // rev:<clientSessionID>   -> providerSessionID
)

// Store is a durable provider-id ↔ client-id index backed by BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide the atomic upsert
// the reconciliation engine relies on.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Config holds options for opening a mapping store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is set.
	Path string

	// InMemory opens a non-persistent database. Useful for testing.
	InMemory bool

	// Logger receives BadgerDB internal logging. Nil disables it.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens (creating if necessary) the mapping store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent mapping store")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create mapping store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open mapping store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens a non-persistent store for testing.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes (or overwrites) the correlation for providerSessionID.
// The write is idempotent: re-asserting an existing correlation leaves the
// record equal except for its UpdatedAt stamp.
func (s *Store) Upsert(providerSessionID, projectPath, worktreeID string, source datatypes.SessionSource, clientSessionID string) error {
	if providerSessionID == "" {
		return errors.New("provider session id is empty")
	}
	if clientSessionID == "" {
		return errors.New("client session id is empty")
	}

	m := datatypes.Mapping{
		ProviderSessionID: providerSessionID,
		ProjectPath:       projectPath,
		WorktreeID:        worktreeID,
		Source:            source,
		ClientSessionID:   clientSessionID,
		UpdatedAt:         time.Now().UTC(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(fwdPrefix+providerSessionID), data); err != nil {
			return err
		}
		return txn.Set([]byte(revPrefix+clientSessionID), []byte(providerSessionID))
	})
}

// Get returns the full mapping record for a provider session id.
func (s *Store) Get(providerSessionID string) (datatypes.Mapping, error) {
	var m datatypes.Mapping
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fwdPrefix + providerSessionID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if err != nil {
		return datatypes.Mapping{}, err
	}
	return m, nil
}

// FindSessionID returns the provider session id recorded for a client
// session group, or ErrNotFound.
func (s *Store) FindSessionID(clientSessionID string) (string, error) {
	var providerID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(revPrefix + clientSessionID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			providerID = string(val)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return providerID, nil
}

// FindClientSessionID returns the client session id recorded for a provider
// session id, or ErrNotFound.
func (s *Store) FindClientSessionID(providerSessionID string) (string, error) {
	m, err := s.Get(providerSessionID)
	if err != nil {
		return "", err
	}
	return m.ClientSessionID, nil
}

// IsQraftBoxOrigin reports whether the provider session is recorded as
// launched by qraftbox. Unknown ids are simply not qraftbox-origin.
func (s *Store) IsQraftBoxOrigin(providerSessionID string) (bool, error) {
	m, err := s.Get(providerSessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return m.Source == datatypes.SourceQraftBox, nil
}
