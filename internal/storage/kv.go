// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable key-value byte store backing the
// conversation collection.
package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrKeyNotFound is returned by Get for a missing key.
	ErrKeyNotFound = errors.New("key not found")
)

// =============================================================================
// KV INTERFACE
// =============================================================================

// KV is a minimal keyed byte store. The conversation collection lives under a
// single key as one JSON blob.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteKV implements KV on a single-table SQLite database.
type SQLiteKV struct {
	db *sql.DB
}

// Open creates or opens the database at path, creating parent directories as
// needed.
func Open(path string) (*SQLiteKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer; the busy timeout covers the prober/REPL overlap.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteKV{db: db}, nil
}

// Get returns the value for key, or ErrKeyNotFound.
func (s *SQLiteKV) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put stores value under key, replacing any existing value.
func (s *SQLiteKV) Put(key string, value []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteKV) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}

// Close closes the underlying database.
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryKV implements KV on a map. Used in tests and as a fallback when the
// durable store cannot be opened: durability is advisory, not guaranteed.
type MemoryKV struct {
	items map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string) ([]byte, error) {
	value, ok := m.items[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryKV) Put(key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.items[key] = stored
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	delete(m.items, key)
	return nil
}

func (m *MemoryKV) Close() error {
	return nil
}
