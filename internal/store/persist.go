// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/jeranaias/lamachat/internal/storage"
)

// chatsKey is the single key under which the chat collection blob lives.
const chatsKey = "chats"

// =============================================================================
// PERSISTENCE ADAPTER
// =============================================================================

// Adapter serializes the chat collection to and from the keyed byte store.
//
// Durability is advisory: Load never fails (missing or corrupt data yields an
// empty collection) and Save failures are logged and swallowed. In-memory
// state stays authoritative for the running session either way.
type Adapter struct {
	kv storage.KV
}

// NewAdapter wraps a key-value store.
func NewAdapter(kv storage.KV) *Adapter {
	return &Adapter{kv: kv}
}

// Load reads the persisted chat collection. Called once at process start.
func (a *Adapter) Load() []Chat {
	data, err := a.kv.Get(chatsKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			log.Printf("PERSIST_LOAD_ERROR | error=%v", err)
		}
		return []Chat{}
	}

	var chats []Chat
	if err := json.Unmarshal(data, &chats); err != nil {
		log.Printf("PERSIST_CORRUPT | error=%v bytes=%d", err, len(data))
		return []Chat{}
	}
	return chats
}

// Save writes the chat collection as one JSON blob. Best effort.
func (a *Adapter) Save(chats []Chat) {
	data, err := json.Marshal(chats)
	if err != nil {
		log.Printf("PERSIST_MARSHAL_ERROR | error=%v", err)
		return
	}
	if err := a.kv.Put(chatsKey, data); err != nil {
		log.Printf("PERSIST_SAVE_ERROR | error=%v", err)
	}
}

// Clear removes the durable record entirely.
func (a *Adapter) Clear() {
	if err := a.kv.Delete(chatsKey); err != nil {
		log.Printf("PERSIST_CLEAR_ERROR | error=%v", err)
	}
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// ExportAll serializes the full chat collection as a pretty-printed JSON
// array, the same shape as the durable record.
func (s *Store) ExportAll() ([]byte, error) {
	s.mu.Lock()
	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, snapshot(c))
	}
	s.mu.Unlock()

	return json.MarshalIndent(out, "", "  ")
}

// ExportFilename names an export file with the current date.
func ExportFilename(now time.Time) string {
	return "lamachat-chats-" + now.Format("2006-01-02") + ".json"
}

// ImportMerge merges an exported archive into the collection as a set union
// keyed by chat id. On id collision the existing chat wins and the imported
// duplicate is dropped; the merge never overwrites. Genuinely new chats are
// inserted at the head. Returns false on an unparseable archive.
func (s *Store) ImportMerge(blob []byte) bool {
	var imported []Chat
	if err := json.Unmarshal(blob, &imported); err != nil {
		log.Printf("IMPORT_ERROR | error=%v", err)
		return false
	}

	s.mu.Lock()
	existing := make(map[string]bool, len(s.chats))
	for _, c := range s.chats {
		existing[c.ID] = true
	}

	var added []*Chat
	for i := range imported {
		c := imported[i]
		if c.ID == "" || existing[c.ID] {
			continue
		}
		existing[c.ID] = true
		added = append(added, &c)
	}
	s.chats = append(added, s.chats...)
	s.persistLocked()
	s.mu.Unlock()

	s.notify(ChangeChats)
	return true
}
