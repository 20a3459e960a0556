// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the authoritative conversation state machine.
package store

import "time"

// =============================================================================
// PERSISTED TYPES
// =============================================================================

// DefaultTitle is the placeholder title a chat carries until its first flush.
const DefaultTitle = "New Chat"

// TitleMaxLen is the display-title truncation length in runes.
const TitleMaxLen = 50

// Message is one turn in a chat. Messages are immutable once finalized; the
// sole exception is the trailing assistant message of an active generation,
// which grows by append-only token concatenation.
type Message struct {
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Images    []string  `json:"images,omitempty"` // ordered base64 blobs
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Chat is a persisted, titled conversation. The JSON shape is kept compatible
// with previously exported chat archives.
type Chat struct {
	ID        string    `json:"id"` // generated once, never reused
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatSummary is the listing view of a chat.
type ChatSummary struct {
	ID           string
	Title        string
	Model        string
	MessageCount int
	UpdatedAt    time.Time
}

// =============================================================================
// GENERATION STATE
// =============================================================================

// State is the generation state of the current chat: idle → generating →
// idle on done/error/cancel. There are no other states.
type State int

const (
	StateIdle State = iota
	StateGenerating
)

func (s State) String() string {
	if s == StateGenerating {
		return "generating"
	}
	return "idle"
}

// =============================================================================
// CHANGE NOTIFICATION
// =============================================================================

// Change identifies which slice of store state a notification refers to.
type Change int

const (
	ChangeChats        Change = iota // chat collection changed
	ChangeMessages                   // current message list changed
	ChangeConnectivity               // isConnected flipped
	ChangeModels                     // model list or selection changed
	ChangeSettings                   // sampling params or toggles changed
)
