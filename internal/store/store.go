// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoCurrentChat is returned by mutations that need a selected chat.
	ErrNoCurrentChat = errors.New("no chat selected")

	// ErrGenerationActive is returned when a generation is started while one
	// is already in flight. The surrounding collaborator is expected to
	// prevent this by disabling send while loading; the error marks the
	// precondition violation.
	ErrGenerationActive = errors.New("a generation is already active")
)

// =============================================================================
// STORE
// =============================================================================

// Store is the explicit state container for chats, connectivity, and session
// settings. It is created once at process start and passed by handle to all
// consumers; there is no ambient global.
//
// Chats are mutated only through the transitions below. Every transition that
// touches the persisted collection mirrors it to the adapter before
// returning, so a reader in the same turn always observes the durable state.
type Store struct {
	mu sync.Mutex

	chats   []*Chat
	current *Chat

	state State

	connected     bool
	models        []string
	selectedModel string

	temperature   float64
	contextWindow int

	documents        []string
	webSearchEnabled bool

	adapter *Adapter
	subs    []func(Change)
}

// New creates a store backed by the given adapter and seeds it with the
// persisted chat collection. A nil adapter keeps everything in memory.
func New(adapter *Adapter) *Store {
	s := &Store{
		adapter:       adapter,
		temperature:   0.7,
		contextWindow: 4096,
	}
	if adapter != nil {
		for _, c := range adapter.Load() {
			chat := c
			s.chats = append(s.chats, &chat)
		}
	}
	return s
}

// Subscribe registers a change-notification callback. Callbacks run outside
// the store lock, on the mutating goroutine.
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// notify must be called without the lock held.
func (s *Store) notify(c Change) {
	s.mu.Lock()
	subs := append(([]func(Change))(nil), s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
}

// persistLocked mirrors the chat collection to the adapter. Caller holds the
// lock; failures are the adapter's problem (logged, swallowed).
func (s *Store) persistLocked() {
	if s.adapter == nil {
		return
	}
	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, *c)
	}
	s.adapter.Save(out)
}

// =============================================================================
// CHAT LIFECYCLE
// =============================================================================

// CreateChat allocates a new chat, inserts it at the head of the collection,
// makes it current, and persists.
func (s *Store) CreateChat(title string) Chat {
	if title == "" {
		title = DefaultTitle
	}
	now := time.Now()

	s.mu.Lock()
	chat := &Chat{
		ID:        uuid.New().String(),
		Title:     title,
		Model:     s.selectedModel,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chats = append([]*Chat{chat}, s.chats...)
	s.current = chat
	s.state = StateIdle
	s.persistLocked()
	out := snapshot(chat)
	s.mu.Unlock()

	s.notify(ChangeChats)
	return out
}

// SelectChat loads a chat into the active view. An unknown id resets the view
// to "no chat selected".
func (s *Store) SelectChat(id string) {
	s.mu.Lock()
	s.current = nil
	for _, c := range s.chats {
		if c.ID == id {
			s.current = c
			break
		}
	}
	s.mu.Unlock()

	s.notify(ChangeMessages)
}

// Current returns a snapshot of the current chat, or nil when none is
// selected.
func (s *Store) Current() *Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	out := snapshot(s.current)
	return &out
}

// Chats returns summaries of all chats, head (most recent) first.
func (s *Store) Chats() []ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChatSummary, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, ChatSummary{
			ID:           c.ID,
			Title:        c.Title,
			Model:        c.Model,
			MessageCount: len(c.Messages),
			UpdatedAt:    c.UpdatedAt,
		})
	}
	return out
}

// DeleteChat removes a chat. Deleting the current chat resets the active view.
func (s *Store) DeleteChat(id string) {
	s.mu.Lock()
	kept := s.chats[:0]
	for _, c := range s.chats {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.chats = kept
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	s.persistLocked()
	s.mu.Unlock()

	s.notify(ChangeChats)
}

// RenameChat sets a chat's title and persists.
func (s *Store) RenameChat(id, title string) {
	s.mu.Lock()
	for _, c := range s.chats {
		if c.ID == id {
			c.Title = title
			c.UpdatedAt = time.Now()
			break
		}
	}
	s.persistLocked()
	s.mu.Unlock()

	s.notify(ChangeChats)
}

// ClearAll drops every chat and the durable record, and resets the view.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.chats = nil
	s.current = nil
	if s.adapter != nil {
		s.adapter.Clear()
	}
	s.mu.Unlock()

	s.notify(ChangeChats)
}

// =============================================================================
// MESSAGE TRANSITIONS
// =============================================================================

// AppendMessage appends a message to the current chat and persists
// immediately, so a reload mid-operation never loses a completed turn.
func (s *Store) AppendMessage(msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoCurrentChat
	}
	s.current.Messages = append(s.current.Messages, msg)
	s.current.UpdatedAt = time.Now()
	s.persistLocked()
	s.mu.Unlock()

	s.notify(ChangeMessages)
	return nil
}

// AppendToken concatenates a streamed fragment onto the trailing assistant
// message, in place and order-preserving. Tokens are not persisted one by
// one; durability of accumulated content waits for Flush.
func (s *Store) AppendToken(text string) {
	s.mu.Lock()
	if s.current != nil && len(s.current.Messages) > 0 {
		last := &s.current.Messages[len(s.current.Messages)-1]
		if last.Role == "assistant" {
			last.Content += text
		}
	}
	s.mu.Unlock()

	s.notify(ChangeMessages)
}

// Flush persists the current in-memory message list and recomputes the chat
// title from the first user message while the placeholder is still in place.
// Called whenever a generation ends, whether by done, error, or cancel: this
// is the reconciliation point between the in-flight message and the durable
// store.
func (s *Store) Flush() {
	s.mu.Lock()
	if s.current != nil {
		if s.current.Title == DefaultTitle {
			for _, m := range s.current.Messages {
				if m.Role == "user" && m.Content != "" {
					s.current.Title = truncateTitle(m.Content)
					break
				}
			}
		}
		s.current.UpdatedAt = time.Now()
		s.persistLocked()
	}
	s.mu.Unlock()

	s.notify(ChangeChats)
}

// truncateTitle shortens content to TitleMaxLen runes with an ellipsis marker.
func truncateTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleMaxLen {
		return content
	}
	return string(runes[:TitleMaxLen]) + "..."
}

// =============================================================================
// GENERATION STATE
// =============================================================================

// BeginGeneration moves the current chat to the generating state. At most one
// generation may be active at a time.
func (s *Store) BeginGeneration() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoCurrentChat
	}
	if s.state == StateGenerating {
		return ErrGenerationActive
	}
	s.state = StateGenerating
	return nil
}

// EndGeneration returns to idle. Safe to call from any terminal path.
func (s *Store) EndGeneration() {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}

// State returns the generation state of the current chat.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// =============================================================================
// CONNECTIVITY AND SETTINGS
// =============================================================================

// SetConnected records the prober's connectivity signal.
func (s *Store) SetConnected(ok bool) {
	s.mu.Lock()
	changed := s.connected != ok
	s.connected = ok
	s.mu.Unlock()

	if changed {
		s.notify(ChangeConnectivity)
	}
}

// IsConnected reports the last probe result.
func (s *Store) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SetModels replaces the known model list.
func (s *Store) SetModels(models []string) {
	s.mu.Lock()
	s.models = append([]string(nil), models...)
	s.mu.Unlock()
	s.notify(ChangeModels)
}

// Models returns the known model list.
func (s *Store) Models() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.models...)
}

// SetSelectedModel records the model used for new chats and generations.
func (s *Store) SetSelectedModel(model string) {
	s.mu.Lock()
	s.selectedModel = model
	s.mu.Unlock()
	s.notify(ChangeModels)
}

// SelectedModel returns the active model identifier.
func (s *Store) SelectedModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedModel
}

// SetSampling updates the sampling parameters sent with each generation.
func (s *Store) SetSampling(temperature float64, contextWindow int) {
	s.mu.Lock()
	s.temperature = temperature
	s.contextWindow = contextWindow
	s.mu.Unlock()
	s.notify(ChangeSettings)
}

// Sampling returns the current temperature and context window.
func (s *Store) Sampling() (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperature, s.contextWindow
}

// AddDocument attaches external document context for the next generations.
func (s *Store) AddDocument(doc string) {
	s.mu.Lock()
	s.documents = append(s.documents, doc)
	s.mu.Unlock()
	s.notify(ChangeSettings)
}

// ClearDocuments drops all attached document context.
func (s *Store) ClearDocuments() {
	s.mu.Lock()
	s.documents = nil
	s.mu.Unlock()
	s.notify(ChangeSettings)
}

// Documents returns the attached document context, in order.
func (s *Store) Documents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.documents...)
}

// SetWebSearchEnabled toggles inclusion of search-result context.
func (s *Store) SetWebSearchEnabled(on bool) {
	s.mu.Lock()
	s.webSearchEnabled = on
	s.mu.Unlock()
	s.notify(ChangeSettings)
}

// WebSearchEnabled reports the search-context toggle.
func (s *Store) WebSearchEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webSearchEnabled
}

// =============================================================================
// HELPERS
// =============================================================================

// snapshot copies a chat including its message slice so callers cannot reach
// into live store state.
func snapshot(c *Chat) Chat {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}
